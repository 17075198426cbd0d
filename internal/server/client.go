package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Client calls a remote KitchenService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to addr without transport security.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return NewClient(conn), conn, nil
}

// AddBot creates a bot and returns it.
func (c *Client) AddBot(ctx context.Context) (types.Bot, error) {
	var snap types.Snapshot
	if err := c.invoke(ctx, methodAddBot, &emptypb.Empty{}, &snap); err != nil {
		return types.Bot{}, err
	}
	return snap.Bots[len(snap.Bots)-1], nil
}

// AddOrder submits an order and returns it.
func (c *Client) AddOrder(ctx context.Context, t types.OrderType) (types.Order, error) {
	var snap types.Snapshot
	if err := c.invoke(ctx, methodAddOrder, wrapperspb.String(string(t)), &snap); err != nil {
		return types.Order{}, err
	}
	return snap.Orders[len(snap.Orders)-1], nil
}

// WithdrawBot removes a bot and returns the resulting snapshot.
func (c *Client) WithdrawBot(ctx context.Context, id types.BotID) (types.Snapshot, error) {
	var snap types.Snapshot
	err := c.invoke(ctx, methodWithdrawBot, wrapperspb.String(string(id)), &snap)
	return snap, err
}

// Board fetches the current board.
func (c *Client) Board(ctx context.Context) (types.Board, error) {
	var b types.Board
	err := c.invoke(ctx, methodGetBoard, &emptypb.Empty{}, &b)
	return b, err
}

// Snapshot fetches the raw snapshot.
func (c *Client) Snapshot(ctx context.Context) (types.Snapshot, error) {
	var snap types.Snapshot
	err := c.invoke(ctx, methodGetSnapshot, &emptypb.Empty{}, &snap)
	return snap, err
}

// Status fetches the controller status.
func (c *Client) Status(ctx context.Context) (controller.Status, error) {
	var st controller.Status
	err := c.invoke(ctx, methodGetStatus, &emptypb.Empty{}, &st)
	return st, err
}

func (c *Client) invoke(ctx context.Context, method string, in any, out any) error {
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}
