package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Kitchen is the part of controller.Controller the server drives.
type Kitchen interface {
	AddBot() types.Snapshot
	AddOrder(types.OrderType) (types.Snapshot, error)
	WithdrawBot(types.BotID) (types.Snapshot, bool)
	Snapshot() types.Snapshot
	Board() types.Board
	GetStatus() controller.Status
}

// Server implements the gRPC KitchenService over a Kitchen.
type Server struct {
	kitchen Kitchen
	log     *slog.Logger
}

// NewServer creates a new gRPC server instance.
func NewServer(k Kitchen, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{kitchen: k, log: logger}
}

// AddBot creates a bot and returns the resulting snapshot.
func (s *Server) AddBot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.kitchen.AddBot())
}

// AddOrder submits an order of the requested type ("normal" or "vip").
func (s *Server) AddOrder(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	t, err := types.ParseOrderType(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	snap, err := s.kitchen.AddOrder(t)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return toStruct(snap)
}

// WithdrawBot removes the named bot. An unknown id is NotFound.
func (s *Server) WithdrawBot(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := types.BotID(req.GetValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "bot id is required")
	}
	snap, changed := s.kitchen.WithdrawBot(id)
	if !changed {
		return nil, status.Errorf(codes.NotFound, "bot %s not found", id)
	}
	return toStruct(snap)
}

// GetBoard returns the current board.
func (s *Server) GetBoard(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.kitchen.Board())
}

// GetSnapshot returns the raw kitchen snapshot.
func (s *Server) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.kitchen.Snapshot())
}

// GetStatus returns the controller status.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.kitchen.GetStatus())
}

// NewGRPCServer builds a grpc.Server with the kitchen and health services
// registered.
func NewGRPCServer(k Kitchen, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	srv := NewServer(k, logger)
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(srv.logUnary)}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterKitchenServiceServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)
	return gs
}

// Serve runs gs on lis until ctx is cancelled, then stops gracefully.
func Serve(ctx context.Context, gs *grpc.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- gs.Serve(lis) }()

	select {
	case <-ctx.Done():
		gs.GracefulStop()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

func (s *Server) logUnary(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.log.Warn("grpc request failed", "method", info.FullMethod, "code", status.Code(err), "error", err)
	} else {
		s.log.Debug("grpc request", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode: %v", err)
	}
	return st, nil
}

// fromStruct decodes a Struct produced by toStruct into out.
func fromStruct(st *structpb.Struct, out any) error {
	data, err := json.Marshal(st.AsMap())
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
