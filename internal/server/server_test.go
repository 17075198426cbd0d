package server

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ChuLiYu/cookbot/internal/clock"
	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

const bufSize = 1 << 20

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setup starts a kitchen service on an in-memory listener and returns a
// client connected to it together with the controller behind it.
func setup(t *testing.T) (*Client, *grpc.ClientConn, *controller.Controller) {
	t.Helper()

	ctrl, err := controller.NewController(controller.Config{
		InstanceID: "grpc-test",
		Clock:      clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Stop)

	lis := bufconn.Listen(bufSize)
	gs := NewGRPCServer(ctrl, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, gs, lis) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn), conn, ctrl
}

func TestAddBotAndOrder(t *testing.T) {
	client, _, ctrl := setup(t)
	ctx := context.Background()

	order, err := client.AddOrder(ctx, types.OrderVIP)
	require.NoError(t, err)
	assert.Equal(t, types.OrderID("ON1"), order.ID)
	assert.Equal(t, types.OrderPending, order.Status)
	assert.Equal(t, types.OrderVIP, order.Type)

	bot, err := client.AddBot(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.BotID("BT1"), bot.ID)
	assert.Equal(t, types.BotCooking, bot.Status)
	assert.Equal(t, types.OrderID("ON1"), bot.HandlingOrder)
	require.NotNil(t, bot.RemainingSeconds)
	assert.Equal(t, types.DefaultCookSeconds, *bot.RemainingSeconds)

	assert.Equal(t, ctrl.Snapshot(), mustSnapshot(t, client))
}

func TestAddOrderAliases(t *testing.T) {
	client, _, _ := setup(t)

	order, err := client.AddOrder(context.Background(), "Expedited")
	require.NoError(t, err)
	assert.Equal(t, types.OrderVIP, order.Type)
}

func TestAddOrderInvalidType(t *testing.T) {
	client, _, ctrl := setup(t)

	_, err := client.AddOrder(context.Background(), "gold")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, ctrl.Snapshot().Orders)
}

func TestWithdrawBot(t *testing.T) {
	client, _, _ := setup(t)
	ctx := context.Background()

	_, err := client.AddOrder(ctx, types.OrderNormal)
	require.NoError(t, err)
	_, err = client.AddBot(ctx)
	require.NoError(t, err)

	snap, err := client.WithdrawBot(ctx, "BT1")
	require.NoError(t, err)
	assert.Empty(t, snap.Bots)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, types.OrderPending, snap.Orders[0].Status)
	assert.Nil(t, snap.Orders[0].RemainingSeconds)
}

func TestWithdrawBotErrors(t *testing.T) {
	client, _, _ := setup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		id   types.BotID
		code codes.Code
	}{
		{"empty id", "", codes.InvalidArgument},
		{"unknown id", "BT42", codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.WithdrawBot(ctx, tt.id)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestConcurrentWithdrawSameBot(t *testing.T) {
	client, _, ctrl := setup(t)
	ctx := context.Background()
	_, err := client.AddBot(ctx)
	require.NoError(t, err)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.WithdrawBot(ctx, "BT1")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.Equal(t, codes.NotFound, status.Code(err))
		}
	}
	assert.Equal(t, 1, ok, "exactly one withdrawal should succeed")
	assert.Empty(t, ctrl.Snapshot().Bots)
}

func TestBoardFollowsTicks(t *testing.T) {
	client, _, ctrl := setup(t)
	ctx := context.Background()

	_, err := client.AddOrder(ctx, types.OrderNormal)
	require.NoError(t, err)
	_, err = client.AddOrder(ctx, types.OrderVIP)
	require.NoError(t, err)
	_, err = client.AddBot(ctx)
	require.NoError(t, err)

	for i := 0; i <= types.DefaultCookSeconds; i++ {
		ctrl.Tick()
	}

	board, err := client.Board(ctx)
	require.NoError(t, err)
	require.Len(t, board.Completed, 1)
	assert.Equal(t, types.OrderID("ON2"), board.Completed[0].ID)
	require.Len(t, board.Cooking, 1)
	assert.Equal(t, types.OrderID("ON1"), board.Cooking[0].ID)
	assert.Empty(t, board.Pending)
	assert.Equal(t, 1, board.Stats.CookingBots)
	assert.Equal(t, ctrl.Board(), board)
}

func TestStatus(t *testing.T) {
	client, _, _ := setup(t)

	_, err := client.AddBot(context.Background())
	require.NoError(t, err)

	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "grpc-test", st.InstanceID)
	assert.Equal(t, types.DefaultCookSeconds, st.CookSeconds)
	assert.Equal(t, 1, st.Stats.Bots)
	assert.Equal(t, 1, st.Stats.IdleBots)
}

func TestHealth(t *testing.T) {
	_, conn, _ := setup(t)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestStructRoundTrip(t *testing.T) {
	snap := types.Snapshot{
		Bots:       []types.Bot{{ID: "BT1", Status: types.BotCooking, HandlingOrder: "ON1", RemainingSeconds: types.Seconds(3)}},
		Orders:     []types.Order{{ID: "ON1", Status: types.OrderCooking, Type: types.OrderVIP, RemainingSeconds: types.Seconds(3)}},
		BotCount:   1,
		OrderCount: 1,
	}

	st, err := toStruct(snap)
	require.NoError(t, err)

	var got types.Snapshot
	require.NoError(t, fromStruct(st, &got))
	assert.Equal(t, snap, got)
}

func mustSnapshot(t *testing.T, c *Client) types.Snapshot {
	t.Helper()
	snap, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}
