package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/cookbot/internal/clock"
	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/internal/metrics"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*Server, *controller.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	collector := metrics.NewCollector(prometheus.NewRegistry())
	ctrl, err := controller.NewController(controller.Config{
		InstanceID: "http-test",
		Clock:      clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Metrics:    collector,
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Stop)

	return NewServer(ctrl, collector.Handler(), quietLogger()), ctrl
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	s.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestAddOrderAndBot(t *testing.T) {
	s, ctrl := newTestServer(t)

	w := do(s, http.MethodPost, "/orders", `{"type":"vip"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[types.Order](t, w)
	assert.Equal(t, types.OrderID("ON1"), order.ID)
	assert.Equal(t, types.OrderVIP, order.Type)
	assert.Equal(t, types.OrderPending, order.Status)

	w = do(s, http.MethodPost, "/bots", "")
	require.Equal(t, http.StatusCreated, w.Code)
	bot := decode[types.Bot](t, w)
	assert.Equal(t, types.BotID("BT1"), bot.ID)
	assert.Equal(t, types.BotCooking, bot.Status)
	assert.Equal(t, types.OrderID("ON1"), bot.HandlingOrder)

	w = do(s, http.MethodGet, "/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ctrl.Snapshot(), decode[types.Snapshot](t, w))
}

func TestAddOrderBadRequest(t *testing.T) {
	s, ctrl := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"unknown type", `{"type":"gold"}`},
		{"missing type", `{}`},
		{"malformed json", `{"type":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodPost, "/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
	assert.Empty(t, ctrl.Snapshot().Orders)
}

func TestWithdrawBot(t *testing.T) {
	s, _ := newTestServer(t)

	do(s, http.MethodPost, "/orders", `{"type":"normal"}`)
	do(s, http.MethodPost, "/bots", "")

	w := do(s, http.MethodDelete, "/bots/BT1", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[types.Snapshot](t, w)
	assert.Empty(t, snap.Bots)
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, types.OrderPending, snap.Orders[0].Status)

	w = do(s, http.MethodDelete, "/bots/BT1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConcurrentWithdrawSameBot(t *testing.T) {
	s, ctrl := newTestServer(t)
	do(s, http.MethodPost, "/orders", `{"type":"normal"}`)
	do(s, http.MethodPost, "/bots", "")

	const callers = 8
	codes := make([]int, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = do(s, http.MethodDelete, "/bots/BT1", "").Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		if code == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusNotFound, code)
		}
	}
	assert.Equal(t, 1, ok, "exactly one withdrawal should succeed")
	assert.Empty(t, ctrl.Snapshot().Bots)
}

func TestBoard(t *testing.T) {
	s, _ := newTestServer(t)

	do(s, http.MethodPost, "/orders", `{"type":"normal"}`)
	do(s, http.MethodPost, "/orders", `{"type":"vip"}`)
	do(s, http.MethodPost, "/orders", `{"type":"normal"}`)
	do(s, http.MethodPost, "/orders", `{"type":"vip"}`)

	w := do(s, http.MethodGet, "/board", "")
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[types.Board](t, w)

	ids := make([]types.OrderID, 0, len(board.Pending))
	for _, o := range board.Pending {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []types.OrderID{"ON2", "ON4", "ON1", "ON3"}, ids)
	assert.Equal(t, 4, board.Stats.Pending)
	assert.Equal(t, 2, board.Stats.PendingVIP)
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[controller.Status](t, w)
	assert.Equal(t, "http-test", st.InstanceID)
	assert.False(t, st.Running)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)

	do(s, http.MethodPost, "/bots", "")

	w := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cookbot_bots_added_total 1")
}

func TestMetricsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctrl, err := controller.NewController(controller.Config{Logger: quietLogger()})
	require.NoError(t, err)
	defer ctrl.Stop()

	w := do(NewServer(ctrl, nil, quietLogger()), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketFeed(t *testing.T) {
	s, ctrl := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var board types.Board
	require.NoError(t, conn.ReadJSON(&board))
	assert.Equal(t, 0, board.Stats.Bots)

	ctrl.AddBot()
	require.NoError(t, conn.ReadJSON(&board))
	assert.Equal(t, 1, board.Stats.Bots)
	assert.Equal(t, 1, board.Stats.IdleBots)

	_, err = ctrl.AddOrder(types.OrderVIP)
	require.NoError(t, err)
	require.NoError(t, conn.ReadJSON(&board))
	require.Len(t, board.Cooking, 1)
	assert.Equal(t, types.OrderID("ON1"), board.Cooking[0].ID)
}

func TestWebSocketClosedOnStop(t *testing.T) {
	s, ctrl := newTestServer(t)
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var board types.Board
	require.NoError(t, conn.ReadJSON(&board))

	ctrl.Stop()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
