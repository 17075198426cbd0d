// ============================================================================
// cookbot Recovery Test Suite
// ============================================================================
//
// Package: test/integration
// File: recovery_test.go
// Functionality: end-to-end audit of a running kitchen
//
// TestEndToEndRecovery:
//   - run a kitchen on a real clock behind the REST API
//   - add bots and orders over HTTP while exports rotate the journal
//   - wait for every order to complete, then stop
//   - rebuild the kitchen from the journal archives alone
//   - rebuild it again from the final export plus the live journal
//   - both must equal the stopped kitchen
//
// ============================================================================

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/internal/httpapi"
	"github.com/ChuLiYu/cookbot/internal/snapshot"
	"github.com/ChuLiYu/cookbot/internal/storage/wal"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(t *testing.T, url string, body any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	resp, err := http.Post(url, "application/json", r)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode, "POST %s", url)
}

func TestEndToEndRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tmpDir := t.TempDir()
	const cookSeconds = 2
	const orders = 20

	config := controller.Config{
		CookSeconds:     cookSeconds,
		TickInterval:    5 * time.Millisecond,
		JournalPath:     filepath.Join(tmpDir, "journal.log"),
		ExportPath:      filepath.Join(tmpDir, "export.json"),
		ExportInterval:  40 * time.Millisecond,
		CheckInvariants: true,
		Logger:          quietLogger(),
	}
	ctrl, err := controller.NewController(config)
	require.NoError(t, err)
	defer ctrl.Stop()

	srv := httptest.NewServer(httpapi.NewServer(ctrl, nil, quietLogger()))
	defer srv.Close()

	require.NoError(t, ctrl.Start(context.Background()))

	for i := 0; i < 3; i++ {
		post(t, srv.URL+"/bots", nil)
	}
	for i := 1; i <= orders; i++ {
		orderType := types.OrderNormal
		if i%5 == 0 {
			orderType = types.OrderVIP
		}
		post(t, srv.URL+"/orders", map[string]string{"type": string(orderType)})
	}

	require.Eventually(t, func() bool {
		return ctrl.Board().Stats.Completed == orders
	}, 10*time.Second, 10*time.Millisecond, "orders never completed")

	ctrl.Stop()
	want := ctrl.Snapshot()
	t.Logf("Stopped kitchen: %d orders, %d bots", len(want.Orders), len(want.Bots))

	archives, err := wal.Archives(config.JournalPath)
	require.NoError(t, err)
	require.NotEmpty(t, archives)

	// journal only
	res, err := controller.Replay(types.ExportData{CookSeconds: cookSeconds}, archives...)
	require.NoError(t, err)
	assert.Equal(t, want, res.State)
	assert.Equal(t, len(archives), res.Journals)

	// final export plus whatever the live journal holds
	exported, err := snapshot.NewManager(config.ExportPath).Load()
	require.NoError(t, err)
	res, err = controller.Replay(exported, config.JournalPath)
	require.NoError(t, err)
	assert.Equal(t, want, res.State)
	assert.Zero(t, res.Applied)

	for _, o := range want.Orders {
		assert.Equal(t, types.OrderCompleted, o.Status, fmt.Sprintf("order %s", o.ID))
	}
}
