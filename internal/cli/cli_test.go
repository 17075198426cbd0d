package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/cookbot/internal/controller"
	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/internal/server"
	"github.com/ChuLiYu/cookbot/internal/storage/wal"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// execute runs the CLI with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := BuildCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func missingConfig(t *testing.T) string {
	return filepath.Join(t.TempDir(), "none.yaml")
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.Equal(t, "cookbot", cmd.Use)
	assert.Equal(t, Version, cmd.Version)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "bot", "order", "status", "simulate", "replay", "init"} {
		assert.True(t, names[want], "missing %q command", want)
	}

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "test_config.yaml")
	configContent := `
kitchen:
  cook_seconds: 4
  tick_interval: 250ms
  check_invariants: true
journal:
  path: "./test_journal.log"
  buffer_size: 8
export:
  path: ""
  interval: 30s
metrics:
  enabled: false
grpc:
  addr: "127.0.0.1:6000"
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Kitchen.CookSeconds)
	assert.Equal(t, 250*time.Millisecond, cfg.Kitchen.TickInterval)
	assert.True(t, cfg.Kitchen.CheckInvariants)
	assert.Equal(t, "./test_journal.log", cfg.Journal.Path)
	assert.Equal(t, 8, cfg.Journal.BufferSize)
	assert.Empty(t, cfg.Export.Path)
	assert.Equal(t, 30*time.Second, cfg.Export.Interval)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:6000", cfg.GRPC.Addr)
	assert.Equal(t, "json", cfg.Log.Format)

	// untouched sections keep their defaults
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 3, cfg.Export.Backups)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfig(missingConfig(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "kitchen: [unclosed"},
		{"unknown key", "kitchen:\n  cook_secs: 3\n"},
		{"negative cook seconds", "kitchen:\n  cook_seconds: -1\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"bad duration", "kitchen:\n  tick_interval: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := loadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestShippedConfigMatchesDefaults(t *testing.T) {
	cfg, err := loadConfig(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "init.yaml")
	require.NoError(t, os.WriteFile(path, []byte(defaultConfigYAML), 0644))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cookbot.yaml")

	out, err := execute(t, "init", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigYAML, string(data))

	_, err = execute(t, "init", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "init", "-c", path, "--force")
	assert.NoError(t, err)
}

func TestLogLevelOverride(t *testing.T) {
	_, err := execute(t, "replay", "-c", missingConfig(t), "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log level")
}

func TestBuildLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := buildLogger(cfg, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"cookbot"`)
}

func TestDialAddr(t *testing.T) {
	assert.Equal(t, "localhost:50051", dialAddr(":50051"))
	assert.Equal(t, "10.0.0.2:50051", dialAddr("10.0.0.2:50051"))
}

func TestSimulateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
name: good
steps:
  - action: add_order
    type: vip
  - action: add_bot
  - action: tick
    count: 11
expect:
  completed: [ON1]
`), 0644))

	out, err := execute(t, "simulate", good, "--runs", "3", "--workers", "2", "--transcript")
	require.NoError(t, err)
	assert.Contains(t, out, "scenario: good")
	assert.Contains(t, out, "runs 3  passed 3  failed 0  orders completed 3")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`
name: bad
steps:
  - action: add_bot
expect:
  idle_bots: 0
`), 0644))

	out, err = execute(t, "simulate", good, bad)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL bad")
	assert.Contains(t, err.Error(), "1 of 2 runs failed")
}

// recordKitchen drives a journaled, exporting kitchen through a few commands
// and stops it.
func recordKitchen(t *testing.T) (board types.Board, journal, export string) {
	t.Helper()
	dir := t.TempDir()
	journal = filepath.Join(dir, "journal.log")
	export = filepath.Join(dir, "export.json")

	ctrl, err := controller.NewController(controller.Config{
		InstanceID:  "cli-test",
		CookSeconds: 3,
		JournalPath: journal,
		ExportPath:  export,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)

	ctrl.AddBot()
	_, err = ctrl.AddOrder(types.OrderNormal)
	require.NoError(t, err)
	_, err = ctrl.AddOrder(types.OrderVIP)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		ctrl.Tick()
	}
	ctrl.AddBot()
	ctrl.WithdrawBot("BT1")

	board = ctrl.Board()
	ctrl.Stop()
	return board, journal, export
}

func TestReplayCommand(t *testing.T) {
	board, journal, export := recordKitchen(t)
	want := projection.Render(board)

	archives, err := wal.Archives(journal)
	require.NoError(t, err)
	require.Len(t, archives, 1)

	t.Run("journal only", func(t *testing.T) {
		out, err := execute(t, "replay", "-c", missingConfig(t), "--cook-seconds", "3", "--dump", archives[0])
		require.NoError(t, err)
		assert.Contains(t, out, archives[0]+": ")
		assert.Contains(t, out, "[seq 1] START cli-test cook=3s")
		assert.Contains(t, out, "[seq 2] ADD_BOT at ")
		assert.Contains(t, out, "WITHDRAW_BOT BT1")
		assert.True(t, strings.HasSuffix(out, want), out)
	})

	t.Run("export and empty journal", func(t *testing.T) {
		out, err := execute(t, "replay", "-c", missingConfig(t), "--export", export, journal)
		require.NoError(t, err)
		assert.Contains(t, out, "replayed 0 events from 1 journals")
		assert.True(t, strings.HasSuffix(out, want), out)
	})

	t.Run("configured journal and its archives", func(t *testing.T) {
		cfgPath := filepath.Join(t.TempDir(), "cookbot.yaml")
		require.NoError(t, os.WriteFile(cfgPath, []byte("journal:\n  path: "+journal+"\n"), 0644))

		out, err := execute(t, "replay", "-c", cfgPath)
		require.NoError(t, err)
		assert.Contains(t, out, "from 2 journals (skipped 0), last seq 11, runs 1")
		assert.True(t, strings.HasSuffix(out, want), out)
	})

	t.Run("missing export", func(t *testing.T) {
		_, err := execute(t, "replay", "-c", missingConfig(t), "--export", filepath.Join(t.TempDir(), "x.json"), journal)
		assert.Error(t, err)
	})
}

func TestRemoteCommands(t *testing.T) {
	ctrl, err := controller.NewController(controller.Config{InstanceID: "remote-test", Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(ctrl.Stop)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, server.NewGRPCServer(ctrl, quietLogger()), lis) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	addr := lis.Addr().String()

	out, err := execute(t, "order", "add", "--vip", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "ON1 [vip] pending\n", out)

	out, err = execute(t, "order", "add", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "ON2 [normal] pending\n", out)

	_, err = execute(t, "order", "add", "--type", "gold", "--addr", addr)
	assert.Error(t, err)

	out, err = execute(t, "bot", "add", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "BT1 cooking ON1\n", out)

	out, err = execute(t, "status", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "instance remote-test")
	assert.Contains(t, out, "== PENDING (1, vip 0) ==\nON2 [normal]\n")

	out, err = execute(t, "bot", "withdraw", "BT1", "--addr", addr)
	require.NoError(t, err)
	assert.Equal(t, "BT1 withdrawn\n", out)
	assert.Equal(t, 2, ctrl.Board().Stats.Pending)

	_, err = execute(t, "bot", "withdraw", "BT1", "--addr", addr)
	assert.Error(t, err)
}

func TestRunKitchen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Kitchen.TickInterval = 10 * time.Millisecond
	cfg.Journal.Path = filepath.Join(dir, "journal.log")
	cfg.Export.Path = filepath.Join(dir, "export.json")
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.GRPC.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, runKitchen(ctx, cfg, quietLogger()))

	_, err := os.Stat(cfg.Export.Path)
	assert.NoError(t, err, "final export should be written")
}

func TestRunKitchenListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Journal.Path = ""
	cfg.Export.Path = ""
	cfg.HTTP.Enabled = false
	cfg.GRPC.Addr = "256.0.0.1:bad"

	err := runKitchen(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
