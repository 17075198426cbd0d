// ============================================================================
// cookbot Controller - kitchen driver
// ============================================================================
//
// Package: internal/controller
// File: controller.go
// Purpose: own the current kitchen snapshot and serialise every command
//
// Architecture:
//   The engine is pure; the controller is the only place that holds state.
//   Every command (AddBot, AddOrder, WithdrawBot, Tick) runs under one mutex:
//
//     command -> engine.Apply -> journal -> metrics -> subscribers
//
//   so a stream of commands gives the same result whatever its timing.
//
// Loops (started by Start):
//   1. Tick Loop   - one Tick per TickInterval from the configured clock
//   2. Export Loop - periodic JSON export, rotating the journal after each
//
// Journal:
//   A START event opens every run, then every command that changed the
//   kitchen is appended. The journal is an audit trail; a failed append is
//   logged and counted but never blocks the transition. A kitchen always
//   starts empty, and replay resets to empty at each START.
//
// Shutdown (Stop):
//   close(stopCh) -> wait for loops -> final export -> close journal ->
//   close subscriber channels
//
// ============================================================================

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/cookbot/internal/clock"
	"github.com/ChuLiYu/cookbot/internal/engine"
	"github.com/ChuLiYu/cookbot/internal/metrics"
	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/internal/snapshot"
	"github.com/ChuLiYu/cookbot/internal/storage/wal"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

var log = slog.Default()

var (
	// ErrStopped is returned when the controller has been stopped.
	ErrStopped = errors.New("controller stopped")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("controller already started")
	// ErrExportDisabled is returned by Export without an ExportPath.
	ErrExportDisabled = errors.New("export path not configured")
)

// DefaultTickInterval is one simulated second.
const DefaultTickInterval = time.Second

// subscriberBuffer is the number of boards a slow subscriber may lag behind
// before older boards are dropped.
const subscriberBuffer = 16

// ============================================================================
// Configuration
// ============================================================================

// Config configures a Controller. Only the zero value of every field is
// needed for an in-memory kitchen driven by the wall clock.
type Config struct {
	InstanceID   string        // defaults to a random UUID
	CookSeconds  int           // defaults to types.DefaultCookSeconds
	TickInterval time.Duration // defaults to DefaultTickInterval
	Clock        clock.Clock   // defaults to clock.Real()

	JournalPath       string // empty disables the journal
	JournalBufferSize int    // events buffered before a write
	JournalSync       bool   // fsync on every journal write

	ExportPath     string        // empty disables exports
	ExportInterval time.Duration // zero exports only on Stop
	ExportBackups  int           // previous exports to keep; 0 overwrites

	CheckInvariants bool // validate every new snapshot and log violations

	Metrics *metrics.Collector // optional
	Logger  *slog.Logger       // defaults to slog.Default()
}

// Status summarises a running controller.
type Status struct {
	InstanceID  string           `json:"instance_id"`
	Uptime      string           `json:"uptime"`
	CookSeconds int              `json:"cook_seconds"`
	JournalSeq  uint64           `json:"journal_seq"`
	Running     bool             `json:"running"`
	Stats       types.BoardStats `json:"stats"`
}

// Controller drives one kitchen.
type Controller struct {
	exportMu sync.Mutex // serialises export capture and write; taken before mu

	mu      sync.Mutex
	engine  engine.Engine
	state   types.Snapshot
	journal *wal.WAL          // nil when disabled or after Stop
	export  *snapshot.Manager // nil when disabled
	metrics *metrics.Collector
	log     *slog.Logger
	config  Config

	subs    map[int]chan types.Board
	nextSub int

	started   bool
	stopped   bool
	startTime time.Time
	stopCh    chan struct{}
	loopWg    sync.WaitGroup
}

// NewController builds a controller with an empty kitchen.
func NewController(config Config) (*Controller, error) {
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.CookSeconds <= 0 {
		config.CookSeconds = types.DefaultCookSeconds
	}
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = log
	}
	logger = logger.With("instance", config.InstanceID)

	c := &Controller{
		engine:  engine.New(config.CookSeconds),
		state:   types.Snapshot{Bots: []types.Bot{}, Orders: []types.Order{}},
		metrics: config.Metrics,
		log:     logger,
		config:  config,
		subs:    make(map[int]chan types.Board),
		stopCh:  make(chan struct{}),
	}

	if config.JournalPath != "" {
		journal, err := wal.NewWAL(config.JournalPath, wal.Options{
			SyncOnAppend: config.JournalSync,
			BufferSize:   config.JournalBufferSize,
			Now:          config.Clock.Now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		c.journal = journal

		start := wal.Record{Type: wal.EventStart, Instance: config.InstanceID, CookSeconds: config.CookSeconds}
		if _, err := journal.Append(start, true); err != nil {
			journal.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
	}
	if config.ExportPath != "" {
		c.export = snapshot.NewManager(config.ExportPath)
	}

	if c.metrics != nil {
		c.metrics.UpdateBoard(projection.Project(c.state))
	}
	return c, nil
}

// Start launches the tick loop and, if configured, the export loop.
// Cancelling ctx stops the controller as Stop would.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.startTime = c.config.Clock.Now()
	c.mu.Unlock()

	c.loopWg.Add(1)
	go c.tickLoop()

	if c.export != nil && c.config.ExportInterval > 0 {
		c.loopWg.Add(1)
		go c.exportLoop()
	}

	go func() {
		select {
		case <-ctx.Done():
			c.Stop()
		case <-c.stopCh:
		}
	}()

	c.log.Info("Controller started",
		"cook_seconds", c.config.CookSeconds,
		"tick_interval", c.config.TickInterval,
		"journal", c.config.JournalPath,
		"export", c.config.ExportPath)
	return nil
}

// ============================================================================
// Commands
// ============================================================================

// AddBot adds an idle bot, which immediately picks up a pending order if any.
func (c *Controller) AddBot() types.Snapshot {
	s, _ := c.apply(engine.AddBotCommand())
	return s
}

// AddOrder submits an order. Only normal and vip are accepted.
func (c *Controller) AddOrder(orderType types.OrderType) (types.Snapshot, error) {
	if orderType != types.OrderNormal && orderType != types.OrderVIP {
		return c.Snapshot(), fmt.Errorf("%w: %q", types.ErrInvalidOrderType, orderType)
	}
	s, _ := c.apply(engine.AddOrderCommand(orderType))
	return s, nil
}

// WithdrawBot removes a bot. An unknown id leaves the kitchen unchanged and
// reports false.
func (c *Controller) WithdrawBot(id types.BotID) (types.Snapshot, bool) {
	return c.apply(engine.WithdrawBotCommand(id))
}

// Tick advances the kitchen by one second. The tick loop calls it on every
// clock tick; callers may also drive it by hand.
func (c *Controller) Tick() (types.Snapshot, bool) {
	return c.apply(engine.TickCommand())
}

// apply runs one command under the controller lock.
func (c *Controller) apply(cmd engine.Command) (types.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	prev := c.state
	next, changed := c.engine.Apply(prev, cmd)

	if changed {
		c.state = next
		c.journalLocked(cmd)

		if c.config.CheckInvariants {
			if err := engine.Validate(next); err != nil {
				c.log.Error("Invariant violated", "command", cmd.String(), "error", err)
			}
		}

		board := projection.Project(next)
		if c.metrics != nil {
			c.metrics.Observe(projection.Changes(prev, next))
			c.metrics.UpdateBoard(board)
		}
		c.publishLocked(board)

		if cmd.Action != engine.ActionTick {
			c.log.Info("Command applied", "command", cmd.String(),
				"bots", len(next.Bots), "orders", len(next.Orders))
		} else {
			c.log.Debug("Tick", "cooking", next.CookingBots())
		}
	}

	if c.metrics != nil {
		c.metrics.RecordCommand(string(cmd.Action), changed, time.Since(start))
	}
	return c.state.Clone(), changed
}

func (c *Controller) journalLocked(cmd engine.Command) {
	if c.journal == nil {
		return
	}
	rec := wal.Record{
		Type:      wal.EventType(cmd.Action),
		BotID:     cmd.BotID,
		OrderType: cmd.OrderType,
	}
	if _, err := c.journal.Append(rec, false); err != nil {
		c.log.Error("Failed to journal command", "command", cmd.String(), "error", err)
		if c.metrics != nil {
			c.metrics.RecordJournalError()
		}
	}
}

// ============================================================================
// Queries
// ============================================================================

// Snapshot returns a copy of the current kitchen.
func (c *Controller) Snapshot() types.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Board returns the display projection of the current kitchen.
func (c *Controller) Board() types.Board {
	c.mu.Lock()
	defer c.mu.Unlock()
	return projection.Project(c.state)
}

// GetStatus reports identity, uptime and board counts.
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		InstanceID:  c.config.InstanceID,
		CookSeconds: c.config.CookSeconds,
		Running:     c.started && !c.stopped,
		Stats:       projection.Project(c.state).Stats,
	}
	if c.started {
		st.Uptime = c.config.Clock.Now().Sub(c.startTime).String()
	}
	if c.journal != nil {
		st.JournalSeq = c.journal.GetLastSeq()
	}
	return st
}

// InstanceID returns the controller's identity.
func (c *Controller) InstanceID() string {
	return c.config.InstanceID
}

// Subscribe returns a channel that receives the board after every command
// that changed the kitchen, and a function that ends the subscription.
// A subscriber that falls behind loses the oldest boards. The channel is
// closed by the cancel function or by Stop.
func (c *Controller) Subscribe() (<-chan types.Board, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan types.Board, subscriberBuffer)
	if c.stopped {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Controller) publishLocked(board types.Board) {
	for _, ch := range c.subs {
		select {
		case ch <- board:
			continue
		default:
		}
		// full: drop the oldest board and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- board:
		default:
		}
	}
}

// ============================================================================
// Loops
// ============================================================================

// tickLoop advances the kitchen once per TickInterval.
func (c *Controller) tickLoop() {
	defer c.loopWg.Done()
	ticker := c.config.Clock.NewTicker(c.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.log.Info("Tick loop stopped")
			return

		case <-ticker.C():
			select {
			case <-c.stopCh:
				c.log.Info("Tick loop stopped")
				return
			default:
			}
			c.Tick()
		}
	}
}

// exportLoop writes an export every ExportInterval.
func (c *Controller) exportLoop() {
	defer c.loopWg.Done()
	ticker := c.config.Clock.NewTicker(c.config.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			c.log.Info("Export loop stopped")
			return

		case <-ticker.C():
			if _, err := c.Export(); err != nil {
				c.log.Error("Failed to export", "error", err)
			}
		}
	}
}

// Export writes the current kitchen to ExportPath and rotates the journal so
// that it holds only commands after the export.
func (c *Controller) Export() (types.ExportData, error) {
	c.exportMu.Lock()
	defer c.exportMu.Unlock()

	c.mu.Lock()
	if c.export == nil {
		c.mu.Unlock()
		return types.ExportData{}, ErrExportDisabled
	}
	if c.stopped {
		c.mu.Unlock()
		return types.ExportData{}, ErrStopped
	}
	data, err := c.exportLocked()
	c.mu.Unlock()
	if err != nil {
		return data, err
	}
	return data, c.writeExport(data)
}

// exportLocked captures the export payload and rotates the journal under the
// controller lock so that no command falls between the two.
func (c *Controller) exportLocked() (types.ExportData, error) {
	start := time.Now()
	data := types.ExportData{
		InstanceID:  c.config.InstanceID,
		CookSeconds: c.config.CookSeconds,
		ExportedAt:  c.config.Clock.Now(),
		State:       c.state.Clone(),
	}
	if c.journal != nil {
		data.LastSeq = c.journal.GetLastSeq()
		archive, err := c.journal.Rotate()
		if err != nil {
			return data, fmt.Errorf("failed to rotate journal: %w", err)
		}
		c.log.Debug("Journal rotated", "archive", archive, "duration", time.Since(start))
	}
	return data, nil
}

func (c *Controller) writeExport(data types.ExportData) error {
	start := time.Now()
	var err error
	if c.config.ExportBackups > 0 {
		err = c.export.WriteWithBackup(data, c.config.ExportBackups)
	} else {
		err = c.export.Write(data)
	}
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	c.log.Info("Export written",
		"path", c.export.GetPath(),
		"last_seq", data.LastSeq,
		"orders", len(data.State.Orders),
		"duration", time.Since(start))
	return nil
}

// ============================================================================
// Shutdown
// ============================================================================

// Stop ends the loops, writes a final export, closes the journal and every
// subscriber channel. It is safe to call more than once. Commands issued
// after Stop still change the in-memory kitchen but are no longer journaled.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	c.log.Info("Stopping controller...")

	// 1. signal loops
	close(c.stopCh)

	// 2. wait for loops so no tick races the final export
	c.loopWg.Wait()

	c.exportMu.Lock()
	defer c.exportMu.Unlock()
	c.mu.Lock()
	// 3. final export
	if c.export != nil {
		data, err := c.exportLocked()
		if err == nil {
			err = c.writeExport(data)
		}
		if err != nil {
			c.log.Error("Failed to write final export", "error", err)
		}
	}

	// 4. close journal
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.log.Error("Failed to close journal", "error", err)
		}
		c.journal = nil
	}

	// 5. release subscribers
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.log.Info("Controller stopped")
}
