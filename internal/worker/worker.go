// ============================================================================
// cookbot Worker - Scenario Execution Unit
// ============================================================================
//
// Package: internal/worker
// File: worker.go
// Function: runs scenario tasks, each Worker in its own goroutine
//
// How it works:
//   Each Worker is an independent goroutine that continuously executes the following loop:
//   1. Receive task from taskCh (blocking wait)
//   2. Run the scenario against a private kitchen (with timeout control)
//   3. Send result to resultCh
//   4. Repeat until taskCh is closed
//
// Execution Model:
//   ┌─────────────────────────────────────┐
//   │  Worker Goroutine                   │
//   │  ┌──────────────────────────────┐   │
//   │  │ for task := range taskCh     │   │
//   │  │   ├─ Context with timeout    │   │
//   │  │   ├─ scenario.RunContext     │   │
//   │  │   └─ send result to resultCh │   │
//   │  └──────────────────────────────┘   │
//   └─────────────────────────────────────┘
//
// Kitchens share nothing: every task starts from an empty snapshot, so any
// number of workers can run at once.
//
// ============================================================================

package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ChuLiYu/cookbot/internal/scenario"
)

var log = slog.Default()

// Worker represents a work execution unit
type Worker struct {
	id       int           // used for logging
	taskCh   <-chan Task   // receives tasks to execute
	resultCh chan<- Result // sends task results
}

// newWorker creates a new Worker instance
func newWorker(id int, taskCh <-chan Task, resultCh chan<- Result) *Worker {
	return &Worker{
		id:       id,
		taskCh:   taskCh,
		resultCh: resultCh,
	}
}

// Run is the main loop of Worker. It returns when taskCh is closed.
func (w *Worker) Run() {
	for task := range w.taskCh {
		start := time.Now()

		ctx, cancel := context.Background(), context.CancelFunc(func() {})
		if task.Timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		}
		run, err := w.execute(ctx, task.Scenario)
		cancel()

		result := Result{
			TaskID:   task.ID,
			Index:    task.Index,
			Success:  err == nil,
			Error:    err,
			Run:      run,
			Duration: time.Since(start),
		}
		if task.Scenario != nil {
			result.Name = task.Scenario.Name
		}

		select {
		case w.resultCh <- result:
		default:
			log.Warn("Result channel full, dropping result", "worker", w.id, "task", task.ID)
		}
	}
}

// execute runs one scenario from an empty kitchen.
func (w *Worker) execute(ctx context.Context, s *scenario.Scenario) (*scenario.Result, error) {
	if s == nil {
		return nil, errors.New("task has no scenario")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scenario.RunContext(ctx, s)
}
