package worker

import (
	"context"
	"errors"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ChuLiYu/cookbot/internal/scenario"
)

// Options configures Simulate.
type Options struct {
	Workers int           // defaults to runtime.NumCPU()
	Runs    int           // runs per scenario, defaults to 1
	Timeout time.Duration // per run, zero means no limit
}

// Simulate runs every scenario opts.Runs times on a pool of isolated
// kitchens and returns the results in submission order.
func Simulate(ctx context.Context, scenarios []*scenario.Scenario, opts Options) ([]Result, error) {
	if len(scenarios) == 0 {
		return nil, errors.New("no scenarios to simulate")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Runs <= 0 {
		opts.Runs = 1
	}

	total := len(scenarios) * opts.Runs
	pool := NewPool(total)
	if err := pool.Start(opts.Workers); err != nil {
		return nil, err
	}
	defer pool.Stop()

	index := 0
	for run := 0; run < opts.Runs; run++ {
		for _, s := range scenarios {
			task := Task{ID: uuid.NewString(), Index: index, Scenario: s, Timeout: opts.Timeout}
			if err := pool.Submit(task); err != nil {
				return nil, err
			}
			index++
		}
	}

	results := make([]Result, 0, total)
	for len(results) < total {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case r := <-pool.resultCh:
			results = append(results, r)
		}
	}
	slices.SortFunc(results, func(a, b Result) int { return a.Index - b.Index })

	log.Debug("Simulation finished", "runs", total, "workers", opts.Workers)
	return results, nil
}

// Summary aggregates simulation results.
type Summary struct {
	Runs            int           `json:"runs"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	OrdersCompleted int           `json:"orders_completed"`
	BotsLeft        int           `json:"bots_left"`
	Elapsed         time.Duration `json:"elapsed"` // sum of run durations
	Failures        []Result      `json:"-"`
}

// Summarize counts passes, failures and completed orders.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		s.Runs++
		s.Elapsed += r.Duration
		if r.Success {
			s.Passed++
		} else {
			s.Failed++
			s.Failures = append(s.Failures, r)
		}
		if r.Run != nil {
			s.OrdersCompleted += r.Run.Board.Stats.Completed
			s.BotsLeft += r.Run.Board.Stats.Bots
		}
	}
	return s
}
