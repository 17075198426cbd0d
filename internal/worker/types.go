package worker

import (
	"time"

	"github.com/ChuLiYu/cookbot/internal/scenario"
)

// Task is one isolated scenario run.
type Task struct {
	ID       string             // run identifier
	Index    int                // position in a batch
	Scenario *scenario.Scenario // scenario to run from an empty kitchen
	Timeout  time.Duration      // zero means no limit
}

// Result is the outcome of a Task.
type Result struct {
	TaskID   string
	Index    int
	Name     string
	Success  bool
	Error    error
	Run      *scenario.Result // nil if the scenario could not start
	Duration time.Duration
}
