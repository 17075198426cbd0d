package scenario

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ChuLiYu/cookbot/internal/engine"
	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Expectation describes a board. Only the fields that are set are checked.
type Expectation struct {
	Pending     []string          `yaml:"pending,omitempty"`   // ids in board order
	Cooking     []string          `yaml:"cooking,omitempty"`   // ids in board order
	Completed   []string          `yaml:"completed,omitempty"` // ids in board order
	Bots        []string          `yaml:"bots,omitempty"`      // ids in board order
	IdleBots    *int              `yaml:"idle_bots,omitempty"`
	CookingBots *int              `yaml:"cooking_bots,omitempty"`
	Handling    map[string]string `yaml:"handling,omitempty"` // bot id -> order id, "" for idle
}

// Check compares b against the expectation and reports every mismatch.
func (x *Expectation) Check(b types.Board) error {
	if x == nil {
		return nil
	}
	var problems []string
	mismatch := func(field string, want, got any) {
		problems = append(problems, fmt.Sprintf("%s: want %v, got %v", field, want, got))
	}

	lanes := []struct {
		name string
		want []string
		got  []types.Order
	}{
		{"pending", x.Pending, b.Pending},
		{"cooking", x.Cooking, b.Cooking},
		{"completed", x.Completed, b.Completed},
	}
	for _, l := range lanes {
		if l.want == nil {
			continue
		}
		got := orderIDs(l.got)
		if !slices.Equal(l.want, got) {
			mismatch(l.name, l.want, got)
		}
	}

	if x.Bots != nil {
		got := make([]string, len(b.Bots))
		for i, bot := range b.Bots {
			got[i] = string(bot.ID)
		}
		if !slices.Equal(x.Bots, got) {
			mismatch("bots", x.Bots, got)
		}
	}
	if x.IdleBots != nil && *x.IdleBots != b.Stats.IdleBots {
		mismatch("idle_bots", *x.IdleBots, b.Stats.IdleBots)
	}
	if x.CookingBots != nil && *x.CookingBots != b.Stats.CookingBots {
		mismatch("cooking_bots", *x.CookingBots, b.Stats.CookingBots)
	}

	ids := make([]string, 0, len(x.Handling))
	for id := range x.Handling {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		want := x.Handling[id]
		i := slices.IndexFunc(b.Bots, func(bot types.Bot) bool { return string(bot.ID) == id })
		if i == -1 {
			problems = append(problems, fmt.Sprintf("handling: bot %s not found", id))
			continue
		}
		if got := string(b.Bots[i].HandlingOrder); got != want {
			mismatch("handling "+id, quote(want), quote(got))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrExpectationFailed, strings.Join(problems, "; "))
	}
	return nil
}

func orderIDs(orders []types.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = string(o.ID)
	}
	return ids
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return s
}

// Change is a transition observed while running a step. Rep is the 1-based
// repetition of the step's command that caused it.
type Change struct {
	Rep    int
	Change projection.Change
}

// StepResult records what one step did.
type StepResult struct {
	Label   string // command, with "xN" when repeated
	Applied int
	Changed int // commands that changed the kitchen
	Changes []Change
}

// Result is a completed scenario run.
type Result struct {
	Name  string
	Steps []StepResult
	Final types.Snapshot
	Board types.Board
}

// Run executes s from an empty kitchen. Every intermediate snapshot is
// validated; step and final expectations are checked as they are reached.
func Run(s *Scenario) (*Result, error) {
	return RunContext(context.Background(), s)
}

// RunContext is Run, abandoned at the next command once ctx is done.
func RunContext(ctx context.Context, s *Scenario) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	e := engine.New(s.CookSeconds)
	state := types.Snapshot{}
	res := &Result{Name: s.Name, Steps: make([]StepResult, 0, len(s.Steps))}

	for i, st := range s.Steps {
		cmd, _ := st.Command()
		n := st.Times()
		sr := StepResult{Label: cmd.String()}
		if n > 1 {
			sr.Label = fmt.Sprintf("%s x%d", sr.Label, n)
		}

		for rep := 0; rep < n; rep++ {
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("step %d (%s): %w", i+1, cmd, err)
			}
			next, changed := e.Apply(state, cmd)
			sr.Applied++
			if changed {
				sr.Changed++
				for _, ch := range projection.Changes(state, next) {
					sr.Changes = append(sr.Changes, Change{Rep: rep + 1, Change: ch})
				}
			}
			if err := engine.Validate(next); err != nil {
				return res, fmt.Errorf("step %d (%s): %w", i+1, cmd, err)
			}
			state = next
		}
		res.Steps = append(res.Steps, sr)

		if err := st.Expect.Check(projection.Project(state)); err != nil {
			return res, fmt.Errorf("step %d (%s): %w", i+1, sr.Label, err)
		}
	}

	res.Final = state
	res.Board = projection.Project(state)
	if err := s.Expect.Check(res.Board); err != nil {
		return res, fmt.Errorf("final board: %w", err)
	}
	return res, nil
}

// RunFile loads and runs a scenario file.
func RunFile(path string) (*Result, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Run(s)
}

// Transcript renders a result as text: one block per step listing the
// status changes it caused, then the final board.
func Transcript(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scenario: %s\n", r.Name)
	for i, st := range r.Steps {
		fmt.Fprintf(&sb, "%d. %s", i+1, st.Label)
		if st.Changed == 0 {
			sb.WriteString(" (no-op)")
		}
		sb.WriteByte('\n')
		for _, ch := range st.Changes {
			if st.Applied > 1 {
				fmt.Fprintf(&sb, "   [%d] %s\n", ch.Rep, ch.Change)
			} else {
				fmt.Fprintf(&sb, "   %s\n", ch.Change)
			}
		}
	}
	sb.WriteString("final:\n")
	sb.WriteString(projection.Render(r.Board))
	return sb.String()
}
