// Package scenario runs scripted kitchens described in YAML and checks the
// boards they produce.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/cookbot/internal/engine"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

var (
	// ErrInvalidScenario is returned for a scenario that cannot be run.
	ErrInvalidScenario = errors.New("invalid scenario")
	// ErrExpectationFailed is returned when a board does not match an
	// expectation.
	ErrExpectationFailed = errors.New("expectation failed")
)

// Step actions.
const (
	StepAddBot      = "add_bot"
	StepAddOrder    = "add_order"
	StepWithdrawBot = "withdraw_bot"
	StepTick        = "tick"
)

// Scenario is a scripted sequence of kitchen commands.
type Scenario struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	CookSeconds int          `yaml:"cook_seconds,omitempty"` // 0 uses the default
	Steps       []Step       `yaml:"steps"`
	Expect      *Expectation `yaml:"expect,omitempty"` // checked against the final board
}

// Step is one command, optionally repeated.
type Step struct {
	Action string       `yaml:"action"`
	Type   string       `yaml:"type,omitempty"`  // add_order
	Bot    string       `yaml:"bot,omitempty"`   // withdraw_bot
	Count  int          `yaml:"count,omitempty"` // repetitions, default 1
	Expect *Expectation `yaml:"expect,omitempty"`
}

// Command returns the engine command the step applies.
func (st Step) Command() (engine.Command, error) {
	if st.Count < 0 {
		return engine.Command{}, fmt.Errorf("negative count %d", st.Count)
	}
	switch strings.ToLower(st.Action) {
	case StepAddBot:
		return engine.AddBotCommand(), nil
	case StepAddOrder:
		t, err := types.ParseOrderType(st.Type)
		if err != nil {
			return engine.Command{}, err
		}
		return engine.AddOrderCommand(t), nil
	case StepWithdrawBot:
		if st.Bot == "" {
			return engine.Command{}, errors.New("withdraw_bot needs a bot")
		}
		return engine.WithdrawBotCommand(types.BotID(st.Bot)), nil
	case StepTick:
		return engine.TickCommand(), nil
	default:
		return engine.Command{}, fmt.Errorf("unknown action %q", st.Action)
	}
}

// Times returns how often the command is applied.
func (st Step) Times() int {
	if st.Count <= 0 {
		return 1
	}
	return st.Count
}

// Parse decodes a scenario, rejecting unknown fields.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks that every step can be turned into commands.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidScenario)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("%w: steps list is required and must be non-empty", ErrInvalidScenario)
	}
	if s.CookSeconds < 0 {
		return fmt.Errorf("%w: cook_seconds must not be negative", ErrInvalidScenario)
	}
	for i, st := range s.Steps {
		if _, err := st.Command(); err != nil {
			return fmt.Errorf("%w: steps[%d]: %v", ErrInvalidScenario, i, err)
		}
	}
	return nil
}
