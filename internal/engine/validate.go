package engine

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/cookbot/pkg/types"
)

// ErrInconsistent is wrapped by every Validate failure.
var ErrInconsistent = errors.New("inconsistent snapshot")

// Validate checks the structural invariants of a snapshot and returns the
// first violation found, bots before orders. A failure means a logic bug, not
// a recoverable condition.
//
//   - a bot is cooking iff it has a handling order and remaining seconds
//   - a cooking bot references a cooking order with equal remaining seconds
//   - every cooking order is referenced by exactly one bot
//   - pending and completed orders carry no remaining seconds
//   - ids are unique and never exceed the creation counters
func Validate(s types.Snapshot) error {
	bots := make(map[types.BotID]struct{}, len(s.Bots))
	handledBy := make(map[types.OrderID]types.BotID, len(s.Bots))

	for _, b := range s.Bots {
		if _, dup := bots[b.ID]; dup {
			return inconsistent("duplicate bot id %s", b.ID)
		}
		bots[b.ID] = struct{}{}

		if n, ok := b.ID.Seq(); !ok || n > s.BotCount {
			return inconsistent("bot id %s outside counter %d", b.ID, s.BotCount)
		}

		switch b.Status {
		case types.BotIdle:
			if b.HandlingOrder != "" || b.RemainingSeconds != nil {
				return inconsistent("idle bot %s holds order %q", b.ID, b.HandlingOrder)
			}
		case types.BotCooking:
			if b.HandlingOrder == "" || b.RemainingSeconds == nil {
				return inconsistent("cooking bot %s has no order or timer", b.ID)
			}
			if other, dup := handledBy[b.HandlingOrder]; dup {
				return inconsistent("order %s handled by %s and %s", b.HandlingOrder, other, b.ID)
			}
			handledBy[b.HandlingOrder] = b.ID

			oi := s.FindOrder(b.HandlingOrder)
			if oi == -1 {
				return inconsistent("bot %s handles unknown order %s", b.ID, b.HandlingOrder)
			}
			o := s.Orders[oi]
			if o.Status != types.OrderCooking {
				return inconsistent("bot %s handles %s order %s", b.ID, o.Status, o.ID)
			}
			if o.RemainingSeconds == nil || *o.RemainingSeconds != *b.RemainingSeconds {
				return inconsistent("bot %s and order %s disagree on remaining time", b.ID, o.ID)
			}
		default:
			return inconsistent("bot %s has unknown status %q", b.ID, b.Status)
		}
	}

	orders := make(map[types.OrderID]struct{}, len(s.Orders))
	for _, o := range s.Orders {
		if _, dup := orders[o.ID]; dup {
			return inconsistent("duplicate order id %s", o.ID)
		}
		orders[o.ID] = struct{}{}

		if n, ok := o.ID.Seq(); !ok || n > s.OrderCount {
			return inconsistent("order id %s outside counter %d", o.ID, s.OrderCount)
		}

		switch o.Status {
		case types.OrderPending, types.OrderCompleted:
			if o.RemainingSeconds != nil {
				return inconsistent("%s order %s has remaining time", o.Status, o.ID)
			}
		case types.OrderCooking:
			if _, ok := handledBy[o.ID]; !ok {
				return inconsistent("cooking order %s has no bot", o.ID)
			}
		default:
			return inconsistent("order %s has unknown status %q", o.ID, o.Status)
		}
	}
	return nil
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInconsistent, fmt.Sprintf(format, args...))
}
