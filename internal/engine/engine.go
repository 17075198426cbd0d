// ============================================================================
// cookbot State Transition Engine
// ============================================================================
//
// Package: internal/engine
// File: engine.go
// Purpose: pure state transitions of a POS kitchen snapshot
//
// Order state machine:
//   Pending
//      ↓ match (AddBot / AddOrder / Tick)
//   Cooking ──(bot withdrawn)──→ Pending
//      ↓ remaining reaches 0 and one more tick passes
//   Completed (terminal)
//
// Bot state machine:
//   Idle ⇄ Cooking, removal is terminal from either state.
//
// Purity:
//   Every transition clones its input and returns the clone. A Snapshot held
//   by a caller is never modified, so every transition is replayable and
//   independently testable.
//
// Matching:
//   AddBot, AddOrder and every finished cook in Tick make exactly one match
//   attempt. WithdrawBot makes none: an order freed by a withdrawal waits for
//   the next AddBot, AddOrder or Tick.
//
// ============================================================================

package engine

import "github.com/ChuLiYu/cookbot/pkg/types"

// Engine applies kitchen transitions with a fixed cook duration.
// The zero value cooks for types.DefaultCookSeconds.
type Engine struct {
	CookSeconds int
}

// Default is the engine used by the package-level helpers.
var Default = Engine{CookSeconds: types.DefaultCookSeconds}

// New returns an engine cooking for the given number of seconds.
func New(cookSeconds int) Engine {
	return Engine{CookSeconds: cookSeconds}
}

func (e Engine) cookSeconds() int {
	if e.CookSeconds <= 0 {
		return types.DefaultCookSeconds
	}
	return e.CookSeconds
}

// AddBot mints an idle bot, appends it and attempts one assignment.
func (e Engine) AddBot(s types.Snapshot) types.Snapshot {
	next := s.Clone()
	next.BotCount++
	next.Bots = append(next.Bots, types.Bot{
		ID:     types.NewBotID(next.BotCount),
		Status: types.BotIdle,
	})
	e.assign(&next)
	return next
}

// AddOrder mints a pending order of the given type, appends it and attempts
// one assignment.
func (e Engine) AddOrder(s types.Snapshot, orderType types.OrderType) types.Snapshot {
	next := s.Clone()
	next.OrderCount++
	next.Orders = append(next.Orders, types.Order{
		ID:     types.NewOrderID(next.OrderCount),
		Status: types.OrderPending,
		Type:   orderType,
	})
	e.assign(&next)
	return next
}

// WithdrawBot removes a bot. An unknown id returns s unchanged.
// If the bot was cooking, its order goes back to pending and loses its
// progress. No assignment is attempted.
func (e Engine) WithdrawBot(s types.Snapshot, id types.BotID) types.Snapshot {
	idx := s.FindBot(id)
	if idx == -1 {
		return s
	}

	next := s.Clone()
	bot := next.Bots[idx]
	next.Bots = append(next.Bots[:idx], next.Bots[idx+1:]...)

	if bot.Status == types.BotCooking {
		if oi := next.FindOrder(bot.HandlingOrder); oi != -1 {
			next.Orders[oi].Status = types.OrderPending
			next.Orders[oi].RemainingSeconds = nil
		}
	}
	return next
}

// Tick advances every cooking bot by one second.
//
// A bot whose remaining time is already zero completes its order, becomes
// idle and immediately gets one assignment attempt. Any other cooking bot
// and its order count down together. If no bot was cooking, Tick returns s
// and false.
func (e Engine) Tick(s types.Snapshot) (types.Snapshot, bool) {
	if s.CookingBots() == 0 {
		return s, false
	}

	next := s.Clone()
	for i := range next.Bots {
		bot := &next.Bots[i]
		if bot.Status != types.BotCooking {
			continue
		}

		oi := next.FindOrder(bot.HandlingOrder)
		var order *types.Order
		if oi != -1 {
			order = &next.Orders[oi]
		}

		if bot.RemainingSeconds != nil && *bot.RemainingSeconds == 0 {
			if order != nil && order.Status == types.OrderCooking {
				order.Status = types.OrderCompleted
				order.RemainingSeconds = nil
			}
			bot.Status = types.BotIdle
			bot.HandlingOrder = ""
			bot.RemainingSeconds = nil
			e.assign(&next)
			continue
		}

		if bot.RemainingSeconds != nil {
			bot.RemainingSeconds = types.Seconds(*bot.RemainingSeconds - 1)
		}
		if order != nil && order.RemainingSeconds != nil {
			order.RemainingSeconds = types.Seconds(*order.RemainingSeconds - 1)
		}
	}
	return next, true
}

// assign applies one Match result to s, which must already be a private copy.
func (e Engine) assign(s *types.Snapshot) bool {
	bi, oi, ok := Match(s.Bots, s.Orders)
	if !ok {
		return false
	}
	cook := e.cookSeconds()

	s.Orders[oi].Status = types.OrderCooking
	s.Orders[oi].RemainingSeconds = types.Seconds(cook)

	s.Bots[bi].Status = types.BotCooking
	s.Bots[bi].HandlingOrder = s.Orders[oi].ID
	s.Bots[bi].RemainingSeconds = types.Seconds(cook)
	return true
}

// AddBot applies Default.AddBot.
func AddBot(s types.Snapshot) types.Snapshot { return Default.AddBot(s) }

// AddOrder applies Default.AddOrder.
func AddOrder(s types.Snapshot, t types.OrderType) types.Snapshot { return Default.AddOrder(s, t) }

// WithdrawBot applies Default.WithdrawBot.
func WithdrawBot(s types.Snapshot, id types.BotID) types.Snapshot { return Default.WithdrawBot(s, id) }

// Tick applies Default.Tick.
func Tick(s types.Snapshot) (types.Snapshot, bool) { return Default.Tick(s) }
