package engine

import (
	"fmt"

	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Action names a kitchen command.
type Action string

const (
	ActionAddBot      Action = "ADD_BOT"      // mint an idle bot
	ActionAddOrder    Action = "ADD_ORDER"    // mint a pending order
	ActionWithdrawBot Action = "WITHDRAW_BOT" // remove a bot, requeue its order
	ActionTick        Action = "TICK"         // advance one second
)

// Command is one input to Apply.
type Command struct {
	Action    Action          `json:"action"`
	OrderType types.OrderType `json:"order_type,omitempty"` // ADD_ORDER only
	BotID     types.BotID     `json:"bot_id,omitempty"`     // WITHDRAW_BOT only
}

// String renders a command for logs.
func (c Command) String() string {
	switch c.Action {
	case ActionAddOrder:
		return fmt.Sprintf("%s(%s)", c.Action, c.OrderType)
	case ActionWithdrawBot:
		return fmt.Sprintf("%s(%s)", c.Action, c.BotID)
	default:
		return string(c.Action)
	}
}

// AddBotCommand builds an ADD_BOT command.
func AddBotCommand() Command { return Command{Action: ActionAddBot} }

// AddOrderCommand builds an ADD_ORDER command.
func AddOrderCommand(t types.OrderType) Command {
	return Command{Action: ActionAddOrder, OrderType: t}
}

// WithdrawBotCommand builds a WITHDRAW_BOT command.
func WithdrawBotCommand(id types.BotID) Command {
	return Command{Action: ActionWithdrawBot, BotID: id}
}

// TickCommand builds a TICK command.
func TickCommand() Command { return Command{Action: ActionTick} }

// Apply dispatches cmd against s.
//
// changed is false when the command left the kitchen as it was: a withdrawal
// of an unknown bot, a tick with no cooking bot, or an unknown action. In
// those cases the returned snapshot is s itself.
func (e Engine) Apply(s types.Snapshot, cmd Command) (types.Snapshot, bool) {
	switch cmd.Action {
	case ActionAddBot:
		return e.AddBot(s), true
	case ActionAddOrder:
		return e.AddOrder(s, cmd.OrderType), true
	case ActionWithdrawBot:
		if s.FindBot(cmd.BotID) == -1 {
			return s, false
		}
		return e.WithdrawBot(s, cmd.BotID), true
	case ActionTick:
		return e.Tick(s)
	default:
		return s, false
	}
}

// Run applies cmds in order and returns the final snapshot.
func (e Engine) Run(s types.Snapshot, cmds ...Command) types.Snapshot {
	for _, cmd := range cmds {
		s, _ = e.Apply(s, cmd)
	}
	return s
}

// Apply applies Default.Apply.
func Apply(s types.Snapshot, cmd Command) (types.Snapshot, bool) { return Default.Apply(s, cmd) }
