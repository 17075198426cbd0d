// ============================================================================
// cookbot Board Projection
// ============================================================================
//
// Package: internal/projection
// Purpose: read-only views derived from a kitchen snapshot
//
// Project  - group orders by status for display (vip first in the pending lane)
// Changes  - status transitions between two snapshots, feeding metrics and the
//            live board feed
// Render   - plain-text board used by the CLI and golden tests
//
// Nothing here mutates its input.
// ============================================================================

package projection

import (
	"fmt"
	"strings"

	"github.com/ChuLiYu/cookbot/pkg/types"
)

// Project builds the display board of s.
//
// Pending lists vip orders first, then normal orders, each in creation order.
// Cooking and Completed keep creation order. Bots keep snapshot order.
func Project(s types.Snapshot) types.Board {
	b := types.Board{
		Pending:   []types.Order{},
		Cooking:   []types.Order{},
		Completed: []types.Order{},
		Bots:      make([]types.Bot, 0, len(s.Bots)),
	}

	c := s.Clone()
	var normal []types.Order
	for _, o := range c.Orders {
		switch o.Status {
		case types.OrderPending:
			if o.Type == types.OrderVIP {
				b.Pending = append(b.Pending, o)
				b.Stats.PendingVIP++
			} else {
				normal = append(normal, o)
			}
			b.Stats.Pending++
		case types.OrderCooking:
			b.Cooking = append(b.Cooking, o)
			b.Stats.Cooking++
		case types.OrderCompleted:
			b.Completed = append(b.Completed, o)
			b.Stats.Completed++
		}
	}
	b.Pending = append(b.Pending, normal...)

	for _, bot := range c.Bots {
		b.Bots = append(b.Bots, bot)
		b.Stats.Bots++
		if bot.Status == types.BotCooking {
			b.Stats.CookingBots++
		} else {
			b.Stats.IdleBots++
		}
	}
	return b
}

// Entity is the kind of object a Change describes.
type Entity string

const (
	EntityOrder Entity = "order"
	EntityBot   Entity = "bot"
)

// Change is one status transition between two snapshots.
// From is empty for a newly created entity, To is empty for a removed bot.
type Change struct {
	Entity    Entity          `json:"entity"`
	ID        string          `json:"id"`
	OrderType types.OrderType `json:"order_type,omitempty"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to,omitempty"`
}

func (c Change) String() string {
	from, to := c.From, c.To
	if from == "" {
		from = "-"
	}
	if to == "" {
		to = "-"
	}
	return fmt.Sprintf("%s %s: %s -> %s", c.Entity, c.ID, from, to)
}

// IsOrder reports whether c moves an order from one status to another.
func (c Change) IsOrder(from, to types.OrderStatus) bool {
	return c.Entity == EntityOrder && c.From == string(from) && c.To == string(to)
}

// Changes lists the status transitions from prev to next: orders in creation
// order first, then bots in prev order followed by bots new in next.
func Changes(prev, next types.Snapshot) []Change {
	var out []Change

	before := make(map[types.OrderID]types.OrderStatus, len(prev.Orders))
	for _, o := range prev.Orders {
		before[o.ID] = o.Status
	}
	for _, o := range next.Orders {
		was, ok := before[o.ID]
		if ok && was == o.Status {
			continue
		}
		c := Change{Entity: EntityOrder, ID: string(o.ID), OrderType: o.Type, To: string(o.Status)}
		if ok {
			c.From = string(was)
		}
		out = append(out, c)
	}

	for _, b := range prev.Bots {
		i := next.FindBot(b.ID)
		switch {
		case i == -1:
			out = append(out, Change{Entity: EntityBot, ID: string(b.ID), From: string(b.Status)})
		case next.Bots[i].Status != b.Status:
			out = append(out, Change{
				Entity: EntityBot, ID: string(b.ID),
				From: string(b.Status), To: string(next.Bots[i].Status),
			})
		}
	}
	for _, b := range next.Bots {
		if prev.FindBot(b.ID) == -1 {
			out = append(out, Change{Entity: EntityBot, ID: string(b.ID), To: string(b.Status)})
		}
	}
	return out
}

// Render formats a board as plain text, one section per lane.
func Render(b types.Board) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "== PENDING (%d, vip %d) ==\n", b.Stats.Pending, b.Stats.PendingVIP)
	writeOrders(&sb, b.Pending)

	fmt.Fprintf(&sb, "== COOKING (%d) ==\n", b.Stats.Cooking)
	writeOrders(&sb, b.Cooking)

	fmt.Fprintf(&sb, "== COMPLETED (%d) ==\n", b.Stats.Completed)
	writeOrders(&sb, b.Completed)

	fmt.Fprintf(&sb, "== BOTS (%d, idle %d, cooking %d) ==\n",
		b.Stats.Bots, b.Stats.IdleBots, b.Stats.CookingBots)
	if len(b.Bots) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, bot := range b.Bots {
		fmt.Fprintf(&sb, "%s %s", bot.ID, bot.Status)
		if bot.HandlingOrder != "" {
			fmt.Fprintf(&sb, " %s", bot.HandlingOrder)
		}
		if bot.RemainingSeconds != nil {
			fmt.Fprintf(&sb, " %ds", *bot.RemainingSeconds)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func writeOrders(sb *strings.Builder, orders []types.Order) {
	if len(orders) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	for _, o := range orders {
		fmt.Fprintf(sb, "%s [%s]", o.ID, o.Type)
		if o.RemainingSeconds != nil {
			fmt.Fprintf(sb, " %ds", *o.RemainingSeconds)
		}
		sb.WriteByte('\n')
	}
}
