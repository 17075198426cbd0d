// Package types defines the core domain model of the cookbot kitchen: bots,
// orders and the snapshot that owns them.
package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultCookSeconds is how long a bot cooks one order.
const DefaultCookSeconds = 10

// Id prefixes. The sequence number follows directly: BT1, ON1.
const (
	BotIDPrefix   = "BT"
	OrderIDPrefix = "ON"
)

// ErrInvalidOrderType is returned when an order type string cannot be parsed.
var ErrInvalidOrderType = errors.New("invalid order type")

// BotID bot unique identifier
type BotID string

// OrderID order unique identifier
type OrderID string

// BotStatus bot state
type BotStatus string

const (
	BotIdle    BotStatus = "idle"    // waiting for an order
	BotCooking BotStatus = "cooking" // handling exactly one order
)

// OrderStatus order state
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"   // waiting for a bot
	OrderCooking   OrderStatus = "cooking"   // being cooked by a bot
	OrderCompleted OrderStatus = "completed" // terminal
)

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted
}

// OrderType is the priority class of an order.
type OrderType string

const (
	OrderNormal OrderType = "normal"
	OrderVIP    OrderType = "vip"
)

// ParseOrderType validates boundary input. "standard" and "expedited" are
// accepted as aliases of normal and vip.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "standard":
		return OrderNormal, nil
	case "vip", "expedited":
		return OrderVIP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrderType, s)
	}
}

// Bot is a cooking unit.
type Bot struct {
	ID               BotID     `json:"id"`
	Status           BotStatus `json:"status"`
	HandlingOrder    OrderID   `json:"handling_order,omitempty"`    // set iff cooking
	RemainingSeconds *int      `json:"remaining_seconds,omitempty"` // set iff cooking
}

// Order is a unit of work.
type Order struct {
	ID               OrderID     `json:"id"`
	Status           OrderStatus `json:"status"`
	Type             OrderType   `json:"type"`
	RemainingSeconds *int        `json:"remaining_seconds,omitempty"` // set iff cooking
}

// Snapshot is the complete state of one POS instance.
// Transitions never modify a Snapshot in place; they return a new one.
type Snapshot struct {
	Bots       []Bot   `json:"bots"`
	Orders     []Order `json:"orders"`
	BotCount   int     `json:"bot_count"`   // bots ever created
	OrderCount int     `json:"order_count"` // orders ever created
}

// Clone returns a deep copy sharing no slices or pointers with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Bots:       make([]Bot, len(s.Bots)),
		Orders:     make([]Order, len(s.Orders)),
		BotCount:   s.BotCount,
		OrderCount: s.OrderCount,
	}
	for i, b := range s.Bots {
		b.RemainingSeconds = cloneInt(b.RemainingSeconds)
		out.Bots[i] = b
	}
	for i, o := range s.Orders {
		o.RemainingSeconds = cloneInt(o.RemainingSeconds)
		out.Orders[i] = o
	}
	return out
}

// FindBot returns the index of the bot with the given id, or -1.
func (s Snapshot) FindBot(id BotID) int {
	for i := range s.Bots {
		if s.Bots[i].ID == id {
			return i
		}
	}
	return -1
}

// FindOrder returns the index of the order with the given id, or -1.
func (s Snapshot) FindOrder(id OrderID) int {
	for i := range s.Orders {
		if s.Orders[i].ID == id {
			return i
		}
	}
	return -1
}

// CookingBots counts bots currently cooking.
func (s Snapshot) CookingBots() int {
	n := 0
	for _, b := range s.Bots {
		if b.Status == BotCooking {
			n++
		}
	}
	return n
}

// NewBotID mints the id for the n-th bot.
func NewBotID(n int) BotID {
	return BotID(BotIDPrefix + strconv.Itoa(n))
}

// NewOrderID mints the id for the n-th order.
func NewOrderID(n int) OrderID {
	return OrderID(OrderIDPrefix + strconv.Itoa(n))
}

// Seq extracts the sequence number embedded in a bot id.
func (id BotID) Seq() (int, bool) {
	return parseSeq(string(id), BotIDPrefix)
}

// Seq extracts the sequence number embedded in an order id.
func (id OrderID) Seq() (int, bool) {
	return parseSeq(string(id), OrderIDPrefix)
}

func parseSeq(id, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Seconds returns a pointer to a copy of v.
func Seconds(v int) *int {
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Board is the display-oriented projection of a Snapshot.
type Board struct {
	Pending   []Order    `json:"pending"`
	Cooking   []Order    `json:"cooking"`
	Completed []Order    `json:"completed"`
	Bots      []Bot      `json:"bots"`
	Stats     BoardStats `json:"stats"`
}

// BoardStats counts bots and orders per status.
type BoardStats struct {
	Bots        int `json:"bots"`
	IdleBots    int `json:"idle_bots"`
	CookingBots int `json:"cooking_bots"`
	Pending     int `json:"pending"`
	PendingVIP  int `json:"pending_vip"`
	Cooking     int `json:"cooking"`
	Completed   int `json:"completed"`
}

// ExportSchemaVersion is the current layout of ExportData.
const ExportSchemaVersion = 1

// ExportData is a point-in-time export of one kitchen.
type ExportData struct {
	SchemaVer   int       `json:"schema_version"`
	InstanceID  string    `json:"instance_id,omitempty"`
	LastSeq     uint64    `json:"last_seq"` // last journal event included in State
	CookSeconds int       `json:"cook_seconds"`
	ExportedAt  time.Time `json:"exported_at"`
	State       Snapshot  `json:"state"`
}
