package wal

import "github.com/ChuLiYu/cookbot/pkg/types"

// ============================================================================
// WAL Type Definitions
// Responsibility: Define the kitchen command journal records
// ============================================================================

// EventType is the kitchen command an event records.
// Values match the engine action names.
type EventType string

const (
	EventStart       EventType = "START"        // Empty kitchen opened; begins a run
	EventAddBot      EventType = "ADD_BOT"      // Bot created
	EventAddOrder    EventType = "ADD_ORDER"    // Order submitted
	EventWithdrawBot EventType = "WITHDRAW_BOT" // Bot removed
	EventTick        EventType = "TICK"         // One second elapsed with a bot cooking
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventStart, EventAddBot, EventAddOrder, EventWithdrawBot, EventTick:
		return true
	}
	return false
}

// Record is the caller-supplied part of an event.
type Record struct {
	Type        EventType
	BotID       types.BotID     // WITHDRAW_BOT only
	OrderType   types.OrderType // ADD_ORDER only
	Instance    string          // START only
	CookSeconds int             // START only
}

// Event represents one journaled command
type Event struct {
	Seq       uint64          `json:"seq"`                  // Monotonic, never reset by Rotate
	Type      EventType       `json:"type"`                 // Command kind
	BotID     types.BotID     `json:"bot_id,omitempty"`     // Withdrawn bot
	OrderType types.OrderType `json:"order_type,omitempty"` // Submitted order type
	Timestamp int64           `json:"timestamp"`            // Unix milliseconds
	Checksum  uint32          `json:"checksum"`             // CRC32 of the other fields

	Instance    string `json:"instance,omitempty"`     // Kitchen that started the run
	CookSeconds int    `json:"cook_seconds,omitempty"` // Cook time of the run
}

// EventHandler processes one event during Replay.
// Returning an error stops the replay.
type EventHandler func(event Event) error
