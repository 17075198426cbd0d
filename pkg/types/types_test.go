package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderType(t *testing.T) {
	tests := []struct {
		in      string
		want    OrderType
		wantErr bool
	}{
		{"normal", OrderNormal, false},
		{"Standard", OrderNormal, false},
		{" VIP ", OrderVIP, false},
		{"expedited", OrderVIP, false},
		{"", "", true},
		{"urgent", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOrderType(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOrderType)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDSequence(t *testing.T) {
	assert.Equal(t, BotID("BT12"), NewBotID(12))
	assert.Equal(t, OrderID("ON3"), NewOrderID(3))

	n, ok := NewBotID(12).Seq()
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = OrderID("BT1").Seq()
	assert.False(t, ok)
	_, ok = OrderID("ON0").Seq()
	assert.False(t, ok)
	_, ok = BotID("BTx").Seq()
	assert.False(t, ok)
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	s := Snapshot{
		Bots:       []Bot{{ID: "BT1", Status: BotCooking, HandlingOrder: "ON1", RemainingSeconds: Seconds(4)}},
		Orders:     []Order{{ID: "ON1", Status: OrderCooking, Type: OrderVIP, RemainingSeconds: Seconds(4)}},
		BotCount:   1,
		OrderCount: 1,
	}

	c := s.Clone()
	require.Equal(t, s, c)

	*c.Bots[0].RemainingSeconds = 0
	c.Orders[0].Status = OrderCompleted
	c.Bots = append(c.Bots, Bot{ID: "BT2"})

	assert.Equal(t, 4, *s.Bots[0].RemainingSeconds)
	assert.Equal(t, OrderCooking, s.Orders[0].Status)
	assert.Len(t, s.Bots, 1)
}

func TestSnapshotLookups(t *testing.T) {
	s := Snapshot{
		Bots:   []Bot{{ID: "BT1", Status: BotIdle}, {ID: "BT2", Status: BotCooking}},
		Orders: []Order{{ID: "ON1"}, {ID: "ON2"}},
	}

	assert.Equal(t, 1, s.FindBot("BT2"))
	assert.Equal(t, -1, s.FindBot("BT3"))
	assert.Equal(t, 0, s.FindOrder("ON1"))
	assert.Equal(t, -1, s.FindOrder("ON9"))
	assert.Equal(t, 1, s.CookingBots())
	assert.True(t, OrderCompleted.IsTerminal())
	assert.False(t, OrderCooking.IsTerminal())
}

func TestSnapshotJSON(t *testing.T) {
	s := Snapshot{
		Bots:       []Bot{{ID: "BT1", Status: BotIdle}},
		Orders:     []Order{{ID: "ON1", Status: OrderPending, Type: OrderNormal}},
		BotCount:   1,
		OrderCount: 1,
	}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"bots": [{"id": "BT1", "status": "idle"}],
		"orders": [{"id": "ON1", "status": "pending", "type": "normal"}],
		"bot_count": 1,
		"order_count": 1
	}`, string(data))
}
