// ============================================================================
// cookbot Metrics - Prometheus instrumentation
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: count kitchen transitions and expose current board levels
//
// Metric families:
//
//   1. Counters - monotonically increasing:
//      - cookbot_orders_created_total{type}
//      - cookbot_orders_assigned_total{type}
//      - cookbot_orders_completed_total{type}
//      - cookbot_orders_requeued_total{type}   cooking -> pending on withdrawal
//      - cookbot_bots_added_total
//      - cookbot_bots_withdrawn_total
//      - cookbot_commands_total{action,changed}
//      - cookbot_journal_errors_total
//
//   2. Histogram:
//      - cookbot_command_duration_seconds{action}  time spent applying a command
//
//   3. Gauges - current board:
//      - cookbot_orders{status,type}
//      - cookbot_bots{status}
//
// Useful queries:
//
//   # orders completed per minute
//   rate(cookbot_orders_completed_total[1m]) * 60
//
//   # vip backlog
//   cookbot_orders{status="pending",type="vip"}
//
//   # bot utilisation
//   cookbot_bots{status="cooking"} / ignoring(status) sum(cookbot_bots)
//
// Counters are derived from projection.Changes so that every transition is
// counted once regardless of which command caused it.
// ============================================================================

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ChuLiYu/cookbot/internal/projection"
	"github.com/ChuLiYu/cookbot/pkg/types"
)

const namespace = "cookbot"

// Collector holds the kitchen metrics.
type Collector struct {
	ordersCreated   *prometheus.CounterVec
	ordersAssigned  *prometheus.CounterVec
	ordersCompleted *prometheus.CounterVec
	ordersRequeued  *prometheus.CounterVec
	botsAdded       prometheus.Counter
	botsWithdrawn   prometheus.Counter
	commands        *prometheus.CounterVec
	journalErrors   prometheus.Counter

	commandDuration *prometheus.HistogramVec

	orders *prometheus.GaugeVec
	bots   *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// NewCollector creates the kitchen metrics and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Total number of orders submitted",
		}, []string{"type"}),
		ordersAssigned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_assigned_total",
			Help:      "Total number of orders handed to a bot",
		}, []string{"type"}),
		ordersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_completed_total",
			Help:      "Total number of orders completed",
		}, []string{"type"}),
		ordersRequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_requeued_total",
			Help:      "Total number of cooking orders returned to pending by a bot withdrawal",
		}, []string{"type"}),
		botsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bots_added_total",
			Help:      "Total number of bots created",
		}),
		botsWithdrawn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bots_withdrawn_total",
			Help:      "Total number of bots removed",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands applied, by action and whether the kitchen changed",
		}, []string{"action", "changed"}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Commands that could not be written to the journal",
		}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent applying a command",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		}, []string{"action"}),
		orders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orders",
			Help:      "Current number of orders by status and type",
		}, []string{"status", "type"}),
		bots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bots",
			Help:      "Current number of bots by status",
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.ordersCreated,
		c.ordersAssigned,
		c.ordersCompleted,
		c.ordersRequeued,
		c.botsAdded,
		c.botsWithdrawn,
		c.commands,
		c.journalErrors,
		c.commandDuration,
		c.orders,
		c.bots,
	)

	c.gatherer = prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

// RecordCommand counts one applied command and its duration.
func (c *Collector) RecordCommand(action string, changed bool, d time.Duration) {
	c.commands.WithLabelValues(action, strconv.FormatBool(changed)).Inc()
	c.commandDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordJournalError counts a failed journal append.
func (c *Collector) RecordJournalError() {
	c.journalErrors.Inc()
}

// Observe counts the transitions in changes.
func (c *Collector) Observe(changes []projection.Change) {
	for _, ch := range changes {
		switch ch.Entity {
		case projection.EntityOrder:
			t := string(ch.OrderType)
			switch {
			case ch.From == "":
				c.ordersCreated.WithLabelValues(t).Inc()
				if ch.To == string(types.OrderCooking) {
					c.ordersAssigned.WithLabelValues(t).Inc()
				}
			case ch.IsOrder(types.OrderPending, types.OrderCooking):
				c.ordersAssigned.WithLabelValues(t).Inc()
			case ch.IsOrder(types.OrderCooking, types.OrderCompleted):
				c.ordersCompleted.WithLabelValues(t).Inc()
			case ch.IsOrder(types.OrderCooking, types.OrderPending):
				c.ordersRequeued.WithLabelValues(t).Inc()
			}
		case projection.EntityBot:
			switch {
			case ch.From == "":
				c.botsAdded.Inc()
			case ch.To == "":
				c.botsWithdrawn.Inc()
			}
		}
	}
}

// UpdateBoard sets the gauges from the current board.
func (c *Collector) UpdateBoard(b types.Board) {
	vip, normal := string(types.OrderVIP), string(types.OrderNormal)
	pending := string(types.OrderPending)

	c.orders.WithLabelValues(pending, vip).Set(float64(b.Stats.PendingVIP))
	c.orders.WithLabelValues(pending, normal).Set(float64(b.Stats.Pending - b.Stats.PendingVIP))
	setByType(c.orders, string(types.OrderCooking), b.Cooking)
	setByType(c.orders, string(types.OrderCompleted), b.Completed)

	c.bots.WithLabelValues(string(types.BotIdle)).Set(float64(b.Stats.IdleBots))
	c.bots.WithLabelValues(string(types.BotCooking)).Set(float64(b.Stats.CookingBots))
}

func setByType(g *prometheus.GaugeVec, status string, orders []types.Order) {
	var vip, normal int
	for _, o := range orders {
		if o.Type == types.OrderVIP {
			vip++
		} else {
			normal++
		}
	}
	g.WithLabelValues(status, string(types.OrderVIP)).Set(float64(vip))
	g.WithLabelValues(status, string(types.OrderNormal)).Set(float64(normal))
}

// Handler serves the metrics of the registry the collector was created with.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
