package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ticksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marginguard",
		Subsystem: "scheduler",
		Name:      "ticks_total",
		Help:      "Scheduler ticks by outcome",
	},
	[]string{"outcome"}, // executed, skipped, blocked, failed, timeout
)

var tickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "marginguard",
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock duration of one protection tick",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	},
)

var activeSchedules = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "marginguard",
		Subsystem: "scheduler",
		Name:      "active_schedules",
		Help:      "Number of automations with a live recurring schedule",
	},
)

var actionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marginguard",
		Subsystem: "engine",
		Name:      "actions_total",
		Help:      "Corrective actions attempted, by kind and outcome",
	},
	[]string{"action", "outcome"},
)

var gateDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marginguard",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Protection gate decisions by outcome",
	},
	[]string{"outcome"},
)

var notificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marginguard",
		Subsystem: "notify",
		Name:      "dispatches_total",
		Help:      "Notification dispatch attempts by channel and outcome",
	},
	[]string{"channel", "outcome"},
)
