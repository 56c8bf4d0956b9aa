package marketdata

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var breakerStateGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "marginguard",
		Subsystem: "marketdata",
		Name:      "breaker_open",
		Help:      "1 when the provider's circuit breaker is open, 0 otherwise",
	},
	[]string{"provider"},
)

var breakerOpenTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marginguard",
		Subsystem: "marketdata",
		Name:      "breaker_open_total",
		Help:      "Number of times a provider's circuit breaker opened",
	},
	[]string{"provider"},
)

var fetchLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "marginguard",
		Subsystem: "marketdata",
		Name:      "fetch_latency_seconds",
		Help:      "Latency of provider ticker fetches",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	},
	[]string{"provider", "outcome"},
)

var snapshotAge = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "marginguard",
		Subsystem: "marketdata",
		Name:      "snapshot_age_seconds",
		Help:      "Age of the cached market snapshot at last read",
	},
)

var fetchBySource = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "marginguard",
		Subsystem: "marketdata",
		Name:      "reads_total",
		Help:      "Market data reads by resolved source tier",
	},
	[]string{"source"},
)
