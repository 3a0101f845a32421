package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	monitorChecks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "farewatch_monitor_checks_total",
		Help: "The total number of completed monitor checks",
	})
	monitorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_monitor_transitions_total",
		Help: "Monitor status changes by resulting status",
	}, []string{"status"})
	activeMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "farewatch_active_monitors",
		Help: "The number of monitors currently active",
	})
	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_side_effect_failures_total",
		Help: "Failed notifications and persistence calls",
	}, []string{"kind"})
	priceSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_price_signals_total",
		Help: "Route price moves flagged by the detector",
	}, []string{"type"})
	quotesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "farewatch_quotes_received_total",
		Help: "Observed fare quotes by provider",
	}, []string{"provider"})
	checkPrices = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "farewatch_check_price_usd",
		Help:    "Effective price seen by monitor checks",
		Buckets: []float64{100, 200, 300, 450, 600, 900, 1200, 1600, 2200},
	})
)
