// Package metrics exposes Prometheus instrumentation for the signal
// pipeline, following the teacher's metrics.Registry pattern (a custom
// registry plus promauto-registered vectors), generalized from
// per-trader P&L gauges to the quality/position/signal/fill-stream
// domain this module actually tracks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for traderwatch metrics.
	Registry = prometheus.NewRegistry()

	// ============================================
	// Trader Quality Metrics
	// ============================================

	TrackedTraders = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "traderwatch",
			Subsystem: "quality",
			Name:      "tracked_traders",
			Help:      "Number of tracked wallets per tier",
		},
		[]string{"tier"},
	)

	TierChangesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "quality",
			Name:      "tier_changes_total",
			Help:      "Total tier transitions recorded",
		},
		[]string{"from_tier", "to_tier"},
	)

	QualityEvalDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "traderwatch",
			Subsystem: "quality",
			Name:      "eval_duration_seconds",
			Help:      "Time to re-evaluate one wallet's trader quality",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{},
	)

	QualityEvalErrors = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "quality",
			Name:      "eval_errors_total",
			Help:      "Total trader-quality evaluation failures",
		},
	)

	// ============================================
	// Position Tracker Metrics
	// ============================================

	PositionEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "position",
			Name:      "events_total",
			Help:      "Position change events detected, by event type",
		},
		[]string{"event_type"},
	)

	OpenPositionsGauge = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "traderwatch",
			Subsystem: "position",
			Name:      "open_count",
			Help:      "Open positions currently tracked per coin",
		},
		[]string{"coin"},
	)

	PositionPollDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "traderwatch",
			Subsystem: "position",
			Name:      "poll_duration_seconds",
			Help:      "Duration of one full wallet-roster polling cycle",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	// ============================================
	// Signal Metrics
	// ============================================

	SignalsGeneratedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "signal",
			Name:      "generated_total",
			Help:      "Signals created, by signal tier",
		},
		[]string{"signal_tier"},
	)

	SignalsActiveGauge = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "traderwatch",
			Subsystem: "signal",
			Name:      "active_count",
			Help:      "Currently active signals",
		},
	)

	SignalOutcomesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "signal",
			Name:      "outcomes_total",
			Help:      "Closed signals, by outcome",
		},
		[]string{"outcome"},
	)

	SignalDurationHours = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "traderwatch",
			Subsystem: "signal",
			Name:      "duration_hours",
			Help:      "Time a signal stayed active before closing",
			Buckets:   []float64{1, 4, 12, 24, 48, 72, 120, 168},
		},
	)

	SignalFinalPnlPct = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "traderwatch",
			Subsystem: "signal",
			Name:      "final_pnl_pct",
			Help:      "Final P&L percent of closed signals",
			Buckets:   []float64{-50, -25, -10, -5, 0, 5, 10, 25, 50, 100},
		},
	)

	// ============================================
	// Fill Stream Metrics
	// ============================================

	FillsProcessedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "fillstream",
			Name:      "fills_processed_total",
			Help:      "Fill messages processed off the WS worker pool",
		},
	)

	FillsDuplicateTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "fillstream",
			Name:      "fills_duplicate_total",
			Help:      "Fill messages dropped as duplicates",
		},
	)

	FillsDroppedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "fillstream",
			Name:      "fills_dropped_total",
			Help:      "Fill messages dropped because the worker pool was saturated",
		},
	)

	ExitHooksTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "fillstream",
			Name:      "exit_hooks_total",
			Help:      "Closing fills that triggered a signal exit hook",
		},
	)

	WSReconnectsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "fillstream",
			Name:      "ws_reconnects_total",
			Help:      "WebSocket reconnects to the exchange fill channel",
		},
	)

	// ============================================
	// Scheduler / System Metrics
	// ============================================

	JobCycleDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "traderwatch",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of one scheduled job cycle",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"job"},
	)

	JobErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Scheduled job failures, by job name",
		},
		[]string{"job"},
	)

	JobSkippedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "traderwatch",
			Subsystem: "scheduler",
			Name:      "job_skipped_total",
			Help:      "Ticks skipped because the prior cycle was still running",
		},
		[]string{"job"},
	)
)

// Init registers the standard go/process collectors alongside the
// domain metrics above.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// ObserveJobCycle is a helper for timing a scheduled job cycle.
func ObserveJobCycle(job string, start time.Time) {
	JobCycleDuration.WithLabelValues(job).Observe(time.Since(start).Seconds())
}
