// Package metrics holds the engine's Prometheus instrumentation.
//
// Primary series:
//
//	guard_decisions_total{verdict}      gate verdicts (approved|downsized|rejected)
//	guard_rejections_total{code}        rejections by check code
//	guard_triggers_total{type}          conditional orders fired, by type
//	guard_execution_failures_total      submissions that failed post-trigger
//	guard_price_fetch_failures_total    symbols skipped in a scan
//	guard_daily_realized_pnl{account}   daily realized P&L gauge
//	guard_kill_switch{account}          1 while the kill switch is latched
//	guard_scan_duration_seconds         monitor scan latency histogram
//
// Registered in init() and served at /metrics by cmd/guard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_decisions_total",
			Help: "Safety gate verdicts",
		},
		[]string{"verdict"},
	)

	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_rejections_total",
			Help: "Safety gate rejections by check code",
		},
		[]string{"code"},
	)

	Triggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_triggers_total",
			Help: "Conditional orders triggered",
		},
		[]string{"type"},
	)

	ExecutionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_execution_failures_total",
			Help: "Order submissions that failed after trigger",
		},
	)

	PriceFetchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "guard_price_fetch_failures_total",
			Help: "Symbols skipped in a scan because no price was available",
		},
	)

	DailyRealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guard_daily_realized_pnl",
			Help: "Daily realized P&L in account currency",
		},
		[]string{"account"},
	)

	KillSwitch = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "guard_kill_switch",
			Help: "1 while the account kill switch is latched",
		},
		[]string{"account"},
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guard_scan_duration_seconds",
			Help:    "Price monitor scan duration",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		Decisions,
		Rejections,
		Triggers,
		ExecutionFailures,
		PriceFetchFailures,
		DailyRealizedPnL,
		KillSwitch,
		ScanDuration,
	)
}

// Handler serves the default registry in text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
