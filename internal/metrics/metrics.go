// Package metrics defines the Prometheus collectors exported by the
// kernel. Grounded on pkg/metrics/metrics.go's package-level CounterVec /
// Histogram / GaugeVec declarations registered in an init(), generalized
// from order-processing-only counters to the full set of kernel
// operations (orders, trades, liquidations, event hub drops).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// OrdersSubmitted counts accepted submit_order calls by side and order
	// type.
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rindex_orders_submitted_total",
			Help: "Total number of orders submitted to the matching engine",
		},
		[]string{"instrument", "side", "order_type"},
	)

	// OrdersCancelled counts successful cancel_order calls.
	OrdersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rindex_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		},
		[]string{"instrument"},
	)

	// TradesExecuted counts synthesized trades.
	TradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rindex_trades_executed_total",
			Help: "Total number of trades executed by the matching engine",
		},
		[]string{"instrument"},
	)

	// Liquidations counts forced closures, tagged by whether the
	// insurance fund absorbed a shortfall.
	Liquidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rindex_liquidations_total",
			Help: "Total number of forced liquidations",
		},
		[]string{"instrument", "insurance_fund_hit"},
	)

	// SubmitLatency records submit_order processing latency.
	SubmitLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rindex_submit_order_latency_seconds",
			Help:    "Latency in seconds to process a submit_order call",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LiquidationScanLatency records one full liquidation-monitor sweep.
	LiquidationScanLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rindex_liquidation_scan_latency_seconds",
			Help:    "Latency in seconds for one liquidation monitor scan",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EventHubDropped mirrors eventhub.Hub.Dropped() as a gauge, sampled
	// periodically by kernel.Kernel.Run's gauge sampler.
	EventHubDropped = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rindex_eventhub_dropped_envelopes",
			Help: "Cumulative envelopes dropped due to a full subscriber buffer",
		},
		[]string{"instrument"},
	)

	// OpenPositions tracks the live position count, sampled the same way.
	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rindex_open_positions",
			Help: "Number of traders currently holding a non-flat position",
		},
		[]string{"instrument"},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted, OrdersCancelled, TradesExecuted, Liquidations,
		SubmitLatency, LiquidationScanLatency, EventHubDropped, OpenPositions,
	)
}
