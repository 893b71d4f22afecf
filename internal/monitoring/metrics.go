package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpilot_cycles_total",
			Help: "Total number of trading cycles run",
		},
		[]string{"cycle", "outcome"},
	)

	ordersAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockpilot_orders_accepted_total",
			Help: "Orders that passed risk validation",
		},
	)

	ordersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpilot_orders_rejected_total",
			Help: "Orders rejected by risk validation",
		},
		[]string{"reason"},
	)

	fillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpilot_fills_total",
			Help: "Total number of filled orders",
		},
		[]string{"ticker", "side"},
	)

	fillValue = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockpilot_fill_value_dollars",
			Help:    "Distribution of fill notional values",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"side"},
	)

	portfolioEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockpilot_portfolio_equity_dollars",
			Help: "Total portfolio equity at last valuation",
		},
	)

	portfolioCash = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockpilot_portfolio_cash_dollars",
			Help: "Uninvested cash at last valuation",
		},
	)

	marketRegime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stockpilot_market_regime",
			Help: "Current market regime (1 for the active regime, 0 otherwise)",
		},
		[]string{"regime"},
	)

	droppedTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpilot_dropped_triggers_total",
			Help: "Cycle triggers dropped because the previous run was still in flight",
		},
		[]string{"cycle"},
	)

	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockpilot_errors_total",
			Help: "Total number of errors by category",
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal)
	prometheus.MustRegister(ordersAccepted)
	prometheus.MustRegister(ordersRejected)
	prometheus.MustRegister(fillsTotal)
	prometheus.MustRegister(fillValue)
	prometheus.MustRegister(portfolioEquity)
	prometheus.MustRegister(portfolioCash)
	prometheus.MustRegister(marketRegime)
	prometheus.MustRegister(droppedTriggers)
	prometheus.MustRegister(errorsTotal)
}

// MetricsHandler serves the Prometheus metrics endpoint.
type MetricsHandler struct{}

func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

func (m *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// RecordCycle records a completed cycle with its outcome ("ok" or "error").
func RecordCycle(cycle, outcome string) {
	cyclesTotal.WithLabelValues(cycle, outcome).Inc()
}

// RecordValidation records the outcome of one validated order.
func RecordValidation(accepted bool, reason string) {
	if accepted {
		ordersAccepted.Inc()
		return
	}
	ordersRejected.WithLabelValues(reason).Inc()
}

// RecordFill records a filled order.
func RecordFill(ticker, side string, value float64) {
	fillsTotal.WithLabelValues(ticker, side).Inc()
	fillValue.WithLabelValues(side).Observe(value)
}

// UpdatePortfolio updates the equity and cash gauges.
func UpdatePortfolio(equity, cash float64) {
	portfolioEquity.Set(equity)
	portfolioCash.Set(cash)
}

// UpdateRegime marks the active regime gauge.
func UpdateRegime(active string) {
	for _, r := range []string{"BULL", "BEAR", "SIDEWAYS", "UNKNOWN"} {
		v := 0.0
		if r == active {
			v = 1.0
		}
		marketRegime.WithLabelValues(r).Set(v)
	}
}

// RecordDroppedTrigger records a cycle trigger dropped by the in-flight guard.
func RecordDroppedTrigger(cycle string) {
	droppedTriggers.WithLabelValues(cycle).Inc()
}

// RecordError records an error by category.
func RecordError(category string) {
	errorsTotal.WithLabelValues(category).Inc()
}
