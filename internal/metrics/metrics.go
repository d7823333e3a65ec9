// Package metrics exposes engine events as Prometheus series:
//   - trailguard_events_total{kind}       every state transition
//   - trailguard_trailing_stop{symbol}    current trailing stop
//   - trailguard_last_price{symbol}       last management price
//   - trailguard_order_retries_total      transient order failures retried
//   - trailguard_orders_total             orders submitted by the executor
//   - trailguard_orders_failed_total      orders that ended in an execution error
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3guy0/trailguard/execution"
	"github.com/web3guy0/trailguard/types"
)

// ExecutionSource reports the executor counters
type ExecutionSource interface {
	GetMetrics() execution.Metrics
}

// Recorder is a types.Observer backed by its own registry
type Recorder struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	trailingStop *prometheus.GaugeVec
	lastPrice    *prometheus.GaugeVec
	retries      prometheus.Counter
}

// NewRecorder creates and registers the series
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trailguard_events_total",
				Help: "Engine events by kind",
			},
			[]string{"kind"},
		),
		trailingStop: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trailguard_trailing_stop",
				Help: "Current trailing stop, 0 when flat",
			},
			[]string{"symbol"},
		),
		lastPrice: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "trailguard_last_price",
				Help: "Last price seen by the control loop",
			},
			[]string{"symbol"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trailguard_order_retries_total",
				Help: "Order submissions retried after a transient failure",
			},
		),
	}
	r.registry.MustRegister(r.events, r.trailingStop, r.lastPrice, r.retries)
	return r
}

// Observe implements types.Observer
func (r *Recorder) Observe(ev types.Event) {
	switch ev.Kind {
	case types.EventPriceUpdated:
		// one per tick, kept out of the event counter
		r.lastPrice.WithLabelValues(ev.Symbol).Set(ev.Price.InexactFloat64())
		return
	case types.EventStopAdopted:
		r.trailingStop.WithLabelValues(ev.Symbol).Set(ev.Stop.InexactFloat64())
	case types.EventExitTriggered:
		r.trailingStop.WithLabelValues(ev.Symbol).Set(0)
	case types.EventRetryAttempted:
		r.retries.Inc()
	}
	r.events.WithLabelValues(string(ev.Kind)).Inc()
}

// TrackExecution exports the executor's order counters, read at scrape time
func (r *Recorder) TrackExecution(src ExecutionSource) {
	r.registry.MustRegister(
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "trailguard_orders_total",
				Help: "Orders submitted by the executor",
			},
			func() float64 { return float64(src.GetMetrics().TotalOrders) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "trailguard_orders_failed_total",
				Help: "Orders that ended in an execution error",
			},
			func() float64 { return float64(src.GetMetrics().FailedOrders) },
		),
	)
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
