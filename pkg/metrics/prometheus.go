package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pgvanniekerk/rategate/pkg/rategate"
)

// PrometheusRecorder exports gate events as Prometheus metrics. Every metric carries a
// "gate" label holding the gate name.
type PrometheusRecorder struct {
	// Admissions
	admissions *prometheus.CounterVec
	windowWait *prometheus.HistogramVec

	// Cancellations, labelled by the stage the caller gave up in
	cancellations *prometheus.CounterVec

	// Admitted callers that have not released yet
	inFlight *prometheus.GaugeVec
}

// NewPrometheusRecorder creates a PrometheusRecorder and registers its collectors with reg.
// Passing prometheus.DefaultRegisterer exposes them on the default /metrics handler.
//
// Registering twice with the same Registerer panics, as promauto does.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_admissions_total",
				Help: "Total number of callers admitted by the gate",
			},
			[]string{"gate"},
		),

		windowWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rategate_window_wait_seconds",
				Help:    "Time admitted callers spent waiting for the rolling window to elapse",
				Buckets: []float64{0, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"gate"},
		),

		cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_cancellations_total",
				Help: "Total number of acquires abandoned before admission",
			},
			[]string{"gate", "stage"},
		),

		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rategate_in_flight",
				Help: "Number of admitted callers that have not released their slot",
			},
			[]string{"gate"},
		),
	}
}

// Admitted implements rategate.Recorder.
//
// The in-flight gauge is moved with Inc and Dec rather than set from the inFlight
// argument, since concurrent callers may report their counts out of order.
func (p *PrometheusRecorder) Admitted(gate string, wait time.Duration, _ int64) {
	p.admissions.WithLabelValues(gate).Inc()
	p.windowWait.WithLabelValues(gate).Observe(wait.Seconds())
	p.inFlight.WithLabelValues(gate).Inc()
}

// Canceled implements rategate.Recorder.
func (p *PrometheusRecorder) Canceled(gate string, stage rategate.CancelStage) {
	p.cancellations.WithLabelValues(gate, string(stage)).Inc()
}

// Released implements rategate.Recorder.
func (p *PrometheusRecorder) Released(gate string, _ int64) {
	p.inFlight.WithLabelValues(gate).Dec()
}
