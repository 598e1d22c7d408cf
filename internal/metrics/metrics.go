// Package metrics exposes the Prometheus collectors for the extraction
// service. A nil *Metrics is valid and records nothing, so components can be
// built without a registry in tests and in the CLI.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statement_extractor"

// Metrics groups the collectors registered on one registry.
type Metrics struct {
	registry    *prometheus.Registry
	extractions *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	llmAttempts *prometheus.CounterVec
	stages      *prometheus.HistogramVec
	pending     prometheus.Gauge
	confirmed   prometheus.Counter
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		extractions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction requests by bank and outcome (accepted or an error kind).",
		}, []string{"bank", "outcome"}),
		fallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generative_fallbacks_total",
			Help:      "Extractions that fell back to the generative path, by reason.",
		}, []string{"reason"}),
		llmAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_attempts_total",
			Help:      "Calls to the generative backend by result.",
		}, []string{"result"}),
		stages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each extraction stage.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60, 120},
		}, []string{"stage"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_batches",
			Help:      "Batches currently awaiting review.",
		}),
		confirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmed_transactions_total",
			Help:      "Transactions handed off for persistence.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveExtraction(bank, outcome string) {
	if m == nil {
		return
	}
	if bank == "" {
		bank = "unknown"
	}
	m.extractions.WithLabelValues(bank, outcome).Inc()
}

func (m *Metrics) ObserveFallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLLMAttempt(result string) {
	if m == nil {
		return
	}
	m.llmAttempts.WithLabelValues(result).Inc()
}

// ObserveStage records the time since start for a stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stages.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) AddConfirmed(n int) {
	if m == nil {
		return
	}
	m.confirmed.Add(float64(n))
}
