// Package metrics records invocation counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentgate/internal/domain"
)

const namespace = "agentgate"

// Recorder counts invocations, guardrail checks and handoffs on its own
// registry, so several recorders can coexist in one process.
type Recorder struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	checks      *prometheus.CounterVec
	handoffs    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// NewRecorder creates a recorder with Go runtime and process collectors attached.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Finished invocations by entry agent and outcome (completed, blocked or the failure kind).",
			},
			[]string{"agent", "outcome"},
		),
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guardrail_checks_total",
				Help:      "Guardrail checks by guardrail, kind and result.",
			},
			[]string{"guardrail", "kind", "result"},
		),
		handoffs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handoffs_total",
				Help:      "Handoffs taken between agents.",
			},
			[]string{"from", "to"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Wall time of an invocation including every nested model call.",
				Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"agent"},
		),
	}
}

func (r *Recorder) InvocationFinished(agent, outcome string, elapsed time.Duration) {
	r.invocations.WithLabelValues(agent, outcome).Inc()
	r.duration.WithLabelValues(agent).Observe(elapsed.Seconds())
}

func (r *Recorder) GuardrailChecked(guardrail string, kind domain.GuardrailKind, result string) {
	r.checks.WithLabelValues(guardrail, string(kind), result).Inc()
}

func (r *Recorder) HandoffTaken(from, to string) {
	r.handoffs.WithLabelValues(from, to).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for additional collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }
