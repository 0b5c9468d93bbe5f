package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search pipeline Prometheus metrics.
var (
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shopdex",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Per-stage search pipeline duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"stage"},
	)

	PipelineDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopdex",
			Name:      "pipeline_degraded_total",
			Help:      "Searches that completed with a degraded stage",
		},
		[]string{"stage"},
	)

	PipelineFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopdex",
			Name:      "pipeline_failed_total",
			Help:      "Searches that failed on a fatal stage error",
		},
		[]string{"stage"},
	)

	RetrievalRelaxedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopdex",
			Name:      "retrieval_relaxed_total",
			Help:      "Retrievals that relaxed a hard constraint to fill results",
		},
		[]string{"constraint"},
	)

	GuardFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopdex",
			Name:      "guard_filtered_total",
			Help:      "Results dropped by merchandising policy checks",
		},
		[]string{"reason"},
	)

	SuggestSupersededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shopdex",
			Name:      "suggest_superseded_total",
			Help:      "Suggestion requests cancelled by a newer request in the same session",
		},
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shopdex",
			Name:      "generation_requests_total",
			Help:      "Total chat completion requests for result explanations",
		},
		[]string{"model", "status"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(PipelineDegradedTotal)
	prometheus.MustRegister(PipelineFailedTotal)
	prometheus.MustRegister(RetrievalRelaxedTotal)
	prometheus.MustRegister(GuardFilteredTotal)
	prometheus.MustRegister(SuggestSupersededTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	pipelineMetricsRegistered = true
}
