package triage

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec
	RunDuration      *prometheus.HistogramVec
	StageDuration    *prometheus.HistogramVec
	DedupSimilarity  prometheus.Histogram
	RouteAssignments *prometheus.CounterVec
	LLMCallsTotal    *prometheus.CounterVec
	LLMTokensIn      *prometheus.CounterVec
	LLMTokensOut     *prometheus.CounterVec
	LLMDuration      *prometheus.HistogramVec
	SubmitsTotal     *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_triage_runs_total",
			Help: "Total pipeline runs by terminal decision.",
		}, []string{"decision"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_triage_run_duration_seconds",
			Help:    "Duration of pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 0.25s .. ~128s
		}, []string{"decision"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"stage", "outcome"}),
		DedupSimilarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sentinel_dedup_similarity",
			Help:    "Similarity of the closest prior ticket seen by the dedup stage.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0 .. 1
		}),
		RouteAssignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_route_assignments_total",
			Help: "Tickets routed, by team and whether the fallback team was used.",
		}, []string{"team", "fallback"}),
		LLMCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_calls_total",
			Help: "Total LLM provider calls by agent and status.",
		}, []string{"agent", "status"}),
		LLMTokensIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_tokens_input_total",
			Help: "Total LLM input tokens consumed.",
		}, []string{"agent"}),
		LLMTokensOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_llm_tokens_output_total",
			Help: "Total LLM output tokens consumed.",
		}, []string{"agent"}),
		LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_llm_call_duration_seconds",
			Help:    "Duration of individual LLM calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}, []string{"agent"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_submits_total",
			Help: "Total report submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.DedupSimilarity,
		m.RouteAssignments,
		m.LLMCallsTotal,
		m.LLMTokensIn,
		m.LLMTokensOut,
		m.LLMDuration,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnStage: func(stage StageName, duration float64, failed bool) {
			outcome := "ok"
			if failed {
				outcome = "error"
			}
			m.StageDuration.WithLabelValues(string(stage), outcome).Observe(duration)
		},
		OnDedup: func(similarity float64) {
			m.DedupSimilarity.Observe(similarity)
		},
		OnRoute: func(team string, fallback bool) {
			m.RouteAssignments.WithLabelValues(team, strconv.FormatBool(fallback)).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			m.RunsTotal.WithLabelValues(string(e.Decision)).Inc()
			m.RunDuration.WithLabelValues(string(e.Decision)).Observe(e.Duration)
		},
	}
}

// ObserveLLMCall records one collaborator LLM call. It matches the agent
// package's call observer signature.
func (m *Metrics) ObserveLLMCall(agent string, inputTokens, outputTokens int, duration float64, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	m.LLMCallsTotal.WithLabelValues(agent, status).Inc()
	m.LLMTokensIn.WithLabelValues(agent).Add(float64(inputTokens))
	m.LLMTokensOut.WithLabelValues(agent).Add(float64(outputTokens))
	m.LLMDuration.WithLabelValues(agent).Observe(duration)
}
