package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Advisor self-metrics for production monitoring
var (
	// Pipeline stage metrics
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qos_advisor_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qos_advisor_stage_failures_total",
			Help: "Total number of pipeline stage failures",
		},
		[]string{"stage"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qos_advisor_requests_total",
			Help: "Total number of advisory requests processed",
		},
		[]string{"intent", "status"},
	)

	// Backend channel metrics
	BackendQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qos_advisor_backend_queries_total",
			Help: "Total number of backend tool invocations",
		},
		[]string{"kind", "status"},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qos_advisor_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"kind", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qos_advisor_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"kind"},
	)

	// Advice outcomes
	AdviceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qos_advisor_advice_total",
			Help: "Total number of allocation advisories by strategy",
		},
		[]string{"strategy"},
	)
)
