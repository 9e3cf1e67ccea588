package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	agentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retaillens_agent_requests_total",
			Help: "Total number of answered questions by pipeline outcome.",
		},
		[]string{"outcome"},
	)
	agentStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retaillens_agent_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retaillens_model_calls_total",
			Help: "Total number of language model calls by stage and result.",
		},
		[]string{"stage", "result"},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retaillens_query_rows",
			Help:    "Number of rows returned by executed warehouse queries.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		},
	)
)

func init() {
	prometheus.MustRegister(
		agentRequestsTotal,
		agentStageDurationSeconds,
		modelCallsTotal,
		queryRows,
	)
}

func ObserveAgentRequest(outcome string) {
	agentRequestsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStage(stage string, elapsed time.Duration) {
	agentStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveModelCall(stage, result string) {
	modelCallsTotal.WithLabelValues(stage, result).Inc()
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryRows.Observe(float64(rows))
}
