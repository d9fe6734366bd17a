// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuestionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_questions_processed_total",
			Help: "Total number of questions processed, by outcome",
		},
		[]string{"outcome"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_stage_failures_total",
			Help: "Total number of stage failures, by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "agent_stage_duration_seconds",
			Help: "Duration of workflow stage processing in seconds",
		},
		[]string{"stage"},
	)

	LedgerSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_memory_ledger_size",
			Help: "Number of records currently held in the conversation ledger",
		},
	)

	FeedbackReanalyses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_feedback_reanalyses_total",
			Help: "Total number of elaboration-requested re-analysis passes",
		},
	)
)
