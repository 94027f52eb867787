package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_messages_processed_total",
		Help: "Messages handled by the worker, by outcome",
	}, []string{"outcome"})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_stage_failures_total",
		Help: "Pipeline failures, by stage",
	}, []string{"stage"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_frames_sampled_total",
		Help: "Frames sampled across all messages",
	})

	ReceiveErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analysis_receive_errors_total",
		Help: "Queue receive errors and recovered processing panics",
	})
)
