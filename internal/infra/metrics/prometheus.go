package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_jobs_processed_total",
		Help: "Total number of recording jobs processed, by outcome",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keyframes_stage_duration_seconds",
		Help:    "Duration of each extraction and job stage",
		Buckets: []float64{0.05, 0.25, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesAnalyzedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_frames_analyzed_total",
		Help: "Frames decoded and analysed, by pass",
	}, []string{"pass"})

	KeyframesSelectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "keyframes_selected_total",
		Help: "Frames selected as keyframes across all runs",
	})

	EventsDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_events_detected_total",
		Help: "Interaction events detected after clustering, by type",
	}, []string{"type"})

	FrameFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_frame_fallbacks_total",
		Help: "Per-frame failures replaced by a safe default, by kind",
	}, []string{"kind"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "keyframes_active_workers",
		Help: "Number of workers currently processing a recording",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keyframes_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
