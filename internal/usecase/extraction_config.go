package usecase

import (
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/analysis"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/detection"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/selection"
)

// Stage is a step of the extraction state machine.
type Stage string

const (
	StageValidating    Stage = "validating"
	StageCoarseScan    Stage = "coarse_scan"
	StageCoarseAnalyze Stage = "coarse_analyze"
	StageWindowPlan    Stage = "window_plan"
	StageFineScan      Stage = "fine_scan"
	StageFineAnalyze   Stage = "fine_analyze"
	StageMerge         Stage = "merge"
	StageSelect        Stage = "select"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
)

type ExtractionConfig struct {
	TempDir         string
	CoarseFPS       float64
	FineFPS         float64
	FineWindowMs    int64
	MergeWindowMs   int64
	AnalysisWorkers int
	MaxFrameWidth   int

	Metrics    analysis.MetricsConfig
	Cursor     analysis.CursorConfig
	Thresholds detection.Thresholds
	Selector   selection.Selector

	// OnStage, when set, is called on every state transition of a run.
	OnStage func(runID string, stage Stage)
}

func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		TempDir:         "/tmp/keyframes",
		CoarseFPS:       10,
		FineFPS:         30,
		FineWindowMs:    800,
		MergeWindowMs:   50,
		AnalysisWorkers: 4,
		MaxFrameWidth:   analysis.MaxFrameWidth,
		Metrics:         analysis.DefaultMetricsConfig(),
		Cursor:          analysis.DefaultCursorConfig(),
		Thresholds:      detection.DefaultThresholds(),
		Selector:        selection.DefaultSelector(),
	}
}
