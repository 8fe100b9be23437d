package port

import (
	"context"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

// VideoProber validates a recording and reads its container metadata.
type VideoProber interface {
	Probe(ctx context.Context, runID string, video []byte) (*entity.VideoMetadata, error)
}

// TimeWindow restricts sampling to [StartMs, StartMs+DurationMs).
type TimeWindow struct {
	StartMs    int64
	DurationMs int64
}

type SampleRequest struct {
	VideoPath string
	OutputDir string
	FPS       float64
	Window    *TimeWindow
}

// SampledFrame is one decoded JPEG. Index is relative to the request; TimestampMs is absolute.
type SampledFrame struct {
	Index       int
	TimestampMs int64
	Path        string
	Data        []byte
}

// FrameSampler rasterizes a video into JPEG frames at a fixed rate.
type FrameSampler interface {
	Sample(ctx context.Context, req SampleRequest) ([]SampledFrame, error)
}

// KeyframeExtractor runs the full two-pass extraction over one recording.
type KeyframeExtractor interface {
	Extract(ctx context.Context, runID string, video []byte) (*ExtractionResult, error)
}

type ExtractionResult struct {
	Metadata entity.VideoMetadata
	Frames   []entity.ExtractedFrame
	Events   []entity.DetectedEvent
	Windows  []entity.CandidateWindow
}
