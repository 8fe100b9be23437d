package entity

import "github.com/google/uuid"

type CursorShape string

const (
	CursorArrow   CursorShape = "arrow"
	CursorPointer CursorShape = "pointer"
	CursorText    CursorShape = "text"
	CursorWait    CursorShape = "wait"
	CursorUnknown CursorShape = "unknown"
)

// CursorPosition is the pointer location found in a single frame, in frame pixel coordinates.
type CursorPosition struct {
	X          float64     `json:"x"`
	Y          float64     `json:"y"`
	Confidence float64     `json:"confidence"`
	Shape      CursorShape `json:"shape"`
	Visible    bool        `json:"visible"`
}

// FrameMetrics is the change vector between a frame and its predecessor in the same pass.
type FrameMetrics struct {
	GlobalSSIM      float64 `json:"global_ssim"`
	GlobalHash      float64 `json:"global_hash"`
	GlobalEdge      float64 `json:"global_edge"`
	ROISSIM         float64 `json:"roi_ssim"`
	ROIHash         float64 `json:"roi_hash"`
	ROIEdge         float64 `json:"roi_edge"`
	MotionMagnitude float64 `json:"motion_magnitude"`
	MotionDirection float64 `json:"motion_direction"`
	MotionCoherence float64 `json:"motion_coherence"`
	GlobalScore     float64 `json:"global_score"`
	ROIScore        float64 `json:"roi_score"`
	MotionScore     float64 `json:"motion_score"`
	FinalScore      float64 `json:"final_score"`
}

// ZeroChangeMetrics describes a pair of frames with no measurable difference.
func ZeroChangeMetrics() FrameMetrics {
	return FrameMetrics{GlobalSSIM: 1, ROISSIM: 1}
}

type EventType string

const (
	EventHover            EventType = "hover"
	EventClick            EventType = "click"
	EventScroll           EventType = "scroll"
	EventTransition       EventType = "transition"
	EventAnimationAnomaly EventType = "animation_anomaly"
	EventStateChange      EventType = "state_change"
	EventCursorOnElement  EventType = "cursor_on_element"
	EventIdle             EventType = "idle"
)

// Region is a rectangle in frame pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Evidence struct {
	Cursor  *CursorPosition `json:"cursor,omitempty"`
	Metrics *FrameMetrics   `json:"metrics,omitempty"`
	ROI     *Region         `json:"roi,omitempty"`
	Details []string        `json:"details,omitempty"`
}

type DetectedEvent struct {
	TimestampMs int64     `json:"timestamp_ms"`
	FrameIndex  int       `json:"frame_index"`
	FramePath   string    `json:"frame_path"`
	Event       EventType `json:"event"`
	Confidence  float64   `json:"confidence"`
	Evidence    Evidence  `json:"evidence"`
	Reason      string    `json:"reason"`
}

// CandidateWindow is a time span to re-sample at the fine frame rate.
type CandidateWindow struct {
	StartMs int64   `json:"start_ms"`
	EndMs   int64   `json:"end_ms"`
	PeakMs  int64   `json:"peak_ms"`
	Reason  string  `json:"reason"`
	Score   float64 `json:"score"`
}

func (w CandidateWindow) DurationMs() int64 {
	return w.EndMs - w.StartMs
}

// ChangeContext is the caller-facing summary of what changed at a frame.
type ChangeContext struct {
	ChangeScore        float64 `json:"change_score"`
	PrimaryChangeType  string  `json:"primary_change_type"`
	Description        string  `json:"description"`
	HasModal           bool    `json:"has_modal"`
	IsLoading          bool    `json:"is_loading"`
	ChangedRegionCount int     `json:"changed_region_count"`
}

type ExtractedFrame struct {
	ID            uuid.UUID       `json:"id"`
	TimestampMs   int64           `json:"timestamp_ms"`
	Buffer        []byte          `json:"-"`
	IsKeyframe    bool            `json:"is_keyframe"`
	DiffScore     float64         `json:"diff_score"`
	ChangeContext ChangeContext   `json:"change_context"`
	Cursor        *CursorPosition `json:"cursor,omitempty"`
	Metrics       *FrameMetrics   `json:"metrics,omitempty"`
	Event         *DetectedEvent  `json:"event,omitempty"`
}

// Keyframes returns the subset of frames flagged as keyframes, preserving order.
func Keyframes(frames []ExtractedFrame) []ExtractedFrame {
	out := make([]ExtractedFrame, 0, len(frames))
	for _, f := range frames {
		if f.IsKeyframe {
			out = append(out, f)
		}
	}
	return out
}

type VideoMetadata struct {
	FormatName      string  `json:"format_name"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
}

func (m VideoMetadata) DurationMs() int64 {
	return int64(m.DurationSeconds * 1000)
}
