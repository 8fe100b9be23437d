package entity

import "fmt"

type ValidationReason string

const (
	ValidationEmpty             ValidationReason = "empty"
	ValidationTooLarge          ValidationReason = "too_large"
	ValidationUnsupportedFormat ValidationReason = "unsupported_format"
	ValidationNoDuration        ValidationReason = "no_duration"
)

// ValidationError rejects a recording before any extraction starts. It is never retried.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Reason, e.Detail)
}

type ExtractionReason string

const (
	ExtractionNoFrames      ExtractionReason = "no_frames"
	ExtractionDecoderFailed ExtractionReason = "decoder_failed"
)

// ExtractionError aborts a run when the decoder cannot produce frames.
type ExtractionError struct {
	Reason  ExtractionReason
	Message string
}

func (e *ExtractionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed: %s: %s", e.Reason, e.Message)
}

// MetricComputationError is raised for a single frame pair and recovered by the caller.
type MetricComputationError struct {
	Stage string
	Err   error
}

func (e *MetricComputationError) Error() string {
	return fmt.Sprintf("compute %s metrics: %v", e.Stage, e.Err)
}

func (e *MetricComputationError) Unwrap() error { return e.Err }

// CursorDetectionError is raised for a single frame and never leaves the detector.
type CursorDetectionError struct {
	Err error
}

func (e *CursorDetectionError) Error() string {
	return fmt.Sprintf("detect cursor: %v", e.Err)
}

func (e *CursorDetectionError) Unwrap() error { return e.Err }
