package entity

import "github.com/google/uuid"

// RecordingMessage is the inbound message from the recording.extraction queue.
type RecordingMessage struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    string    `json:"user_id"`
	VideoKey  string    `json:"video_key"`
	FileSize  int64     `json:"file_size"`
	UserEmail string    `json:"user_email"`
}

// RecordingStatusMessage is the outbound message published to the recording.status queue.
type RecordingStatusMessage struct {
	JobID         uuid.UUID `json:"job_id"`
	UserID        string    `json:"user_id"`
	Status        JobStatus `json:"status"`
	VideoKey      string    `json:"video_key"`
	ArchiveKey    string    `json:"archive_key,omitempty"`
	FrameCount    int       `json:"frame_count,omitempty"`
	KeyframeCount int       `json:"keyframe_count,omitempty"`
	EventCount    int       `json:"event_count,omitempty"`
	Duration      float64   `json:"duration_seconds,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Attempt       int       `json:"attempt"`
	MaxAttempts   int       `json:"max_attempts"`
}
