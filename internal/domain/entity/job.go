package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// ExtractionJob tracks one keyframe extraction run for a recording.
type ExtractionJob struct {
	ID            uuid.UUID
	UserID        string
	VideoKey      string
	ArchiveKey    string
	Status        JobStatus
	FrameCount    int
	KeyframeCount int
	EventCount    int
	FileSize      int64
	VideoDuration float64
	Attempt       int
	MaxAttempts   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func NewExtractionJob(userID, videoKey string, fileSize int64, maxAttempts int) *ExtractionJob {
	now := time.Now().UTC()
	return &ExtractionJob{
		ID:          uuid.New(),
		UserID:      userID,
		VideoKey:    videoKey,
		FileSize:    fileSize,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *ExtractionJob) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

// MarkCompleted records the outcome of a successful extraction.
func (j *ExtractionJob) MarkCompleted(archiveKey string, frames []ExtractedFrame, duration float64) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.ArchiveKey = archiveKey
	j.FrameCount = len(frames)
	j.KeyframeCount = 0
	j.EventCount = 0
	for _, f := range frames {
		if f.IsKeyframe {
			j.KeyframeCount++
		}
		if f.Event != nil {
			j.EventCount++
		}
	}
	j.VideoDuration = duration
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *ExtractionJob) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *ExtractionJob) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
