package port

import (
	"context"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/google/uuid"
)

type RunRepository interface {
	Create(ctx context.Context, job *entity.ExtractionJob) error
	Update(ctx context.Context, job *entity.ExtractionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ExtractionJob, error)
	SaveFrames(ctx context.Context, jobID uuid.UUID, frames []StoredFrame) error
}

// StoredFrame pairs an extracted frame with the object key its bytes were uploaded to.
type StoredFrame struct {
	Frame     entity.ExtractedFrame
	ObjectKey string
}
