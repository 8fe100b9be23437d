package port

import (
	"context"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

// Archiver bundles keyframes and their annotations into a single file.
type Archiver interface {
	CreateArchive(ctx context.Context, frames []entity.ExtractedFrame, outputPath string) error
}
