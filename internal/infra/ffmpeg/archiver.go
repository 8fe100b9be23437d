package ffmpeg

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

const manifestName = "manifest.json"

// ZipArchiver packs keyframe JPEGs together with a manifest describing each one.
type ZipArchiver struct{}

func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{}
}

type manifestEntry struct {
	ID            string                 `json:"id"`
	File          string                 `json:"file"`
	TimestampMs   int64                  `json:"timestamp_ms"`
	DiffScore     float64                `json:"diff_score"`
	ChangeContext entity.ChangeContext   `json:"change_context"`
	Cursor        *entity.CursorPosition `json:"cursor,omitempty"`
	Event         *manifestEvent         `json:"event,omitempty"`
}

type manifestEvent struct {
	Type       entity.EventType `json:"type"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
}

func (z *ZipArchiver) CreateArchive(ctx context.Context, frames []entity.ExtractedFrame, outputPath string) error {
	zipFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	manifest := make([]manifestEntry, 0, len(frames))
	for _, f := range entity.Keyframes(frames) {
		select {
		case <-ctx.Done():
			zipWriter.Close()
			return ctx.Err()
		default:
		}

		name := fmt.Sprintf("keyframe_%08dms.jpg", f.TimestampMs)
		if err := addBytes(zipWriter, name, f.Buffer, zip.Store); err != nil {
			zipWriter.Close()
			return fmt.Errorf("add %s to archive: %w", name, err)
		}

		entry := manifestEntry{
			ID:            f.ID.String(),
			File:          name,
			TimestampMs:   f.TimestampMs,
			DiffScore:     f.DiffScore,
			ChangeContext: f.ChangeContext,
			Cursor:        f.Cursor,
		}
		if f.Event != nil {
			entry.Event = &manifestEvent{Type: f.Event.Event, Confidence: f.Event.Confidence, Reason: f.Event.Reason}
		}
		manifest = append(manifest, entry)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		zipWriter.Close()
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := addBytes(zipWriter, manifestName, data, zip.Deflate); err != nil {
		zipWriter.Close()
		return fmt.Errorf("add manifest to archive: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

// addBytes writes one archive entry with the given compression method.
func addBytes(zw *zip.Writer, name string, data []byte, method uint16) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
