package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
)

const (
	summaryName = "summary.json"
	archiveName = "keyframes.zip"
)

type summary struct {
	Recording     string                   `json:"recording"`
	RunID         string                   `json:"run_id"`
	Metadata      entity.VideoMetadata     `json:"metadata"`
	FrameCount    int                      `json:"frame_count"`
	KeyframeCount int                      `json:"keyframe_count"`
	Events        []entity.DetectedEvent   `json:"events"`
	Windows       []entity.CandidateWindow `json:"windows"`
	Frames        []summaryFrame           `json:"frames"`
}

type summaryFrame struct {
	File string `json:"file,omitempty"`
	entity.ExtractedFrame
}

func frameFileName(f entity.ExtractedFrame) string {
	if f.IsKeyframe {
		return fmt.Sprintf("keyframe_%08dms.jpg", f.TimestampMs)
	}
	return fmt.Sprintf("frame_%08dms.jpg", f.TimestampMs)
}

// writeOutputs writes keyframe JPEGs (every frame when all is set) and summary.json into dir.
// The summary lists the same frames that were written.
func writeOutputs(dir, recording, runID string, res *port.ExtractionResult, all bool) (*summary, error) {
	sum := &summary{
		Recording:     recording,
		RunID:         runID,
		Metadata:      res.Metadata,
		FrameCount:    len(res.Frames),
		KeyframeCount: len(entity.Keyframes(res.Frames)),
		Events:        res.Events,
		Windows:       res.Windows,
		Frames:        []summaryFrame{},
	}
	if sum.Events == nil {
		sum.Events = []entity.DetectedEvent{}
	}
	if sum.Windows == nil {
		sum.Windows = []entity.CandidateWindow{}
	}

	for _, f := range res.Frames {
		if !f.IsKeyframe && !all {
			continue
		}
		name := frameFileName(f)
		if err := os.WriteFile(filepath.Join(dir, name), f.Buffer, 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		sum.Frames = append(sum.Frames, summaryFrame{File: name, ExtractedFrame: f})
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, summaryName), data, 0644); err != nil {
		return nil, fmt.Errorf("write summary: %w", err)
	}
	return sum, nil
}
