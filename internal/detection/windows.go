package detection

import (
	"sort"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

// PlanWindows turns every event into a [ts-padMs, ts+padMs] window clamped to the video and
// merges the overlaps. durationMs <= 0 disables the upper clamp.
func PlanWindows(events []entity.DetectedEvent, padMs, durationMs int64) []entity.CandidateWindow {
	windows := make([]entity.CandidateWindow, 0, len(events))
	for _, ev := range events {
		w := entity.CandidateWindow{
			StartMs: max(0, ev.TimestampMs-padMs),
			EndMs:   ev.TimestampMs + padMs,
			PeakMs:  ev.TimestampMs,
			Reason:  string(ev.Event),
			Score:   ev.Confidence,
		}
		if durationMs > 0 && w.EndMs > durationMs {
			w.EndMs = durationMs
		}
		if w.EndMs <= w.StartMs {
			continue
		}
		windows = append(windows, w)
	}
	return MergeWindows(windows)
}

// MergeWindows sorts windows by start and folds each one into its predecessor when it starts
// before the predecessor ends. The merged window keeps the peak and reason of the higher score.
func MergeWindows(windows []entity.CandidateWindow) []entity.CandidateWindow {
	if len(windows) == 0 {
		return nil
	}
	sorted := make([]entity.CandidateWindow, len(windows))
	copy(sorted, windows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartMs < sorted[j].StartMs
	})

	merged := []entity.CandidateWindow{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if w.StartMs > last.EndMs {
			merged = append(merged, w)
			continue
		}
		last.EndMs = max(last.EndMs, w.EndMs)
		if w.Score > last.Score {
			last.Score = w.Score
			last.PeakMs = w.PeakMs
			last.Reason = w.Reason
		}
	}
	return merged
}
