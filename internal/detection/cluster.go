package detection

import (
	"sort"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

// Cluster groups events that start within windowMs of a cluster's first event and keeps the
// most confident event of each group (the earliest one on ties). The result is time ordered.
func Cluster(events []entity.DetectedEvent, windowMs int64) []entity.DetectedEvent {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]entity.DetectedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampMs < sorted[j].TimestampMs
	})

	var out []entity.DetectedEvent
	start := sorted[0].TimestampMs
	best := sorted[0]
	for _, ev := range sorted[1:] {
		if ev.TimestampMs-start < windowMs {
			if ev.Confidence > best.Confidence {
				best = ev
			}
			continue
		}
		out = append(out, best)
		start = ev.TimestampMs
		best = ev
	}
	return append(out, best)
}
