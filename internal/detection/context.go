package detection

import (
	"fmt"
	"slices"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

const (
	changeNone  = "none"
	changeMinor = "minor"

	regionChangeMin = 0.05
	minorChangeMin  = 0.02
)

// Describe summarizes a frame's metrics and event for consumers that only need the gist.
// Both arguments may be nil.
func Describe(m *entity.FrameMetrics, ev *entity.DetectedEvent) entity.ChangeContext {
	cc := entity.ChangeContext{PrimaryChangeType: changeNone, Description: "no significant change"}
	if m == nil {
		if ev != nil {
			cc.PrimaryChangeType = string(ev.Event)
			cc.Description = ev.Reason
		}
		return cc
	}

	cc.ChangeScore = m.FinalScore
	cc.ChangedRegionCount = changedRegions(*m)
	cc.HasModal = m.GlobalHash > 0.2 && m.GlobalSSIM > 0.5 && m.MotionMagnitude < regionChangeMin &&
		(ev == nil || ev.Event == entity.EventTransition || ev.Event == entity.EventStateChange)

	switch {
	case ev != nil:
		cc.PrimaryChangeType = string(ev.Event)
		cc.Description = fmt.Sprintf("%s: %s", ev.Event, ev.Reason)
		cc.IsLoading = ev.Event == entity.EventAnimationAnomaly && slices.Contains(ev.Evidence.Details, "jitter")
	case m.FinalScore >= minorChangeMin:
		cc.PrimaryChangeType = changeMinor
		cc.Description = fmt.Sprintf("minor change %.3f across %d region(s)", m.FinalScore, cc.ChangedRegionCount)
	}
	return cc
}

// changedRegions counts the independent signals that moved: the cursor neighbourhood, the
// rest of the frame and bulk motion.
func changedRegions(m entity.FrameMetrics) int {
	n := 0
	if m.ROIScore > regionChangeMin {
		n++
	}
	if m.GlobalScore > regionChangeMin {
		n++
	}
	if m.MotionMagnitude > regionChangeMin {
		n++
	}
	return n
}
