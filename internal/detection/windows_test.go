package detection

import (
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMergeWindowsOverlap(t *testing.T) {
	got := MergeWindows([]entity.CandidateWindow{
		{StartMs: 800, EndMs: 1500, PeakMs: 1150, Reason: "click", Score: 0.9},
		{StartMs: 0, EndMs: 1000, PeakMs: 500, Reason: "hover", Score: 0.4},
	})
	require.Len(t, got, 1)
	assert.Equal(t, entity.CandidateWindow{StartMs: 0, EndMs: 1500, PeakMs: 1150, Reason: "click", Score: 0.9}, got[0])
}

func TestMergeWindowsTouchingEdgesMerge(t *testing.T) {
	got := MergeWindows([]entity.CandidateWindow{
		{StartMs: 0, EndMs: 100, PeakMs: 50, Reason: "a", Score: 0.5},
		{StartMs: 100, EndMs: 200, PeakMs: 150, Reason: "b", Score: 0.5},
		{StartMs: 201, EndMs: 300, PeakMs: 250, Reason: "c", Score: 0.1},
	})
	require.Len(t, got, 2)
	assert.Equal(t, int64(200), got[0].EndMs)
	assert.Equal(t, "a", got[0].Reason, "earlier window keeps its peak on ties")
	assert.Equal(t, "c", got[1].Reason)
}

func TestPlanWindowsClampsToVideo(t *testing.T) {
	events := []entity.DetectedEvent{
		event(100, entity.EventHover, 0.5),
		event(4900, entity.EventScroll, 0.8),
	}
	got := PlanWindows(events, 800, 5000)
	require.Len(t, got, 2)
	assert.Equal(t, int64(0), got[0].StartMs)
	assert.Equal(t, int64(900), got[0].EndMs)
	assert.Equal(t, int64(4100), got[1].StartMs)
	assert.Equal(t, int64(5000), got[1].EndMs)
	assert.Equal(t, "scroll", got[1].Reason)
	assert.Equal(t, int64(4900), got[1].PeakMs)
}

func TestPlanWindowsSkipsEventsPastTheEnd(t *testing.T) {
	got := PlanWindows([]entity.DetectedEvent{event(6000, entity.EventClick, 1)}, 800, 5000)
	assert.Empty(t, got)
}

func TestMergeWindowsProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		in := make([]entity.CandidateWindow, n)
		for i := range in {
			start := rapid.Int64Range(0, 10_000).Draw(t, "start")
			length := rapid.Int64Range(1, 2_000).Draw(t, "length")
			in[i] = entity.CandidateWindow{
				StartMs: start,
				EndMs:   start + length,
				PeakMs:  start + length/2,
				Score:   rapid.Float64Range(0, 1).Draw(t, "score"),
			}
		}

		out := MergeWindows(in)
		for i := 1; i < len(out); i++ {
			if out[i].StartMs <= out[i-1].EndMs {
				t.Fatalf("windows %d and %d overlap: %+v %+v", i-1, i, out[i-1], out[i])
			}
		}
		for _, w := range in {
			covered := false
			for _, m := range out {
				if m.StartMs <= w.StartMs && w.EndMs <= m.EndMs {
					covered = true
					break
				}
			}
			if !covered {
				t.Fatalf("input window %+v not covered by %+v", w, out)
			}
		}
		for _, m := range out {
			if m.PeakMs < m.StartMs || m.PeakMs > m.EndMs {
				t.Fatalf("peak outside merged window: %+v", m)
			}
		}
	})
}
