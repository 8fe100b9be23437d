package selection

import (
	"math"
	"slices"
	"sort"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

var priorities = map[entity.EventType]int{
	entity.EventClick:            10,
	entity.EventHover:            9,
	entity.EventCursorOnElement:  8,
	entity.EventScroll:           6,
	entity.EventTransition:       5,
	entity.EventAnimationAnomaly: 4,
	entity.EventStateChange:      3,
}

// Priority ranks event types for selection; unknown types rank 0.
func Priority(t entity.EventType) int {
	return priorities[t]
}

// highPriority events always get their pre/post context frames.
func highPriority(t entity.EventType) bool {
	return t == entity.EventClick || t == entity.EventHover || t == entity.EventCursorOnElement
}

// FrameRef is the part of a frame the selector needs. Frames are passed in timestamp order
// and selected by their position in that slice.
type FrameRef struct {
	TimestampMs int64
	FinalScore  float64
}

type Selector struct {
	MinDistanceMs int64
	PreMs         int64
	PostMs        int64
	MinTarget     int
	MaxTarget     int
}

func DefaultSelector() Selector {
	return Selector{MinDistanceMs: 300, PreMs: 150, PostMs: 300, MinTarget: 8, MaxTarget: 15}
}

// Select returns the sorted positions in frames chosen as keyframes. fps is the base sampling
// rate; an event whose nearest frame is further than one base interval away has no frame to
// anchor on and is skipped.
func (s Selector) Select(events []entity.DetectedEvent, frames []FrameRef, fps float64) []int {
	if len(frames) == 0 {
		return nil
	}
	b := newBuilder(frames)
	b.add(0)
	b.add(len(frames) - 1)

	ordered := make([]entity.DetectedEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		pi, pj := Priority(ordered[i].Event), Priority(ordered[j].Event)
		if pi != pj {
			return pi > pj
		}
		return ordered[i].Confidence > ordered[j].Confidence
	})

	tolerance := int64(math.MaxInt64)
	if fps > 0 {
		tolerance = int64(math.Ceil(1000 / fps))
	}

	for _, ev := range ordered {
		peak := b.nearest(ev.TimestampMs)
		if abs64(frames[peak].TimestampMs-ev.TimestampMs) > tolerance {
			continue
		}
		if highPriority(ev.Event) || b.eventGap(frames[peak].TimestampMs) >= s.MinDistanceMs {
			b.addEvent(b.offset(peak, ev.TimestampMs-s.PreMs, -1))
			b.addEvent(peak)
			b.addEvent(b.offset(peak, ev.TimestampMs+s.PostMs, 1))
			continue
		}
		b.addEvent(peak)
	}

	target := min(max(2*len(events), s.MinTarget), s.MaxTarget)
	b.backfill(target, s.MinDistanceMs/2)
	return b.result()
}

// builder owns the working selection. Only result escapes it.
type builder struct {
	frames   []FrameRef
	selected map[int]bool
	// event-derived selections, which the min-distance gate measures against
	events []int64
}

func newBuilder(frames []FrameRef) *builder {
	return &builder{frames: frames, selected: make(map[int]bool)}
}

func (b *builder) add(i int) {
	b.selected[i] = true
}

func (b *builder) addEvent(i int) {
	b.selected[i] = true
	b.events = append(b.events, b.frames[i].TimestampMs)
}

// eventGap is the distance from ts to the nearest event keyframe, or MaxInt64 when none exist.
func (b *builder) eventGap(ts int64) int64 {
	gap := int64(math.MaxInt64)
	for _, e := range b.events {
		gap = min(gap, abs64(e-ts))
	}
	return gap
}

// nearest returns the frame closest to ts; the earlier one wins ties.
func (b *builder) nearest(ts int64) int {
	i := sort.Search(len(b.frames), func(i int) bool { return b.frames[i].TimestampMs >= ts })
	switch {
	case i == 0:
		return 0
	case i == len(b.frames):
		return len(b.frames) - 1
	case ts-b.frames[i-1].TimestampMs <= b.frames[i].TimestampMs-ts:
		return i - 1
	default:
		return i
	}
}

// offset finds the frame nearest ts, stepping one frame away from peak in direction dir when
// the nearest frame is the peak itself.
func (b *builder) offset(peak int, ts int64, dir int) int {
	i := b.nearest(ts)
	if i == peak {
		if j := peak + dir; j >= 0 && j < len(b.frames) {
			return j
		}
	}
	return i
}

func (b *builder) backfill(target int, spacingMs int64) {
	if len(b.selected) >= target {
		return
	}
	candidates := make([]int, 0, len(b.frames))
	for i := range b.frames {
		if !b.selected[i] {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(x, y int) bool {
		return b.frames[candidates[x]].FinalScore > b.frames[candidates[y]].FinalScore
	})

	for _, c := range candidates {
		if len(b.selected) >= target {
			return
		}
		if b.tooClose(c, spacingMs) {
			continue
		}
		b.add(c)
	}
}

func (b *builder) tooClose(c int, spacingMs int64) bool {
	ts := b.frames[c].TimestampMs
	for i := range b.selected {
		if abs64(b.frames[i].TimestampMs-ts) < spacingMs {
			return true
		}
	}
	return false
}

func (b *builder) result() []int {
	out := make([]int, 0, len(b.selected))
	for i := range b.selected {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
