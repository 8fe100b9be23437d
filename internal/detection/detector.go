package detection

import (
	"fmt"
	"math"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

// Thresholds holds every tunable constant of the classification rules. The env tags are read
// by the config package under the DETECT_ prefix.
type Thresholds struct {
	HoverMaxSpeed    float64 `env:"HOVER_MAX_SPEED"`
	HoverMinROI      float64 `env:"HOVER_MIN_ROI"`
	HoverMaxROI      float64 `env:"HOVER_MAX_ROI"`
	HoverROIScale    float64 `env:"HOVER_ROI_SCALE"`
	ClickMaxSpeed    float64 `env:"CLICK_MAX_SPEED"`
	ClickMinROI      float64 `env:"CLICK_MIN_ROI"`
	ClickConfirmROI  float64 `env:"CLICK_CONFIRM_ROI"`
	ClickOutrightROI float64 `env:"CLICK_OUTRIGHT_ROI"`
	ClickLookAheadMs int64   `env:"CLICK_LOOKAHEAD_MS"`

	ScrollMinMagnitude float64 `env:"SCROLL_MIN_MAGNITUDE"`
	ScrollMinCoherence float64 `env:"SCROLL_MIN_COHERENCE"`
	ScrollMinVertical  float64 `env:"SCROLL_MIN_VERTICAL"`

	TransitionMinGlobal float64 `env:"TRANSITION_MIN_GLOBAL"`

	FlickerSSIM        float64 `env:"FLICKER_SSIM"`
	JitterWindow       int     `env:"JITTER_WINDOW"`
	JitterMinVariance  float64 `env:"JITTER_MIN_VARIANCE"`
	StateChangeMinDiff float64 `env:"STATE_CHANGE_MIN_DIFF"`

	ParkedMaxSpeed   float64 `env:"PARKED_MAX_SPEED"`
	ParkedMinROIEdge float64 `env:"PARKED_MIN_ROI_EDGE"`
	ParkedMaxGlobal  float64 `env:"PARKED_MAX_GLOBAL"`

	ClusterWindowMs int64

	// ROISide is the edge of the square reported as event evidence around a visible cursor,
	// in frame pixels. Zero disables the region.
	ROISide int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		HoverMaxSpeed:    15,
		HoverMinROI:      0.03,
		HoverMaxROI:      0.15,
		HoverROIScale:    0.1,
		ClickMaxSpeed:    16,
		ClickMinROI:      0.08,
		ClickConfirmROI:  0.1,
		ClickOutrightROI: 0.15,
		ClickLookAheadMs: 200,

		ScrollMinMagnitude: 0.15,
		ScrollMinCoherence: 0.7,
		ScrollMinVertical:  0.7,

		TransitionMinGlobal: 0.35,

		FlickerSSIM:        0.8,
		JitterWindow:       4,
		JitterMinVariance:  0.02,
		StateChangeMinDiff: 0.08,

		ParkedMaxSpeed:   5,
		ParkedMinROIEdge: 0.15,
		ParkedMaxGlobal:  0.05,

		ClusterWindowMs: 500,

		ROISide: 450,
	}
}

// Observation is one analysed frame: where the cursor was and how the frame differs from the
// previous observation of the same pass. Metrics is nil for the first frame of a pass.
type Observation struct {
	Index       int
	TimestampMs int64
	Path        string
	Cursor      entity.CursorPosition
	Metrics     *entity.FrameMetrics
}

// Situation is what a rule sees when classifying the transition into frames[At].
type Situation struct {
	Frames []Observation
	At     int
	Speed  float64
	th     Thresholds
}

func NewSituation(frames []Observation, at int, th Thresholds) Situation {
	return Situation{Frames: frames, At: at, Speed: cursorSpeed(frames[at-1].Cursor, frames[at].Cursor), th: th}
}

func (s Situation) current() Observation { return s.Frames[s.At] }

func (s Situation) metrics() entity.FrameMetrics { return *s.Frames[s.At].Metrics }

func (s Situation) cursorVisible() bool { return s.Frames[s.At].Cursor.Visible }

// Verdict is a rule's positive classification.
type Verdict struct {
	Confidence float64
	Reason     string
	Details    []string
}

// Rule classifies a situation as Event when Match reports true.
type Rule struct {
	Event entity.EventType
	Match func(s Situation) (Verdict, bool)
}

type Detector struct {
	th    Thresholds
	rules []Rule
}

func NewDetector(th Thresholds) *Detector {
	return &Detector{th: th, rules: Rules()}
}

func (d *Detector) Thresholds() Thresholds {
	return d.th
}

// Rules returns the classification rules in precedence order; the first match wins.
func Rules() []Rule {
	return []Rule{
		{Event: entity.EventHover, Match: matchHover},
		{Event: entity.EventClick, Match: matchClick},
		{Event: entity.EventScroll, Match: matchScroll},
		{Event: entity.EventTransition, Match: matchTransition},
		{Event: entity.EventAnimationAnomaly, Match: matchAnimationAnomaly},
		{Event: entity.EventStateChange, Match: matchStateChange},
		{Event: entity.EventCursorOnElement, Match: matchCursorOnElement},
	}
}

// Classify runs the rule chain for frames[at]. Frames without metrics are idle.
func (d *Detector) Classify(frames []Observation, at int) (entity.EventType, Verdict) {
	if at <= 0 || at >= len(frames) || frames[at].Metrics == nil {
		return entity.EventIdle, Verdict{}
	}
	s := NewSituation(frames, at, d.th)
	for _, r := range d.rules {
		if v, ok := r.Match(s); ok {
			return r.Event, v
		}
	}
	return entity.EventIdle, Verdict{}
}

// Detect classifies every consecutive pair and clusters the non-idle results.
func (d *Detector) Detect(frames []Observation) []entity.DetectedEvent {
	var events []entity.DetectedEvent
	for i := 1; i < len(frames); i++ {
		kind, v := d.Classify(frames, i)
		if kind == entity.EventIdle {
			continue
		}
		f := frames[i]
		cursor := f.Cursor
		metrics := *f.Metrics
		ev := entity.DetectedEvent{
			TimestampMs: f.TimestampMs,
			FrameIndex:  f.Index,
			FramePath:   f.Path,
			Event:       kind,
			Confidence:  clamp01(v.Confidence),
			Evidence: entity.Evidence{
				Metrics: &metrics,
				Details: v.Details,
			},
			Reason: v.Reason,
		}
		if cursor.Visible {
			ev.Evidence.Cursor = &cursor
			ev.Evidence.ROI = roiAround(cursor, d.th.ROISide)
		}
		events = append(events, ev)
	}
	return Cluster(events, d.th.ClusterWindowMs)
}

// roiAround returns the side×side square centred on the cursor. It may extend past the frame.
func roiAround(c entity.CursorPosition, side int) *entity.Region {
	if side <= 0 {
		return nil
	}
	return &entity.Region{
		X:      int(math.Round(c.X)) - side/2,
		Y:      int(math.Round(c.Y)) - side/2,
		Width:  side,
		Height: side,
	}
}

func cursorSpeed(prev, curr entity.CursorPosition) float64 {
	if !prev.Visible || !curr.Visible {
		return 0
	}
	return math.Hypot(curr.X-prev.X, curr.Y-prev.Y)
}

func matchHover(s Situation) (Verdict, bool) {
	m := s.metrics()
	if !s.cursorVisible() || s.Speed >= s.th.HoverMaxSpeed {
		return Verdict{}, false
	}
	if m.ROIScore <= s.th.HoverMinROI || m.ROIScore >= s.th.HoverMaxROI {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: math.Min(1, m.ROIScore/s.th.HoverROIScale),
		Reason:     fmt.Sprintf("cursor resting (%.1f px/frame) with local change %.3f", s.Speed, m.ROIScore),
	}, true
}

func matchClick(s Situation) (Verdict, bool) {
	m := s.metrics()
	if !s.cursorVisible() || s.Speed <= 0 || s.Speed >= s.th.ClickMaxSpeed {
		return Verdict{}, false
	}
	if m.ROIScore > s.th.ClickOutrightROI {
		return Verdict{
			Confidence: math.Min(1, 0.5+2*m.ROIScore),
			Reason:     fmt.Sprintf("strong local response %.3f under slow cursor", m.ROIScore),
		}, true
	}
	if m.ROIScore <= s.th.ClickMinROI {
		return Verdict{}, false
	}
	confirmAt, ok := confirmClick(s)
	if !ok {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: math.Min(1, 0.5+2*m.ROIScore),
		Reason:     fmt.Sprintf("local change %.3f confirmed at %dms", m.ROIScore, confirmAt),
		Details:    []string{"confirmed by follow-up frame"},
	}, true
}

// confirmClick looks ahead, within the same observation sequence only, for a frame whose
// local change confirms the click.
func confirmClick(s Situation) (int64, bool) {
	start := s.current().TimestampMs
	for j := s.At + 1; j < len(s.Frames); j++ {
		f := s.Frames[j]
		if f.TimestampMs-start > s.th.ClickLookAheadMs {
			break
		}
		if f.Metrics != nil && f.Metrics.ROIScore > s.th.ClickConfirmROI {
			return f.TimestampMs, true
		}
	}
	return 0, false
}

func matchScroll(s Situation) (Verdict, bool) {
	m := s.metrics()
	if m.MotionMagnitude <= s.th.ScrollMinMagnitude || m.MotionCoherence <= s.th.ScrollMinCoherence {
		return Verdict{}, false
	}
	if math.Abs(math.Sin(m.MotionDirection)) <= s.th.ScrollMinVertical {
		return Verdict{}, false
	}
	dir := "down"
	if math.Sin(m.MotionDirection) < 0 {
		dir = "up"
	}
	return Verdict{
		Confidence: math.Min(1, m.MotionCoherence*math.Min(1, m.MotionMagnitude/0.3)),
		Reason:     fmt.Sprintf("coherent vertical motion, content moving %s", dir),
		Details:    []string{fmt.Sprintf("magnitude=%.3f coherence=%.3f", m.MotionMagnitude, m.MotionCoherence)},
	}, true
}

func matchTransition(s Situation) (Verdict, bool) {
	m := s.metrics()
	if m.GlobalScore <= s.th.TransitionMinGlobal {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: math.Min(1, m.GlobalScore/0.5),
		Reason:     fmt.Sprintf("global change %.3f (ssim %.3f)", m.GlobalScore, m.GlobalSSIM),
	}, true
}

func matchAnimationAnomaly(s Situation) (Verdict, bool) {
	m := s.metrics()
	if prev := s.Frames[s.At-1].Metrics; prev != nil {
		if m.GlobalSSIM > s.th.FlickerSSIM && prev.GlobalSSIM < s.th.FlickerSSIM {
			return Verdict{
				Confidence: 0.6,
				Reason:     fmt.Sprintf("flicker: ssim recovered %.3f -> %.3f", prev.GlobalSSIM, m.GlobalSSIM),
				Details:    []string{"flicker"},
			}, true
		}
	}

	var edges []float64
	for j := s.At; j >= 0 && len(edges) < s.th.JitterWindow; j-- {
		if s.Frames[j].Metrics == nil {
			break
		}
		edges = append(edges, s.Frames[j].Metrics.GlobalEdge)
	}
	if len(edges) < s.th.JitterWindow {
		return Verdict{}, false
	}
	if v := variance(edges); v > s.th.JitterMinVariance {
		return Verdict{
			Confidence: math.Min(1, v/0.05),
			Reason:     fmt.Sprintf("jitter: edge variance %.4f over %d frames", v, len(edges)),
			Details:    []string{"jitter"},
		}, true
	}
	return Verdict{}, false
}

func matchStateChange(s Situation) (Verdict, bool) {
	m := s.metrics()
	if m.FinalScore <= s.th.StateChangeMinDiff {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: math.Min(1, m.FinalScore/0.2),
		Reason:     fmt.Sprintf("combined change %.3f", m.FinalScore),
	}, true
}

func matchCursorOnElement(s Situation) (Verdict, bool) {
	m := s.metrics()
	if !s.cursorVisible() || s.Speed >= s.th.ParkedMaxSpeed {
		return Verdict{}, false
	}
	if m.ROIEdge <= s.th.ParkedMinROIEdge || m.GlobalScore >= s.th.ParkedMaxGlobal {
		return Verdict{}, false
	}
	return Verdict{
		Confidence: math.Min(1, m.ROIEdge/0.3),
		Reason:     fmt.Sprintf("cursor parked on edge-dense region (%.3f)", m.ROIEdge),
	}, true
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var v float64
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
