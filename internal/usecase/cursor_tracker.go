package usecase

import (
	"math"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
)

const (
	cursorDecay         = 0.5
	cursorMinConfidence = 0.05
)

// cursorTracker carries the last detected cursor across frames where detection missed,
// halving its confidence per consecutive miss until it is no longer credible.
type cursorTracker struct {
	last   entity.CursorPosition
	have   bool
	misses int
}

func (t *cursorTracker) next(found entity.CursorPosition) entity.CursorPosition {
	if found.Visible {
		t.last, t.have, t.misses = found, true, 0
		return found
	}
	if !t.have {
		return found
	}
	t.misses++
	conf := t.last.Confidence * math.Pow(cursorDecay, float64(t.misses))
	if conf < cursorMinConfidence {
		return entity.CursorPosition{Shape: entity.CursorUnknown}
	}
	carried := t.last
	carried.Confidence = conf
	return carried
}
