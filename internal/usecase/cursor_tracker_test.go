package usecase

import (
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestCursorTrackerDecaysMisses(t *testing.T) {
	var tr cursorTracker
	miss := entity.CursorPosition{Shape: entity.CursorUnknown}

	assert.False(t, tr.next(miss).Visible, "nothing to carry yet")

	seen := entity.CursorPosition{X: 40, Y: 60, Confidence: 0.8, Shape: entity.CursorUnknown, Visible: true}
	assert.Equal(t, seen, tr.next(seen))

	wantConf := []float64{0.4, 0.2, 0.1, 0.05}
	for i, want := range wantConf {
		got := tr.next(miss)
		assert.True(t, got.Visible, "miss %d", i+1)
		assert.InDelta(t, want, got.Confidence, 1e-12)
		assert.Equal(t, 40.0, got.X)
		assert.Equal(t, 60.0, got.Y)
	}
	assert.False(t, tr.next(miss).Visible, "0.025 is below the floor")

	again := entity.CursorPosition{X: 10, Y: 10, Confidence: 0.5, Visible: true}
	assert.Equal(t, again, tr.next(again))
	assert.InDelta(t, 0.25, tr.next(miss).Confidence, 1e-12)
}
