package detection

import (
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	jitter := event(100, entity.EventAnimationAnomaly, 0.8)
	jitter.Evidence.Details = []string{"jitter"}
	flicker := event(100, entity.EventAnimationAnomaly, 0.6)
	flicker.Evidence.Details = []string{"flicker"}
	click := event(100, entity.EventClick, 0.9)
	click.Reason = "strong local response"

	tests := []struct {
		name     string
		metrics  *entity.FrameMetrics
		event    *entity.DetectedEvent
		wantType string
		modal    bool
		loading  bool
		regions  int
	}{
		{name: "nothing", wantType: "none"},
		{name: "unchanged frame", metrics: idle(), wantType: "none"},
		{name: "minor drift", metrics: scored(entity.FrameMetrics{GlobalSSIM: 0.9, ROISSIM: 0.9}), wantType: "minor"},
		{name: "click", metrics: roiOnly(0.2), event: &click, wantType: "click", regions: 1},
		{name: "loading spinner", metrics: idle(), event: &jitter, wantType: "animation_anomaly", loading: true},
		{name: "flicker is not loading", metrics: idle(), event: &flicker, wantType: "animation_anomaly"},
		{
			name:     "overlay appearing",
			metrics:  scored(entity.FrameMetrics{GlobalSSIM: 0.8, GlobalHash: 0.3, ROISSIM: 0.8, ROIHash: 0.3}),
			wantType: "minor",
			modal:    true,
			regions:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := Describe(tt.metrics, tt.event)
			assert.Equal(t, tt.wantType, cc.PrimaryChangeType)
			assert.Equal(t, tt.modal, cc.HasModal)
			assert.Equal(t, tt.loading, cc.IsLoading)
			assert.Equal(t, tt.regions, cc.ChangedRegionCount)
			assert.NotEmpty(t, cc.Description)
		})
	}
}

func TestDescribeCarriesScore(t *testing.T) {
	m := roiOnly(0.2)
	cc := Describe(m, nil)
	assert.InDelta(t, m.FinalScore, cc.ChangeScore, 1e-12)
	assert.Contains(t, cc.Description, "minor change")
}
