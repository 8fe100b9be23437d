package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/detection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.CoarseFPS)
	assert.Equal(t, 30.0, cfg.FineFPS)
	assert.Equal(t, int64(524288000), cfg.MaxVideoBytes)
	assert.Equal(t, []string{"mov", "mp4", "matroska", "webm"}, cfg.AllowedFormats)
	assert.Equal(t, "recordings", cfg.MinIOUploadBucket)
	assert.Equal(t, "keyframes", cfg.MinIOFrameBucket)

	x := cfg.Extraction()
	assert.Equal(t, int64(800), x.FineWindowMs)
	assert.Equal(t, 300.0, x.Metrics.ROIRadius)
	assert.Equal(t, int64(500), x.Thresholds.ClusterWindowMs)
	assert.Equal(t, int64(300), x.Selector.MinDistanceMs)
	assert.InDelta(t, 0.45, x.Metrics.Weights.ROI, 1e-12)
	assert.Equal(t, detection.DefaultThresholds().HoverMaxSpeed, x.Thresholds.HoverMaxSpeed)
	assert.Equal(t, 4, x.Thresholds.JitterWindow)
	assert.Equal(t, 450, x.Thresholds.ROISide)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("COARSE_FPS", "5")
	t.Setenv("ALLOWED_FORMATS", "mp4,webm")
	t.Setenv("MIN_KEYFRAME_DISTANCE_MS", "450")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.CoarseFPS)
	assert.Equal(t, []string{"mp4", "webm"}, cfg.Prober().AllowedFormats)
	assert.Equal(t, int64(450), cfg.Extraction().Selector.MinDistanceMs)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ANALYSIS_WORKERS=7\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("ANALYSIS_WORKERS") })

	cfg, err := Load(path, filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.AnalysisWorkers)
}

func TestLoadDetectorThresholds(t *testing.T) {
	t.Setenv("DETECT_HOVER_MAX_SPEED", "9")
	t.Setenv("DETECT_CLICK_LOOKAHEAD_MS", "350")
	t.Setenv("DETECT_JITTER_WINDOW", "6")
	t.Setenv("CURSOR_ROI_RADIUS", "100")

	cfg, err := Load()
	require.NoError(t, err)

	th := cfg.Extraction().Thresholds
	assert.Equal(t, 9.0, th.HoverMaxSpeed)
	assert.Equal(t, int64(350), th.ClickLookAheadMs)
	assert.Equal(t, 6, th.JitterWindow)
	assert.Equal(t, detection.DefaultThresholds().ClickMaxSpeed, th.ClickMaxSpeed)
	assert.Equal(t, 150, th.ROISide)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"FINE_FPS":                  "0",
		"CURSOR_ROI_RADIUS":         "-10",
		"EVENT_CLUSTER_WINDOW_MS":   "-1",
		"DETECT_JITTER_WINDOW":      "1",
		"DETECT_CLICK_LOOKAHEAD_MS": "-5",
		"DETECT_HOVER_ROI_SCALE":    "0",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
