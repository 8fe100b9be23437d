package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const maxVideoBytes = 500 << 20

func newTestProber(t *testing.T, ffprobe string) (*Prober, string) {
	t.Helper()
	dir := t.TempDir()
	return NewProber(ProberConfig{
		FFprobePath:    ffprobe,
		TempDir:        dir,
		MaxBytes:       maxVideoBytes,
		AllowedFormats: []string{"mov", "mp4", "matroska", "webm"},
	}, zap.NewNop()), dir
}

func validationReason(t *testing.T, err error) entity.ValidationReason {
	t.Helper()
	var verr *entity.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Reason
}

func TestProbeRejectsEmpty(t *testing.T) {
	p, _ := newTestProber(t, "ffprobe")
	_, err := p.Probe(context.Background(), "run-1", nil)
	assert.Equal(t, entity.ValidationEmpty, validationReason(t, err))
}

func TestProbeRejectsOversized(t *testing.T) {
	p, dir := newTestProber(t, "ffprobe")
	_, err := p.Probe(context.Background(), "run-1", make([]byte, 600<<20))
	assert.Equal(t, entity.ValidationTooLarge, validationReason(t, err))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "nothing is written before size validation passes")
}

func TestProbeFailureIsUnsupportedFormat(t *testing.T) {
	p, dir := newTestProber(t, filepath.Join(t.TempDir(), "no-such-ffprobe"))
	_, err := p.Probe(context.Background(), "run-1", []byte("definitely not a video"))
	assert.Equal(t, entity.ValidationUnsupportedFormat, validationReason(t, err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")
}

func TestParseProbeOutput(t *testing.T) {
	p, _ := newTestProber(t, "ffprobe")

	tests := []struct {
		name       string
		raw        string
		wantReason entity.ValidationReason
		wantW      int
		wantH      int
		wantDur    float64
	}{
		{
			name:    "mp4 with video stream",
			raw:     `{"format":{"format_name":"mov,mp4,m4a,3gp,3g2,mj2","duration":"12.480000"},"streams":[{"codec_type":"video","width":2560,"height":1440}]}`,
			wantW:   2560,
			wantH:   1440,
			wantDur: 12.48,
		},
		{
			name:    "audio first then video",
			raw:     `{"format":{"format_name":"matroska,webm","duration":"3.0"},"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1280,"height":720}]}`,
			wantW:   1280,
			wantH:   720,
			wantDur: 3,
		},
		{
			name:    "missing dimensions default to 1080p",
			raw:     `{"format":{"format_name":"QuickTime / MOV","duration":"1"},"streams":[]}`,
			wantW:   1920,
			wantH:   1080,
			wantDur: 1,
		},
		{
			name:       "image container",
			raw:        `{"format":{"format_name":"png_pipe","duration":"1"}}`,
			wantReason: entity.ValidationUnsupportedFormat,
		},
		{
			name:       "missing duration",
			raw:        `{"format":{"format_name":"mp4"}}`,
			wantReason: entity.ValidationNoDuration,
		},
		{
			name:       "non-finite duration",
			raw:        `{"format":{"format_name":"mp4","duration":"inf"}}`,
			wantReason: entity.ValidationNoDuration,
		},
		{
			name:       "zero duration",
			raw:        `{"format":{"format_name":"webm","duration":"0.000"}}`,
			wantReason: entity.ValidationNoDuration,
		},
		{
			name:       "garbage",
			raw:        `not json`,
			wantReason: entity.ValidationUnsupportedFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := p.parse([]byte(tt.raw), 42)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, validationReason(t, err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantW, meta.Width)
			assert.Equal(t, tt.wantH, meta.Height)
			assert.InDelta(t, tt.wantDur, meta.DurationSeconds, 1e-9)
			assert.Equal(t, int64(42), meta.SizeBytes)
		})
	}
}
