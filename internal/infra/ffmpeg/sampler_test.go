package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSampleArgs(t *testing.T) {
	full := sampleArgs(port.SampleRequest{VideoPath: "in.mp4", OutputDir: "out", FPS: 10})
	assert.Equal(t, []string{"-y", "-i", "in.mp4", "-vf", "fps=10", "-q:v", "2", filepath.Join("out", "frame_%06d.jpg")}, full)

	windowed := sampleArgs(port.SampleRequest{
		VideoPath: "in.mp4",
		OutputDir: "fine_000",
		FPS:       30,
		Window:    &port.TimeWindow{StartMs: 1250, DurationMs: 1600},
	})
	assert.Equal(t, []string{
		"-y", "-i", "in.mp4", "-vf", "fps=30", "-ss", "1.250", "-t", "1.600",
		"-q:v", "2", filepath.Join("fine_000", "frame_%06d.jpg"),
	}, windowed)
}

func TestReadFramesOrdersAndTimestamps(t *testing.T) {
	dir := t.TempDir()
	for _, i := range []int{3, 1, 2} {
		name := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i))
		require.NoError(t, os.WriteFile(name, []byte{byte(i)}, 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	frames, err := readFrames(dir, 30, 1000)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []int64{1000, 1033, 1067}, []int64{frames[0].TimestampMs, frames[1].TimestampMs, frames[2].TimestampMs})
	assert.Equal(t, []byte{1}, frames[0].Data)
	assert.Equal(t, 2, frames[2].Index)
}

func TestSampleDecoderFailure(t *testing.T) {
	s := NewSampler(filepath.Join(t.TempDir(), "no-such-ffmpeg"), zap.NewNop())
	_, err := s.Sample(context.Background(), port.SampleRequest{VideoPath: "in.mp4", OutputDir: t.TempDir(), FPS: 10})

	var xerr *entity.ExtractionError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, entity.ExtractionDecoderFailed, xerr.Reason)
}

func TestSampleRejectsBadFPS(t *testing.T) {
	s := NewSampler("ffmpeg", zap.NewNop())
	_, err := s.Sample(context.Background(), port.SampleRequest{OutputDir: t.TempDir()})
	assert.Error(t, err)
}
