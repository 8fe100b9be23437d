package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProber struct {
	meta *entity.VideoMetadata
	err  error
}

func (p *fakeProber) Probe(_ context.Context, _ string, video []byte) (*entity.VideoMetadata, error) {
	if p.err != nil {
		return nil, p.err
	}
	meta := *p.meta
	meta.SizeBytes = int64(len(video))
	return &meta, nil
}

// fakeSampler renders a recording that shows one screen until switchMs and another after.
type fakeSampler struct {
	mu         sync.Mutex
	durationMs int64
	switchMs   int64
	before     []byte
	after      []byte
	err        error
	calls      []port.SampleRequest
}

func (s *fakeSampler) Sample(_ context.Context, req port.SampleRequest) ([]port.SampledFrame, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, err
	}

	startMs, spanMs := int64(0), s.durationMs
	if req.Window != nil {
		startMs, spanMs = req.Window.StartMs, req.Window.DurationMs
	}
	n := int(float64(spanMs) * req.FPS / 1000)

	var frames []port.SampledFrame
	for i := 0; i < n; i++ {
		ts := startMs + int64(math.Round(float64(i)/req.FPS*1000))
		data := s.before
		if ts >= s.switchMs {
			data = s.after
		}
		path := filepath.Join(req.OutputDir, fmt.Sprintf("frame_%06d.jpg", i+1))
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		frames = append(frames, port.SampledFrame{Index: i, TimestampMs: ts, Path: path, Data: data})
	}
	if len(frames) == 0 {
		return nil, &entity.ExtractionError{Reason: entity.ExtractionNoFrames}
	}
	return frames, nil
}

func encodeGradient(t *testing.T, w, h int, invert bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / (w - 1))
			if invert {
				v = 255 - v
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

type harness struct {
	extractor *KeyframeExtractor
	sampler   *fakeSampler
	prober    *fakeProber
	tempDir   string
	stages    []Stage
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tempDir: t.TempDir(),
		prober: &fakeProber{meta: &entity.VideoMetadata{
			FormatName:      "mov,mp4,m4a,3gp,3g2,mj2",
			DurationSeconds: 2,
			Width:           160,
			Height:          120,
		}},
		sampler: &fakeSampler{
			durationMs: 2000,
			switchMs:   1000,
			before:     encodeGradient(t, 160, 120, false),
			after:      encodeGradient(t, 160, 120, true),
		},
	}

	cfg := DefaultExtractionConfig()
	cfg.TempDir = h.tempDir
	cfg.CoarseFPS = 5
	cfg.AnalysisWorkers = 2
	cfg.OnStage = func(_ string, s Stage) { h.stages = append(h.stages, s) }
	h.extractor = NewKeyframeExtractor(h.prober, h.sampler, zap.NewNop(), cfg)
	return h
}

func (h *harness) assertCleanedUp(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "run directory must be removed")
}

func TestExtractTwoPassPipeline(t *testing.T) {
	h := newHarness(t)

	res, err := h.extractor.Extract(context.Background(), "run-1", []byte("video bytes"))
	require.NoError(t, err)
	h.assertCleanedUp(t)

	assert.Equal(t, []Stage{
		StageValidating, StageCoarseScan, StageCoarseAnalyze, StageWindowPlan,
		StageFineScan, StageFineAnalyze, StageMerge, StageSelect, StageDone,
	}, h.stages)

	require.NotEmpty(t, res.Events, "the screen switch must be detected")
	require.NotEmpty(t, res.Windows)
	assert.Greater(t, len(h.sampler.calls), 1, "windows are re-sampled")
	fine := h.sampler.calls[1]
	require.NotNil(t, fine.Window)
	assert.Equal(t, 30.0, fine.FPS)
	assert.Equal(t, filepath.Join(h.tempDir, "run-1", "fine_000"), fine.OutputDir)

	frames := res.Frames
	require.NotEmpty(t, frames)
	coarse := map[int64]bool{}
	for ts := int64(0); ts < 2000; ts += 200 {
		coarse[ts] = true
	}
	var fineSeen int
	for i, f := range frames {
		if i > 0 {
			assert.Greater(t, f.TimestampMs, frames[i-1].TimestampMs, "frames sorted by timestamp")
		}
		assert.NotEqual(t, uuid.Nil, f.ID)
		if coarse[f.TimestampMs] {
			continue
		}
		fineSeen++
		for ts := range coarse {
			assert.GreaterOrEqual(t, abs(f.TimestampMs-ts), int64(50), "fine frame %d too close to coarse %d", f.TimestampMs, ts)
		}
	}
	assert.Positive(t, fineSeen, "fine frames away from the coarse grid survive the merge")

	keyframes := entity.Keyframes(frames)
	assert.NotEmpty(t, keyframes)
	assert.Less(t, len(keyframes), len(frames), "keyframes are a strict subset")
	assert.True(t, frames[0].IsKeyframe)
	assert.True(t, frames[len(frames)-1].IsKeyframe)

	var withEvent int
	for _, f := range frames {
		if f.Event != nil {
			withEvent++
			assert.Equal(t, string(f.Event.Event), f.ChangeContext.PrimaryChangeType)
		}
	}
	assert.Equal(t, len(res.Events), withEvent)
}

func TestExtractValidationErrorStopsBeforeSampling(t *testing.T) {
	h := newHarness(t)
	h.prober.err = &entity.ValidationError{Reason: entity.ValidationEmpty}

	_, err := h.extractor.Extract(context.Background(), "run-2", nil)

	var verr *entity.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, entity.ValidationEmpty, verr.Reason)
	assert.Empty(t, h.sampler.calls)
	assert.Equal(t, []Stage{StageValidating, StageFailed}, h.stages)
	h.assertCleanedUp(t)
}

func TestExtractDecoderFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.sampler.err = &entity.ExtractionError{Reason: entity.ExtractionDecoderFailed, Message: "boom"}

	_, err := h.extractor.Extract(context.Background(), "run-3", []byte("video"))

	var xerr *entity.ExtractionError
	require.True(t, errors.As(err, &xerr))
	assert.Equal(t, entity.ExtractionDecoderFailed, xerr.Reason)
	assert.Equal(t, StageFailed, h.stages[len(h.stages)-1])
	h.assertCleanedUp(t)
}

func TestExtractHonoursCancellationBetweenPasses(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.extractor.Extract(ctx, "run-4", []byte("video"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.sampler.calls)
	h.assertCleanedUp(t)
}

func TestExtractStaticRecordingHasNoWindows(t *testing.T) {
	h := newHarness(t)
	h.sampler.switchMs = math.MaxInt64

	res, err := h.extractor.Extract(context.Background(), "run-5", []byte("video"))
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Windows)
	assert.Len(t, h.sampler.calls, 1)
	assert.Len(t, res.Frames, 10)
	for _, f := range res.Frames {
		assert.Zero(t, f.DiffScore)
	}
}

func TestExtractRejectsUnsafeRunID(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"", "..", "a/b"} {
		_, err := h.extractor.Extract(context.Background(), id, []byte("video"))
		assert.Error(t, err, "run id %q", id)
	}
	assert.Empty(t, h.stages)
}

func TestMergePassesDropsNearDuplicates(t *testing.T) {
	coarse := []frameRecord{{timestampMs: 0}, {timestampMs: 200}, {timestampMs: 400}}
	fine := [][]frameRecord{
		{{timestampMs: 160}, {timestampMs: 193}, {timestampMs: 227}, {timestampMs: 260}},
		{{timestampMs: 300}, {timestampMs: 333}},
	}

	merged := mergePasses(coarse, fine, 50)
	var got []int64
	for _, r := range merged {
		got = append(got, r.timestampMs)
	}
	// 160 is 40ms from 200; 300 is 40ms from 260 which the first window contributed
	assert.Equal(t, []int64{0, 200, 260, 333, 400}, got)
}

func TestNearestRecord(t *testing.T) {
	records := []frameRecord{{timestampMs: 0}, {timestampMs: 100}, {timestampMs: 300}}
	assert.Equal(t, 0, nearestRecord(records, -20))
	assert.Equal(t, 0, nearestRecord(records, 50))
	assert.Equal(t, 1, nearestRecord(records, 190))
	assert.Equal(t, 2, nearestRecord(records, 900))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
