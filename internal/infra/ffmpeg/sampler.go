package ffmpeg

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/port"
	"go.uber.org/zap"
)

const framePattern = "frame_%06d.jpg"

// Sampler rasterizes videos into JPEG frames with ffmpeg.
type Sampler struct {
	ffmpegPath string
	logger     *zap.Logger
}

func NewSampler(ffmpegPath string, logger *zap.Logger) *Sampler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Sampler{ffmpegPath: ffmpegPath, logger: logger}
}

func (s *Sampler) Sample(ctx context.Context, req port.SampleRequest) ([]port.SampledFrame, error) {
	if req.FPS <= 0 {
		return nil, fmt.Errorf("sample frames: invalid fps %v", req.FPS)
	}
	if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create frames dir: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, sampleArgs(req)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sample frames: %w", ctx.Err())
		}
		return nil, &entity.ExtractionError{
			Reason:  entity.ExtractionDecoderFailed,
			Message: fmt.Sprintf("%v: %s", err, tail(string(output), 512)),
		}
	}

	var startMs int64
	if req.Window != nil {
		startMs = req.Window.StartMs
	}
	frames, err := readFrames(req.OutputDir, req.FPS, startMs)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, &entity.ExtractionError{Reason: entity.ExtractionNoFrames}
	}

	s.logger.Debug("frames sampled",
		zap.String("dir", req.OutputDir),
		zap.Float64("fps", req.FPS),
		zap.Int("count", len(frames)),
	)
	return frames, nil
}

func sampleArgs(req port.SampleRequest) []string {
	args := []string{
		"-y",
		"-i", req.VideoPath,
		"-vf", "fps=" + strconv.FormatFloat(req.FPS, 'f', -1, 64),
	}
	if req.Window != nil {
		args = append(args,
			"-ss", seconds(req.Window.StartMs),
			"-t", seconds(req.Window.DurationMs),
		)
	}
	return append(args, "-q:v", "2", filepath.Join(req.OutputDir, framePattern))
}

// readFrames loads every produced frame in name order. Timestamps are absolute: startMs plus
// the frame's offset at fps.
func readFrames(dir string, fps float64, startMs int64) ([]port.SampledFrame, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	sort.Strings(paths)

	frames := make([]port.SampledFrame, 0, len(paths))
	for i, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", filepath.Base(p), err)
		}
		frames = append(frames, port.SampledFrame{
			Index:       i,
			TimestampMs: startMs + int64(math.Round(float64(i)/fps*1000)),
			Path:        p,
			Data:        data,
		})
	}
	return frames, nil
}

func seconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
