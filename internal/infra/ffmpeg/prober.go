package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	defaultWidth  = 1920
	defaultHeight = 1080
)

type ProberConfig struct {
	FFprobePath    string
	TempDir        string
	MaxBytes       int64
	AllowedFormats []string
}

// Prober validates recordings with ffprobe.
type Prober struct {
	cfg    ProberConfig
	logger *zap.Logger
}

func NewProber(cfg ProberConfig, logger *zap.Logger) *Prober {
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	return &Prober{cfg: cfg, logger: logger}
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

func (p *Prober) Probe(ctx context.Context, runID string, video []byte) (*entity.VideoMetadata, error) {
	if err := p.validateSize(video); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(p.cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("create probe dir: %w", err)
	}
	f, err := os.CreateTemp(p.cfg.TempDir, "probe-"+runID+"-*")
	if err != nil {
		return nil, fmt.Errorf("create probe file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(video); err != nil {
		f.Close()
		return nil, fmt.Errorf("write probe file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close probe file: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.cfg.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		f.Name(),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("probe video: %w", ctx.Err())
		}
		p.logger.Debug("ffprobe rejected input", zap.String("run_id", runID), zap.Error(err), zap.String("stderr", stderr.String()))
		return nil, &entity.ValidationError{Reason: entity.ValidationUnsupportedFormat, Detail: "ffprobe could not read the input"}
	}

	meta, err := p.parse(out, int64(len(video)))
	if err != nil {
		return nil, err
	}
	p.logger.Debug("video probed",
		zap.String("run_id", runID),
		zap.String("format", meta.FormatName),
		zap.Float64("duration", meta.DurationSeconds),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)
	return meta, nil
}

func (p *Prober) validateSize(video []byte) error {
	if len(video) == 0 {
		return &entity.ValidationError{Reason: entity.ValidationEmpty}
	}
	if p.cfg.MaxBytes > 0 && int64(len(video)) > p.cfg.MaxBytes {
		return &entity.ValidationError{
			Reason: entity.ValidationTooLarge,
			Detail: fmt.Sprintf("%d bytes exceeds %d", len(video), p.cfg.MaxBytes),
		}
	}
	return nil
}

// parse turns ffprobe JSON into metadata, enforcing the container and duration rules.
func (p *Prober) parse(raw []byte, size int64) (*entity.VideoMetadata, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &entity.ValidationError{Reason: entity.ValidationUnsupportedFormat, Detail: "unreadable probe output"}
	}

	if !p.allowedFormat(out.Format.FormatName) {
		return nil, &entity.ValidationError{Reason: entity.ValidationUnsupportedFormat, Detail: out.Format.FormatName}
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil, &entity.ValidationError{Reason: entity.ValidationNoDuration, Detail: out.Format.Duration}
	}

	meta := &entity.VideoMetadata{
		FormatName:      out.Format.FormatName,
		DurationSeconds: duration,
		SizeBytes:       size,
		Width:           defaultWidth,
		Height:          defaultHeight,
	}
	for _, s := range out.Streams {
		if s.CodecType != "" && s.CodecType != "video" {
			continue
		}
		if s.Width > 0 && s.Height > 0 {
			meta.Width, meta.Height = s.Width, s.Height
		}
		break
	}
	return meta, nil
}

func (p *Prober) allowedFormat(name string) bool {
	name = strings.ToLower(name)
	for _, marker := range p.cfg.AllowedFormats {
		if marker != "" && strings.Contains(name, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}
