package analysis

import (
	"fmt"
	"math"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/mdobak/go-xerrors"
	"go.uber.org/zap"
)

type CursorConfig struct {
	WindowSize     int
	Stride         int
	SampleStep     int
	EdgeThreshold  float64
	EdgeWeight     float64
	ContrastWeight float64
	MinScore       float64
}

func DefaultCursorConfig() CursorConfig {
	return CursorConfig{
		WindowSize:     32,
		Stride:         8,
		SampleStep:     4,
		EdgeThreshold:  30,
		EdgeWeight:     0.6,
		ContrastWeight: 0.4,
		MinScore:       0.15,
	}
}

// CursorDetector finds the most cursor-like small region of a frame: a window that is both
// edge-dense and high-contrast. It is a cheap heuristic; misses are expected.
type CursorDetector struct {
	cfg    CursorConfig
	logger *zap.Logger
}

func NewCursorDetector(cfg CursorConfig, logger *zap.Logger) *CursorDetector {
	return &CursorDetector{cfg: cfg, logger: logger}
}

// Detect never fails; any internal error is logged and reported as an invisible cursor.
func (d *CursorDetector) Detect(r *Raster) entity.CursorPosition {
	pos, err := d.detect(r)
	if err != nil {
		d.logger.Debug("cursor detection failed", zap.Error(err))
		return entity.CursorPosition{Shape: entity.CursorUnknown}
	}
	return pos
}

func (d *CursorDetector) detect(r *Raster) (pos entity.CursorPosition, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &entity.CursorDetectionError{Err: xerrors.New(fmt.Sprint(rec))}
		}
	}()

	if r.empty() {
		return entity.CursorPosition{}, &entity.CursorDetectionError{Err: fmt.Errorf("empty raster")}
	}
	win := d.cfg.WindowSize
	if r.Width < win || r.Height < win {
		return entity.CursorPosition{Shape: entity.CursorUnknown}, nil
	}

	luma := lumaPlane(r)
	strong := d.strongGradients(luma, r.Width, r.Height)

	bestScore := -1.0
	bestX, bestY := 0, 0
	for wy := 0; wy+win <= r.Height; wy += d.cfg.Stride {
		for wx := 0; wx+win <= r.Width; wx += d.cfg.Stride {
			score := d.cfg.EdgeWeight*d.edgeDensity(strong, r.Width, wx, wy) +
				d.cfg.ContrastWeight*localContrast(luma, r.Width, wx, wy, win)
			if score > bestScore {
				bestScore = score
				bestX, bestY = wx, wy
			}
		}
	}

	if bestScore <= d.cfg.MinScore {
		return entity.CursorPosition{Shape: entity.CursorUnknown}, nil
	}
	return entity.CursorPosition{
		X:          float64(bestX + win/2),
		Y:          float64(bestY + win/2),
		Confidence: math.Min(bestScore*2, 1),
		Shape:      entity.CursorUnknown,
		Visible:    true,
	}, nil
}

// strongGradients marks sampled pixels whose forward-difference gradient exceeds the threshold.
func (d *CursorDetector) strongGradients(luma []float64, w, h int) []bool {
	strong := make([]bool, w*h)
	step := d.cfg.SampleStep
	for y := 0; y+1 < h; y += step {
		for x := 0; x+1 < w; x += step {
			i := y*w + x
			gx := luma[i+1] - luma[i]
			gy := luma[i+w] - luma[i]
			strong[i] = math.Sqrt(gx*gx+gy*gy) > d.cfg.EdgeThreshold
		}
	}
	return strong
}

func (d *CursorDetector) edgeDensity(strong []bool, w, wx, wy int) float64 {
	step := d.cfg.SampleStep
	win := d.cfg.WindowSize
	hits, samples := 0, 0
	for y := wy - wy%step; y < wy+win; y += step {
		if y < wy {
			continue
		}
		for x := wx - wx%step; x < wx+win; x += step {
			if x < wx {
				continue
			}
			samples++
			if strong[y*w+x] {
				hits++
			}
		}
	}
	if samples == 0 {
		return 0
	}
	return float64(hits) / float64(samples)
}

func localContrast(luma []float64, w, wx, wy, win int) float64 {
	lo, hi := 255.0, 0.0
	for y := wy; y < wy+win; y++ {
		row := luma[y*w+wx : y*w+wx+win]
		for _, v := range row {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return (hi - lo) / 255
}

func lumaPlane(r *Raster) []float64 {
	out := make([]float64, r.Width*r.Height)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			out[y*r.Width+x] = r.Luma(x, y)
		}
	}
	return out
}
