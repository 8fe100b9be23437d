package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/aadithva/flowsense-gpt4o-sub000/internal/domain/entity"
	"github.com/mdobak/go-xerrors"
)

const (
	ssimC1 = (0.01 * 255) * (0.01 * 255)
	ssimC2 = (0.03 * 255) * (0.03 * 255)
)

// Weights combine the per-signal scores into FrameMetrics.FinalScore.
type Weights struct {
	ROI    float64
	Global float64
	Motion float64
	Edge   float64
}

func DefaultWeights() Weights {
	return Weights{ROI: 0.45, Global: 0.25, Motion: 0.20, Edge: 0.10}
}

type MetricsConfig struct {
	Weights      Weights
	Scale        float64
	ROIRadius    float64
	SSIMStride   int
	HashSize     int
	BlockSize    int
	SearchRadius int
	SearchStride int
}

func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Weights:      DefaultWeights(),
		Scale:        0.75,
		ROIRadius:    300,
		SSIMStride:   3,
		HashSize:     16,
		BlockSize:    32,
		SearchRadius: 16,
		SearchStride: 4,
	}
}

// ROISide is the edge of the square cropped around the cursor, in scaled pixels.
func (c MetricsConfig) ROISide() int {
	return int(2 * c.ROIRadius * c.Scale)
}

// Plane is a single 8-bit channel.
type Plane struct {
	W   int
	H   int
	Pix []uint8
}

func (p Plane) at(x, y int) uint8 {
	return p.Pix[y*p.W+x]
}

// Motion is the aggregate block-matching result between two planes.
type Motion struct {
	Magnitude float64
	Direction float64
	Coherence float64
}

type MetricsEngine struct {
	cfg MetricsConfig
}

func NewMetricsEngine(cfg MetricsConfig) *MetricsEngine {
	return &MetricsEngine{cfg: cfg}
}

func (e *MetricsEngine) Config() MetricsConfig {
	return e.cfg
}

// Compute measures how curr differs from prev. Both rasters are rescaled to Scale times the
// source resolution first. cursor is in curr's pixel coordinates and may be nil.
func (e *MetricsEngine) Compute(prev, curr *Raster, cursor *entity.CursorPosition, srcW, srcH int) (m entity.FrameMetrics, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &entity.MetricComputationError{Stage: "pair", Err: xerrors.New(fmt.Sprint(rec))}
		}
	}()

	if prev.empty() || curr.empty() {
		return m, &entity.MetricComputationError{Stage: "input", Err: errors.New("empty raster")}
	}
	if prev.Width != curr.Width || prev.Height != curr.Height {
		return m, &entity.MetricComputationError{
			Stage: "input",
			Err:   fmt.Errorf("size mismatch %dx%d vs %dx%d", prev.Width, prev.Height, curr.Width, curr.Height),
		}
	}

	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = curr.Width, curr.Height
	}
	w := max(1, int(math.Round(float64(srcW)*e.cfg.Scale)))
	h := max(1, int(math.Round(float64(srcH)*e.cfg.Scale)))
	a := prev.Resize(w, h).Channel(0)
	b := curr.Resize(w, h).Channel(0)
	pa, pb := Plane{W: w, H: h, Pix: a}, Plane{W: w, H: h, Pix: b}

	m.GlobalSSIM = SSIM(pa, pb, e.cfg.SSIMStride)
	m.GlobalHash = HashDelta(pa, pb, e.cfg.HashSize)
	m.GlobalEdge = EdgeDelta(pa, pb)

	if cursor != nil && cursor.Visible {
		cx := cursor.X * float64(w) / float64(curr.Width)
		cy := cursor.Y * float64(h) / float64(curr.Height)
		side := e.cfg.ROISide()
		ra, rb := CropROI(pa, cx, cy, side), CropROI(pb, cx, cy, side)
		m.ROISSIM = SSIM(ra, rb, e.cfg.SSIMStride)
		m.ROIHash = HashDelta(ra, rb, e.cfg.HashSize)
		m.ROIEdge = EdgeDelta(ra, rb)
	} else {
		m.ROISSIM, m.ROIHash, m.ROIEdge = m.GlobalSSIM, m.GlobalHash, m.GlobalEdge
	}

	mo := EstimateMotion(pa, pb, e.cfg.BlockSize, e.cfg.SearchRadius, e.cfg.SearchStride)
	m.MotionMagnitude = mo.Magnitude
	m.MotionDirection = mo.Direction
	m.MotionCoherence = mo.Coherence

	e.Score(&m)
	return m, nil
}

// Score fills the composite fields of m from its raw signals.
func (e *MetricsEngine) Score(m *entity.FrameMetrics) {
	m.GlobalScore = compositeScore(m.GlobalSSIM, m.GlobalHash, m.GlobalEdge)
	m.ROIScore = compositeScore(m.ROISSIM, m.ROIHash, m.ROIEdge)
	m.MotionScore = m.MotionMagnitude
	wt := e.cfg.Weights
	m.FinalScore = wt.ROI*m.ROIScore + wt.Global*m.GlobalScore + wt.Motion*m.MotionScore + wt.Edge*m.GlobalEdge
}

func compositeScore(ssim, hash, edge float64) float64 {
	return 0.4*(1-ssim) + 0.3*hash + 0.3*edge
}

// SSIM is a single-window structural similarity over every stride-th pixel.
func SSIM(a, b Plane, stride int) float64 {
	if bytes.Equal(a.Pix, b.Pix) {
		return 1
	}
	if stride < 1 {
		stride = 1
	}
	n := min(len(a.Pix), len(b.Pix))
	if n == 0 {
		return 1
	}

	var sum1, sum2 float64
	count := 0
	for i := 0; i < n; i += stride {
		sum1 += float64(a.Pix[i])
		sum2 += float64(b.Pix[i])
		count++
	}
	mu1 := sum1 / float64(count)
	mu2 := sum2 / float64(count)

	var var1, var2, cov float64
	for i := 0; i < n; i += stride {
		d1 := float64(a.Pix[i]) - mu1
		d2 := float64(b.Pix[i]) - mu2
		var1 += d1 * d1
		var2 += d2 * d2
		cov += d1 * d2
	}
	var1 /= float64(count)
	var2 /= float64(count)
	cov /= float64(count)

	num := (2*mu1*mu2 + ssimC1) * (2*cov + ssimC2)
	den := (mu1*mu1 + mu2*mu2 + ssimC1) * (var1 + var2 + ssimC2)
	return num / den
}

// DHash builds a size×size difference hash: each bit compares a sampled pixel to the one
// stepX to its right.
func DHash(p Plane, size int) []bool {
	bits := make([]bool, size*size)
	if p.W == 0 || p.H == 0 {
		return bits
	}
	stepX := max(1, p.W/(size+1))
	stepY := max(1, p.H/size)
	for y := 0; y < size; y++ {
		py := min(y*stepY, p.H-1)
		for x := 0; x < size; x++ {
			px := min(x*stepX, p.W-1)
			nx := min(px+stepX, p.W-1)
			bits[y*size+x] = p.at(px, py) > p.at(nx, py)
		}
	}
	return bits
}

// HashDelta is the normalized Hamming distance between the dHashes of a and b.
func HashDelta(a, b Plane, size int) float64 {
	ha, hb := DHash(a, size), DHash(b, size)
	diff := 0
	for i := range ha {
		if ha[i] != hb[i] {
			diff++
		}
	}
	return float64(diff) / float64(len(ha))
}

// EdgeMap computes central-difference gradient magnitudes clamped to 255. Border pixels are 0.
func EdgeMap(p Plane) []float64 {
	out := make([]float64, p.W*p.H)
	for y := 1; y < p.H-1; y++ {
		for x := 1; x < p.W-1; x++ {
			gx := float64(p.at(x+1, y)) - float64(p.at(x-1, y))
			gy := float64(p.at(x, y+1)) - float64(p.at(x, y-1))
			out[y*p.W+x] = math.Min(math.Sqrt(gx*gx+gy*gy), 255)
		}
	}
	return out
}

// EdgeDelta is the mean absolute difference of the two edge maps, normalized to [0,1].
func EdgeDelta(a, b Plane) float64 {
	ea, eb := EdgeMap(a), EdgeMap(b)
	n := min(len(ea), len(eb))
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += math.Abs(ea[i] - eb[i])
	}
	return sum / float64(n) / 255
}

// CropROI cuts a side×side square centred on (cx, cy). Pixels outside p are zero.
func CropROI(p Plane, cx, cy float64, side int) Plane {
	out := Plane{W: side, H: side, Pix: make([]uint8, side*side)}
	x0 := int(math.Round(cx)) - side/2
	y0 := int(math.Round(cy)) - side/2
	for y := 0; y < side; y++ {
		sy := y0 + y
		if sy < 0 || sy >= p.H {
			continue
		}
		for x := 0; x < side; x++ {
			sx := x0 + x
			if sx < 0 || sx >= p.W {
				continue
			}
			out.Pix[y*side+x] = p.at(sx, sy)
		}
	}
	return out
}

// EstimateMotion block-matches a against b and aggregates the per-block displacements.
func EstimateMotion(a, b Plane, block, radius, stride int) Motion {
	type vec struct{ dx, dy float64 }
	var vectors []vec

	for by := 0; by+block <= a.H; by += block {
		for bx := 0; bx+block <= a.W; bx += block {
			bestSAD := math.MaxInt
			bestDX, bestDY := 0, 0
			for dy := -radius; dy <= radius; dy += stride {
				if by+dy < 0 || by+dy+block > b.H {
					continue
				}
				for dx := -radius; dx <= radius; dx += stride {
					if bx+dx < 0 || bx+dx+block > b.W {
						continue
					}
					sad := blockSAD(a, b, bx, by, dx, dy, block, stride, bestSAD)
					if sad < bestSAD || (sad == bestSAD && abs(dx)+abs(dy) < abs(bestDX)+abs(bestDY)) {
						bestSAD = sad
						bestDX, bestDY = dx, dy
					}
				}
			}
			vectors = append(vectors, vec{float64(bestDX), float64(bestDY)})
		}
	}

	if len(vectors) == 0 {
		return Motion{}
	}

	var mx, my float64
	for _, v := range vectors {
		mx += v.dx
		my += v.dy
	}
	mx /= float64(len(vectors))
	my /= float64(len(vectors))

	meanAngle := math.Atan2(my, mx)
	var coherence float64
	for _, v := range vectors {
		coherence += (math.Cos(math.Atan2(v.dy, v.dx)-meanAngle) + 1) / 2
	}

	return Motion{
		Magnitude: math.Min(math.Hypot(mx, my)/float64(radius), 1),
		Direction: meanAngle,
		Coherence: coherence / float64(len(vectors)),
	}
}

// blockSAD stops early once the running sum exceeds limit.
func blockSAD(a, b Plane, bx, by, dx, dy, block, stride, limit int) int {
	sad := 0
	for y := 0; y < block; y += stride {
		for x := 0; x < block; x += stride {
			d := int(a.at(bx+x, by+y)) - int(b.at(bx+dx+x, by+dy+y))
			if d < 0 {
				d = -d
			}
			sad += d
		}
		if sad > limit {
			return sad
		}
	}
	return sad
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
