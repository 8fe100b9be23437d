package analysis

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// MaxFrameWidth bounds the width frames are decoded at before any analysis.
const MaxFrameWidth = 1920

// Raster is a packed 8-bit RGB image. Pix holds Width*Height*3 bytes, row-major.
type Raster struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewRaster(width, height int) *Raster {
	return &Raster{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// At returns channel c (0=R, 1=G, 2=B) of pixel (x, y).
func (r *Raster) At(x, y, c int) uint8 {
	return r.Pix[(y*r.Width+x)*3+c]
}

func (r *Raster) Set(x, y int, red, green, blue uint8) {
	i := (y*r.Width + x) * 3
	r.Pix[i] = red
	r.Pix[i+1] = green
	r.Pix[i+2] = blue
}

// Luma returns 0.299R+0.587G+0.114B for pixel (x, y).
func (r *Raster) Luma(x, y int) float64 {
	i := (y*r.Width + x) * 3
	return 0.299*float64(r.Pix[i]) + 0.587*float64(r.Pix[i+1]) + 0.114*float64(r.Pix[i+2])
}

func (r *Raster) empty() bool {
	return r == nil || r.Width <= 0 || r.Height <= 0 || len(r.Pix) < r.Width*r.Height*3
}

// DecodeFrame decodes an encoded frame and downsizes it to at most maxWidth pixels wide,
// preserving the aspect ratio.
func DecodeFrame(data []byte, maxWidth int) (*Raster, error) {
	if len(data) == 0 {
		return nil, errors.New("decode frame: empty buffer")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		w = maxWidth
	}
	return FromImage(img, w, h), nil
}

// FromImage rasterizes img into a w×h RGB raster, resampling when sizes differ.
func FromImage(img image.Image, w, h int) *Raster {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	out := NewRaster(w, h)
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < w; x++ {
			out.Set(x, y, row[x*4], row[x*4+1], row[x*4+2])
		}
	}
	return out
}

// Image exposes the raster as an image.Image for resampling.
func (r *Raster) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	for y := 0; y < r.Height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < r.Width; x++ {
			i := (y*r.Width + x) * 3
			row[x*4] = r.Pix[i]
			row[x*4+1] = r.Pix[i+1]
			row[x*4+2] = r.Pix[i+2]
			row[x*4+3] = 0xff
		}
	}
	return img
}

// Resize returns a copy of r resampled to w×h.
func (r *Raster) Resize(w, h int) *Raster {
	if w == r.Width && h == r.Height {
		cp := NewRaster(w, h)
		copy(cp.Pix, r.Pix)
		return cp
	}
	return FromImage(r.Image(), w, h)
}

// Channel extracts one colour channel as a w×h plane.
func (r *Raster) Channel(c int) []uint8 {
	plane := make([]uint8, r.Width*r.Height)
	for i := range plane {
		plane[i] = r.Pix[i*3+c]
	}
	return plane
}
