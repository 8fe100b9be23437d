package analysis

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestDecodeFrameDownsizesWideFrames(t *testing.T) {
	r, err := DecodeFrame(encodeJPEG(t, 400, 200, color.White), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, r.Width)
	assert.Equal(t, 50, r.Height)
	assert.Len(t, r.Pix, 100*50*3)
	assert.InDelta(t, 255, r.Luma(50, 25), 3)
}

func TestDecodeFrameKeepsNarrowFrames(t *testing.T) {
	r, err := DecodeFrame(encodeJPEG(t, 64, 48, color.Black), MaxFrameWidth)
	require.NoError(t, err)
	assert.Equal(t, 64, r.Width)
	assert.Equal(t, 48, r.Height)
}

func TestDecodeFrameErrors(t *testing.T) {
	_, err := DecodeFrame(nil, 100)
	assert.ErrorContains(t, err, "empty buffer")

	_, err = DecodeFrame([]byte("not an image"), 100)
	assert.ErrorContains(t, err, "decode frame")
}

func TestRasterSetAt(t *testing.T) {
	r := NewRaster(2, 2)
	r.Set(1, 0, 10, 20, 30)
	assert.Equal(t, uint8(20), r.At(1, 0, 1))
	assert.Equal(t, []uint8{10, 20, 30}, r.Pix[3:6])
	assert.False(t, r.empty())
	assert.True(t, (*Raster)(nil).empty())
}
