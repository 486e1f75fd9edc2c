package render

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
)

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 64, 255})
		}
	}
	return img
}

func TestTIFFSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sink, err := TIFFSink(dir, nil)
	require.NoError(t, err)

	img := gradient(40, 30)
	require.NoError(t, sink(7, img))

	f, err := os.Open(filepath.Join(dir, "frame_00007.tiff"))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := tiff.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	r, g, b, _ := decoded.At(20, 15).RGBA()
	want := img.RGBAAt(20, 15)
	assert.Equal(t, uint32(want.R), r>>8)
	assert.Equal(t, uint32(want.G), g>>8)
	assert.Equal(t, uint32(want.B), b>>8)
}

func TestPreviewSinkScalesDown(t *testing.T) {
	dir := t.TempDir()
	sink, err := PreviewSink(dir, 16)
	require.NoError(t, err)
	require.NoError(t, sink(0, gradient(64, 32)))

	f, err := os.Open(filepath.Join(dir, "frame_00000.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	a, b := &recordingSink{failAt: 1}, &recordingSink{}
	sink := MultiSink(a.sink, b.sink)
	require.NoError(t, sink(0, gradient(2, 2)))
	assert.Error(t, sink(1, gradient(2, 2)))
	assert.Equal(t, []int{0}, b.ids)
}

func TestDrawHUD(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 60))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	drawHUD(img, FrameReport{FrameID: 3, Atoms: 12}.Lines())

	// The panel darkens the corner, glyphs stay white.
	assert.Less(t, img.RGBAAt(1, 1).R, uint8(0xff))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, img.RGBAAt(199, 59))

	white := 0
	for y := 0; y < 50; y++ {
		for x := 0; x < 150; x++ {
			if img.RGBAAt(x, y).R == 0xff {
				white++
			}
		}
	}
	assert.Positive(t, white)
}
