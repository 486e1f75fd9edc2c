package render

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gekko3d/molrt"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// FrameFileName is the name of offline frame id inside the output directory.
func FrameFileName(id int, ext string) string {
	return fmt.Sprintf("frame_%05d.%s", id, ext)
}

// TIFFSink writes each frame as a deflate-compressed TIFF into dir.
func TIFFSink(dir string, logger molrt.Logger) (FrameSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	logger = molrt.OrNop(logger)
	opts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
	return func(id int, img *image.RGBA) error {
		path := filepath.Join(dir, FrameFileName(id, "tiff"))
		if err := writeFile(path, func(f *os.File) error { return tiff.Encode(f, img, opts) }); err != nil {
			return err
		}
		logger.Debugf("sink: wrote %s", path)
		return nil
	}, nil
}

// PreviewSink writes a PNG thumbnail of every frame, at most maxWidth wide.
func PreviewSink(dir string, maxWidth int) (FrameSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return func(id int, img *image.RGBA) error {
		b := img.Bounds()
		var out image.Image = img
		if maxWidth > 0 && b.Dx() > maxWidth {
			h := max(1, b.Dy()*maxWidth/b.Dx())
			thumb := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
			draw.CatmullRom.Scale(thumb, thumb.Bounds(), img, b, draw.Src, nil)
			out = thumb
		}
		path := filepath.Join(dir, FrameFileName(id, "png"))
		return writeFile(path, func(f *os.File) error { return png.Encode(f, out) })
	}, nil
}

// MultiSink feeds every frame to each sink in turn and stops at the first
// error.
func MultiSink(sinks ...FrameSink) FrameSink {
	return func(id int, img *image.RGBA) error {
		for _, s := range sinks {
			if err := s(id, img); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeFile(path string, encode func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := encode(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
