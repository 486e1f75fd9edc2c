package core

import (
	"math"
	"strings"

	"github.com/gekko3d/molrt"
)

// Quality controls ambient occlusion sampling in the ray-trace kernel.
type Quality struct {
	MinSamples         int
	MaxSamples         int
	QualityCoefficient float32
}

var (
	QualityPreview     = Quality{MinSamples: 0, MaxSamples: 0, QualityCoefficient: 0}
	QualityInteractive = Quality{MinSamples: 3, MaxSamples: 7, QualityCoefficient: 30}
	QualityProduction  = Quality{MinSamples: 7, MaxSamples: 32, QualityCoefficient: 100}
)

func QualityPreset(name string) (Quality, error) {
	switch strings.ToLower(name) {
	case "preview":
		return QualityPreview, nil
	case "", "interactive":
		return QualityInteractive, nil
	case "production":
		return QualityProduction, nil
	}
	return Quality{}, molrt.ConfigurationError("quality preset", "unknown preset %q", name)
}

// ScaledCoefficient normalizes the coefficient to the number of pixels that
// effectively reach the screen: offline renders spread samples over a quarter
// of the pixels, upscaled renders over upscale^2 times more.
func (q Quality) ScaledCoefficient(width, height, upscale int, offline bool) float32 {
	pixels := float64(width * height)
	if offline {
		pixels /= 4
	} else {
		pixels *= float64(upscale * upscale)
	}
	return q.QualityCoefficient * float32(math.Sqrt(pixels)/1280)
}
