package core

import "github.com/go-gl/mathgl/mgl32"

// JitterPeriod is the length of the Halton sub-pixel sequence.
const JitterPeriod = 32

// Halton returns the index-th element of the radical inverse sequence in the
// given base. Index 0 maps to 0.
func Halton(index, base int) float32 {
	result := float32(0)
	fraction := float32(1)
	for index > 0 {
		fraction /= float32(base)
		result += fraction * float32(index%base)
		index /= base
	}
	return result
}

// JitterOffset is the sub-pixel camera offset for a frame, in [-0.5, 0.5).
func JitterOffset(frameID int) mgl32.Vec2 {
	i := frameID%JitterPeriod + 1
	return mgl32.Vec2{Halton(i, 2) - 0.5, Halton(i, 3) - 0.5}
}
