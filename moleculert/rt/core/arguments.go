package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ArgumentsSize is the size of one argument block. The kernel binding holds
// the current block followed by the previous frame's.
//
// struct Arguments {
//    position : vec3<f32>; fov_multiplier : f32;           (16)
//    basis : mat3x4<f32>;                                   (48)
//    jitter : vec2<f32>; frame_id : u32; light_count : u32; (16)
//    min_samples : f32; max_samples : f32;
//    quality_coefficient : f32; light_power : f32;          (16)
//    grid_width : u32; world_to_voxel : f32;
//    width : u32; height : u32;                             (16)
//    padding : vec4<u32>;                                   (16)
// }; -> 128 bytes
const ArgumentsSize = 128

type Arguments struct {
	Position           mgl32.Vec3
	FOVMultiplier      float32
	Basis              mgl32.Mat3
	Jitter             mgl32.Vec2
	FrameID            uint32
	LightCount         uint32
	MinSamples         float32
	MaxSamples         float32
	QualityCoefficient float32
	LightPower         float32
	GridWidth          uint32
	WorldToVoxel       float32
	Width              uint32
	Height             uint32
}

// FrameSetup is everything NewArguments needs besides the camera.
type FrameSetup struct {
	FrameID       int
	Width         int
	Height        int
	UpscaleFactor int
	Offline       bool
	Quality       Quality
	LightCount    int
	LightPower    float32
	Jitter        mgl32.Vec2
}

func NewArguments(c Camera, s FrameSetup) Arguments {
	upscale := s.UpscaleFactor
	if upscale < 1 {
		upscale = 1
	}
	return Arguments{
		Position:           c.Position,
		FOVMultiplier:      c.FOVMultiplier(s.Width),
		Basis:              c.Basis,
		Jitter:             s.Jitter,
		FrameID:            uint32(s.FrameID),
		LightCount:         uint32(s.LightCount),
		MinSamples:         float32(s.Quality.MinSamples),
		MaxSamples:         float32(s.Quality.MaxSamples),
		QualityCoefficient: s.Quality.ScaledCoefficient(s.Width, s.Height, upscale, s.Offline),
		LightPower:         s.LightPower,
		Width:              uint32(s.Width),
		Height:             uint32(s.Height),
	}
}

// WithGrid records the spatial index dimensions the kernel traverses.
func (a Arguments) WithGrid(width uint32, cellWidth float32) Arguments {
	a.GridWidth = width
	a.WorldToVoxel = 1 / cellWidth
	return a
}

func (a *Arguments) PutBytes(buf []byte) {
	putF := func(off int, v float32) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
	}
	putU := func(off int, v uint32) {
		binary.LittleEndian.PutUint32(buf[off:], v)
	}

	putF(0, a.Position.X())
	putF(4, a.Position.Y())
	putF(8, a.Position.Z())
	putF(12, a.FOVMultiplier)

	for col := 0; col < 3; col++ {
		v := a.Basis.Col(col)
		putF(16+col*16, v.X())
		putF(20+col*16, v.Y())
		putF(24+col*16, v.Z())
		putU(28+col*16, 0)
	}

	putF(64, a.Jitter.X())
	putF(68, a.Jitter.Y())
	putU(72, a.FrameID)
	putU(76, a.LightCount)

	putF(80, a.MinSamples)
	putF(84, a.MaxSamples)
	putF(88, a.QualityCoefficient)
	putF(92, a.LightPower)

	putU(96, a.GridWidth)
	putF(100, a.WorldToVoxel)
	putU(104, a.Width)
	putU(108, a.Height)
}

// ArgumentsFromBytes decodes a block written by PutBytes.
func ArgumentsFromBytes(buf []byte) Arguments {
	getF := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
	}
	getU := func(off int) uint32 {
		return binary.LittleEndian.Uint32(buf[off:])
	}
	var a Arguments
	a.Position = mgl32.Vec3{getF(0), getF(4), getF(8)}
	a.FOVMultiplier = getF(12)
	var cols [3]mgl32.Vec3
	for col := 0; col < 3; col++ {
		cols[col] = mgl32.Vec3{getF(16 + col*16), getF(20 + col*16), getF(24 + col*16)}
	}
	a.Basis = mgl32.Mat3FromCols(cols[0], cols[1], cols[2])
	a.Jitter = mgl32.Vec2{getF(64), getF(68)}
	a.FrameID = getU(72)
	a.LightCount = getU(76)
	a.MinSamples = getF(80)
	a.MaxSamples = getF(84)
	a.QualityCoefficient = getF(88)
	a.LightPower = getF(92)
	a.GridWidth = getU(96)
	a.WorldToVoxel = getF(100)
	a.Width = getU(104)
	a.Height = getU(108)
	return a
}

// ArgumentPair packs the current block followed by the previous one. With no
// previous frame the current block is repeated, which yields zero motion.
func ArgumentPair(current Arguments, previous *Arguments) []byte {
	buf := make([]byte, 2*ArgumentsSize)
	current.PutBytes(buf[:ArgumentsSize])
	if previous == nil {
		previous = &current
	}
	previous.PutBytes(buf[ArgumentsSize:])
	return buf
}
