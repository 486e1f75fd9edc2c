package core

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/molrt"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxLights is the exclusive bound imposed by the 16-bit light count field.
const MaxLights = math.MaxUint16

// LightSize is the GPU stride of a light.
//
// struct Light {
//    origin : vec3<f32>;     (12)
//    diffuse_power : f32;    (4)
//    specular_power : f32;   (4)
//    flags : u32;            (4)
//    padding : vec2<u32>;    (8)
// }; -> 32 bytes
const LightSize = 32

// LightCameraCentered marks a light sitting on the camera.
const LightCameraCentered uint32 = 0x1

type Light struct {
	Origin        mgl32.Vec3
	DiffusePower  float32
	SpecularPower float32
}

// GPULight is a light after power normalization.
type GPULight struct {
	Origin        mgl32.Vec3
	DiffusePower  float32
	SpecularPower float32
	Flags         uint32
}

// NormalizeLights divides each light's powers by the totals over all lights
// and flags lights within 1e-3 of the camera.
func NormalizeLights(lights []Light, cameraPosition mgl32.Vec3) ([]GPULight, error) {
	if len(lights) >= MaxLights {
		return nil, molrt.ConfigurationError("normalize lights", "%d lights exceed the 16-bit light count", len(lights))
	}
	var totalDiffuse, totalSpecular float32
	for _, l := range lights {
		totalDiffuse += l.DiffusePower
		totalSpecular += l.SpecularPower
	}
	out := make([]GPULight, len(lights))
	for i, l := range lights {
		g := GPULight{Origin: l.Origin}
		if totalDiffuse > 0 {
			g.DiffusePower = l.DiffusePower / totalDiffuse
		}
		if totalSpecular > 0 {
			g.SpecularPower = l.SpecularPower / totalSpecular
		}
		if l.Origin.Sub(cameraPosition).Len() < 1e-3 {
			g.Flags |= LightCameraCentered
		}
		out[i] = g
	}
	return out, nil
}

// LightsToBytes packs lights; an empty list still yields one zeroed record so
// the binding is never empty.
func LightsToBytes(lights []GPULight) []byte {
	n := len(lights)
	if n == 0 {
		n = 1
	}
	buf := make([]byte, n*LightSize)
	for i, l := range lights {
		o := i * LightSize
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(l.Origin.X()))
		binary.LittleEndian.PutUint32(buf[o+4:], math.Float32bits(l.Origin.Y()))
		binary.LittleEndian.PutUint32(buf[o+8:], math.Float32bits(l.Origin.Z()))
		binary.LittleEndian.PutUint32(buf[o+12:], math.Float32bits(l.DiffusePower))
		binary.LittleEndian.PutUint32(buf[o+16:], math.Float32bits(l.SpecularPower))
		binary.LittleEndian.PutUint32(buf[o+20:], l.Flags)
	}
	return buf
}

// CameraLight is the default headlight.
func CameraLight(c Camera) Light {
	return Light{Origin: c.Position, DiffusePower: 1, SpecularPower: 1}
}
