package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"
)

const (
	// AtomSize is the byte stride of an atom on the GPU.
	//
	// struct Atom {
	//    position : vec3<f32>; (12)
	//    packed : u32;         (4) radius^2 as f16 | element << 16 | flags << 24
	// }; -> 16 bytes
	AtomSize = 16

	// StyleSize is the byte stride of a style on the GPU: r, g, b, radius.
	StyleSize = 16

	// MaxStyles bounds the style table; element ids are a single byte.
	MaxStyles = 255
)

const (
	FlagUnavailable uint8 = 0x1
	FlagSubstituted uint8 = 0x2
)

type Atom struct {
	Position      mgl32.Vec3
	RadiusSquared float32
	Element       uint8
	Flags         uint8
}

func NewAtom(x, y, z float32, element uint8) Atom {
	return Atom{Position: mgl32.Vec3{x, y, z}, Element: element}
}

// PutBytes writes the 16-byte GPU form of a into dst.
func (a *Atom) PutBytes(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], math.Float32bits(a.Position.X()))
	binary.LittleEndian.PutUint32(dst[4:8], math.Float32bits(a.Position.Y()))
	binary.LittleEndian.PutUint32(dst[8:12], math.Float32bits(a.Position.Z()))
	binary.LittleEndian.PutUint32(dst[12:16], a.packedWord())
}

func (a *Atom) packedWord() uint32 {
	r2 := uint32(float16.Fromfloat32(a.RadiusSquared).Bits())
	return r2 | uint32(a.Element)<<16 | uint32(a.Flags)<<24
}

// AtomFromWords decodes an atom from its four GPU words.
func AtomFromWords(w []uint32) Atom {
	return Atom{
		Position: mgl32.Vec3{
			math.Float32frombits(w[0]),
			math.Float32frombits(w[1]),
			math.Float32frombits(w[2]),
		},
		RadiusSquared: float16.Frombits(uint16(w[3])).Float32(),
		Element:       uint8(w[3] >> 16),
		Flags:         uint8(w[3] >> 24),
	}
}

// AtomsToBytes packs atoms contiguously.
func AtomsToBytes(atoms []Atom) []byte {
	buf := make([]byte, len(atoms)*AtomSize)
	for i := range atoms {
		atoms[i].PutBytes(buf[i*AtomSize:])
	}
	return buf
}

type AtomStyle struct {
	Color     mgl32.Vec3
	Radius    float32
	Available bool
}

// StylesToBytes packs the style table. Unavailable styles keep their radius:
// substituted atoms never reference them.
func StylesToBytes(styles []AtomStyle) []byte {
	buf := make([]byte, len(styles)*StyleSize)
	for i, s := range styles {
		o := i * StyleSize
		binary.LittleEndian.PutUint32(buf[o:], math.Float32bits(s.Color.X()))
		binary.LittleEndian.PutUint32(buf[o+4:], math.Float32bits(s.Color.Y()))
		binary.LittleEndian.PutUint32(buf[o+8:], math.Float32bits(s.Color.Z()))
		binary.LittleEndian.PutUint32(buf[o+12:], math.Float32bits(s.Radius))
	}
	return buf
}

// ApplyStyles fills the derived fields of every atom in place. Atoms whose
// element has no available style are drawn with style 0 and flagged.
func ApplyStyles(atoms []Atom, styles []AtomStyle) {
	if len(styles) == 0 {
		return
	}
	fallback := styles[0].Radius * styles[0].Radius
	for i := range atoms {
		a := &atoms[i]
		if int(a.Element) < len(styles) && styles[a.Element].Available {
			r := styles[a.Element].Radius
			a.RadiusSquared = r * r
			a.Flags = 0
			continue
		}
		a.Element = 0
		a.RadiusSquared = fallback
		a.Flags = FlagUnavailable | FlagSubstituted
	}
}

// AtomsEqual is element-wise equality; a nil and an empty slice are equal.
func AtomsEqual(a, b []Atom) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func StylesEqual(a, b []AtomStyle) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
