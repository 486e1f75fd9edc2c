package source

import (
	"github.com/gekko3d/molrt/moleculert/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// DiamondLatticeConstant is the cubic cell edge of diamond in nanometers.
const DiamondLatticeConstant = 0.357

// Fractional positions of the eight atoms in a diamond cubic cell.
var diamondBasis = [8]mgl32.Vec3{
	{0, 0, 0},
	{0, 0.5, 0.5},
	{0.5, 0, 0.5},
	{0.5, 0.5, 0},
	{0.25, 0.25, 0.25},
	{0.25, 0.75, 0.75},
	{0.75, 0.25, 0.75},
	{0.75, 0.75, 0.25},
}

// DiamondLattice builds cells^3 diamond cubic cells of element, centred on
// the origin.
func DiamondLattice(cells int, element uint8) []core.Atom {
	if cells <= 0 {
		return nil
	}
	a := float32(DiamondLatticeConstant)
	half := float32(cells) * a / 2
	center := mgl32.Vec3{half, half, half}

	atoms := make([]core.Atom, 0, 8*cells*cells*cells)
	for z := 0; z < cells; z++ {
		for y := 0; y < cells; y++ {
			for x := 0; x < cells; x++ {
				origin := mgl32.Vec3{float32(x), float32(y), float32(z)}
				for _, b := range diamondBasis {
					p := origin.Add(b).Mul(a).Sub(center)
					atoms = append(atoms, core.NewAtom(p.X(), p.Y(), p.Z(), element))
				}
			}
		}
	}
	return atoms
}

// LatticeSource serves a fixed set of atoms, optionally spinning about Axis
// through the origin at AngularVelocity radians per second.
type LatticeSource struct {
	Base            []core.Atom
	Axis            mgl32.Vec3
	AngularVelocity float32

	scratch []core.Atom
}

func NewLatticeSource(cells int, angularVelocity float32) *LatticeSource {
	return &LatticeSource{
		Base:            DiamondLattice(cells, Carbon),
		Axis:            mgl32.Vec3{0, 0, 1},
		AngularVelocity: angularVelocity,
	}
}

// Atoms returns the lattice at time t. The returned slice is reused by the
// next call.
func (s *LatticeSource) Atoms(t float64) []core.Atom {
	if s.AngularVelocity == 0 || t == 0 {
		return s.Base
	}
	rot := mgl32.QuatRotate(s.AngularVelocity*float32(t), s.Axis.Normalize())
	s.scratch = append(s.scratch[:0], s.Base...)
	for i := range s.scratch {
		s.scratch[i].Position = rot.Rotate(s.scratch[i].Position)
	}
	return s.scratch
}
