package source

import (
	"math"

	"github.com/gekko3d/molrt/moleculert/rt/core"

	"github.com/go-gl/mathgl/mgl32"
)

// BoundingSphere returns the centre of the atoms' bounding box and the radius
// of the sphere around it that contains every atom centre.
func BoundingSphere(atoms []core.Atom) (mgl32.Vec3, float32) {
	if len(atoms) == 0 {
		return mgl32.Vec3{}, 0
	}
	lo, hi := atoms[0].Position, atoms[0].Position
	for _, a := range atoms[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = min(lo[k], a.Position[k])
			hi[k] = max(hi[k], a.Position[k])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	var radius float32
	for _, a := range atoms {
		radius = max(radius, a.Position.Sub(center).Len())
	}
	return center, radius
}

// FramingCamera looks at the atoms along +Y from far enough away to fit their
// bounding sphere in the vertical field of view.
func FramingCamera(atoms []core.Atom, fovDegrees float32) core.Camera {
	center, radius := BoundingSphere(atoms)
	half := mgl32.DegToRad(fovDegrees) / 2
	distance := (radius + 0.5) / float32(math.Sin(float64(half)))
	eye := center.Sub(mgl32.Vec3{0, distance, 0})
	return core.LookAt(eye, center, mgl32.Vec3{0, 0, 1}, fovDegrees)
}
