package render

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
	"github.com/gekko3d/molrt/moleculert/rt/grid"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	KernelRaytrace = "raytrace"
	KernelUpscale  = "upscale"

	// TileSize is the edge of the square pixel tile one workgroup covers.
	TileSize = 8

	ambient      = 0.1
	occlusionLen = 0.5
	background   = 0.05
)

// Ray-trace bindings, in order.
const (
	bindArguments = iota
	bindStyles
	bindAtoms
	bindPreviousAtoms
	bindCells
	bindReferences
	bindGridParams
	bindLights
	bindColor
	bindDepth
	bindMotion
)

// CPUKernels returns the software ray-trace and upscale kernels.
func CPUKernels() []gpu.CPUKernel {
	return []gpu.CPUKernel{
		{KernelName: KernelRaytrace, Size: TileSize, Fn: raytraceCPU},
		{KernelName: KernelUpscale, Size: TileSize, Fn: upscaleCPU},
	}
}

// AllCPUKernels is every kernel the renderer dispatches.
func AllCPUKernels() []gpu.CPUKernel {
	return append(grid.CPUKernels(), CPUKernels()...)
}

func argumentsFromWords(w []uint32, block int) core.Arguments {
	buf := make([]byte, core.ArgumentsSize)
	for i := 0; i < core.ArgumentsSize/4; i++ {
		binary.LittleEndian.PutUint32(buf[i*4:], w[block*core.ArgumentsSize/4+i])
	}
	return core.ArgumentsFromBytes(buf)
}

type scene struct {
	args, prev core.Arguments
	grid       grid.Params
	styles     []uint32
	atoms      []uint32
	prevAtoms  []uint32
	cells      []uint32
	refs       []uint32
	lights     []core.GPULight
}

type hit struct {
	t      float32
	atom   uint32
	center mgl32.Vec3
	radius float32
}

func f32(w uint32) float32 { return math.Float32frombits(w) }

func (s *scene) atomCenter(atoms []uint32, i uint32) mgl32.Vec3 {
	return mgl32.Vec3{f32(atoms[4*i]), f32(atoms[4*i+1]), f32(atoms[4*i+2])}
}

func (s *scene) atomStyle(i uint32) (color mgl32.Vec3, radius float32) {
	e := (s.atoms[4*i+3] >> 16) & 0xff
	st := s.styles[4*e : 4*e+4]
	return mgl32.Vec3{f32(st[0]), f32(st[1]), f32(st[2])}, f32(st[3])
}

func decodeLights(w []uint32, n uint32) []core.GPULight {
	out := make([]core.GPULight, 0, n)
	for i := uint32(0); i < n && int(8*i+8) <= len(w); i++ {
		l := w[8*i : 8*i+8]
		out = append(out, core.GPULight{
			Origin:        mgl32.Vec3{f32(l[0]), f32(l[1]), f32(l[2])},
			DiffusePower:  f32(l[3]),
			SpecularPower: f32(l[4]),
			Flags:         l[5],
		})
	}
	return out
}

// primaryRay returns the normalized direction through pixel (x, y).
func primaryRay(a *core.Arguments, x, y int) mgl32.Vec3 {
	u := (float32(x) + 0.5 + a.Jitter.X() - float32(a.Width)/2) * a.FOVMultiplier
	v := (float32(a.Height)/2 - (float32(y) + 0.5 + a.Jitter.Y())) * a.FOVMultiplier
	d := a.Basis.Col(0).Mul(u).Add(a.Basis.Col(1).Mul(v)).Sub(a.Basis.Col(2))
	return d.Normalize()
}

// project maps a camera-relative vector into pixel coordinates of a. ok is
// false behind the camera.
func project(a *core.Arguments, rel mgl32.Vec3) (px, py float32, ok bool) {
	cz := -rel.Dot(a.Basis.Col(2))
	if cz <= 1e-6 {
		return 0, 0, false
	}
	u := rel.Dot(a.Basis.Col(0)) / cz
	v := rel.Dot(a.Basis.Col(1)) / cz
	px = u/a.FOVMultiplier + float32(a.Width)/2 - 0.5 - a.Jitter.X()
	py = float32(a.Height)/2 - v/a.FOVMultiplier - 0.5 - a.Jitter.Y()
	return px, py, true
}

func intersectSphere(origin, dir, center mgl32.Vec3, radius float32) (float32, bool) {
	oc := origin.Sub(center)
	b := oc.Dot(dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := float32(math.Sqrt(float64(disc)))
	t := -b - sq
	if t <= 0 {
		t = -b + sq
	}
	return t, t > 0
}

// trace walks the grid cells along the ray with a 3D DDA and returns the
// nearest sphere hit closer than tMax.
func (s *scene) trace(origin, dir mgl32.Vec3, tMax float32) (hit, bool) {
	inv := s.grid.WorldToVoxel
	width := float32(s.grid.Width)
	vo := origin.Mul(inv).Add(mgl32.Vec3{width / 2, width / 2, width / 2})

	// Slab test against [0, width]^3 in voxel space; t stays in world units.
	tEnter, tExit := float32(0), tMax*inv
	for axis := 0; axis < 3; axis++ {
		if dir[axis] == 0 {
			if vo[axis] < 0 || vo[axis] > width {
				return hit{}, false
			}
			continue
		}
		t0 := (0 - vo[axis]) / dir[axis]
		t1 := (width - vo[axis]) / dir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tEnter = max(tEnter, t0)
		tExit = min(tExit, t1)
	}
	if tEnter > tExit {
		return hit{}, false
	}

	var cell, step [3]int
	var tNext, tDelta [3]float32
	p := vo.Add(dir.Mul(tEnter))
	for axis := 0; axis < 3; axis++ {
		cell[axis] = min(max(int(math.Floor(float64(p[axis]))), 0), int(s.grid.Width)-1)
		switch {
		case dir[axis] > 0:
			step[axis] = 1
			tNext[axis] = (float32(cell[axis]+1) - vo[axis]) / dir[axis]
			tDelta[axis] = 1 / dir[axis]
		case dir[axis] < 0:
			step[axis] = -1
			tNext[axis] = (float32(cell[axis]) - vo[axis]) / dir[axis]
			tDelta[axis] = -1 / dir[axis]
		default:
			tNext[axis] = float32(math.Inf(1))
			tDelta[axis] = float32(math.Inf(1))
		}
	}

	best := hit{t: tMax}
	found := false
	for iter := 0; iter < 3*int(s.grid.Width)+3; iter++ {
		idx := s.grid.CellIndex(uint32(cell[0]), uint32(cell[1]), uint32(cell[2]))
		start, count := s.cells[2*idx], s.cells[2*idx+1]
		for k := start; k < start+count && int(k) < len(s.refs); k++ {
			a := s.refs[k]
			center := s.atomCenter(s.atoms, a)
			_, radius := s.atomStyle(a)
			if t, ok := intersectSphere(origin, dir, center, radius); ok && t < best.t {
				best = hit{t: t, atom: a, center: center, radius: radius}
				found = true
			}
		}

		axis := 0
		if tNext[1] < tNext[axis] {
			axis = 1
		}
		if tNext[2] < tNext[axis] {
			axis = 2
		}
		// Spheres overlap several cells; a hit is final once it lies before
		// the exit of the current cell.
		if found && best.t*inv <= tNext[axis] {
			break
		}
		if tNext[axis] > tExit {
			break
		}
		cell[axis] += step[axis]
		if cell[axis] < 0 || cell[axis] >= int(s.grid.Width) {
			break
		}
		tNext[axis] += tDelta[axis]
	}
	return best, found
}

// hash is a PCG step, used for deterministic occlusion sample directions.
func hash(v uint32) uint32 {
	state := v*747796405 + 2891336453
	word := ((state >> ((state >> 28) + 4)) ^ state) * 277803737
	return (word >> 22) ^ word
}

func unitFloat(v uint32) float32 { return float32(v>>8) / float32(1<<24) }

// hemisphere returns a cosine-weighted direction around n.
func hemisphere(n mgl32.Vec3, seed uint32) mgl32.Vec3 {
	h1 := hash(seed)
	h2 := hash(h1)
	r1, r2 := unitFloat(h1), unitFloat(h2)
	phi := 2 * math.Pi * float64(r1)
	sr := float32(math.Sqrt(float64(r2)))
	x := sr * float32(math.Cos(phi))
	y := sr * float32(math.Sin(phi))
	z := float32(math.Sqrt(float64(1 - r2)))

	up := mgl32.Vec3{0, 0, 1}
	if mgl32.Abs(n.Z()) > 0.9 {
		up = mgl32.Vec3{1, 0, 0}
	}
	t := up.Cross(n).Normalize()
	b := n.Cross(t)
	return t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z))
}

// samples is the occlusion sample count for a hit at distance t.
func (s *scene) samples(t float32) int {
	if s.args.MaxSamples <= 0 {
		return 0
	}
	n := s.args.QualityCoefficient / max(t, 1e-3)
	n = min(max(n, s.args.MinSamples), s.args.MaxSamples)
	return int(n)
}

func (s *scene) shade(h hit, origin, dir mgl32.Vec3, seed uint32) mgl32.Vec3 {
	color, _ := s.atomStyle(h.atom)
	p := origin.Add(dir.Mul(h.t))
	n := p.Sub(h.center).Mul(1 / h.radius)

	lights := s.lights
	if len(lights) == 0 {
		lights = []core.GPULight{{Origin: s.args.Position, DiffusePower: 1, SpecularPower: 1, Flags: core.LightCameraCentered}}
	}
	var diffuse, specular float32
	for _, l := range lights {
		var toLight mgl32.Vec3
		if l.Flags&core.LightCameraCentered != 0 {
			toLight = dir.Mul(-1)
		} else {
			toLight = l.Origin.Sub(p).Normalize()
		}
		ndl := n.Dot(toLight)
		if ndl <= 0 {
			continue
		}
		diffuse += l.DiffusePower * ndl
		refl := n.Mul(2 * ndl).Sub(toLight)
		if rv := refl.Dot(dir.Mul(-1)); rv > 0 {
			specular += l.SpecularPower * float32(math.Pow(float64(rv), 32))
		}
	}

	occlusion := float32(1)
	if count := s.samples(h.t); count > 0 {
		open := 0
		surface := p.Add(n.Mul(1e-3))
		for i := 0; i < count; i++ {
			d := hemisphere(n, seed+uint32(i)*0x9e3779b9)
			if _, blocked := s.trace(surface, d, occlusionLen); !blocked {
				open++
			}
		}
		occlusion = float32(open) / float32(count)
	}

	power := s.args.LightPower
	if power <= 0 {
		power = 1
	}
	light := ambient*occlusion + power*(diffuse*occlusion+0.25*specular)
	return color.Mul(light)
}

func packColor(c mgl32.Vec3) uint32 {
	var out uint32
	for i := 0; i < 3; i++ {
		v := min(max(c[i], 0), 1)
		out |= uint32(v*255+0.5) << (8 * i)
	}
	return out | 0xff<<24
}

func unpackColor(w uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(w&0xff) / 255,
		float32(w>>8&0xff) / 255,
		float32(w>>16&0xff) / 255,
	}
}

func (s *scene) motion(x, y int, origin, dir mgl32.Vec3, h hit, found bool) (float32, float32) {
	rel := dir
	if found {
		p := origin.Add(dir.Mul(h.t))
		prevCenter := s.atomCenter(s.prevAtoms, h.atom)
		rel = p.Add(prevCenter.Sub(h.center)).Sub(s.prev.Position)
	}
	px, py, ok := project(&s.prev, rel)
	if !ok {
		return 0, 0
	}
	return float32(x) - px, float32(y) - py
}

func raytraceCPU(group [3]uint32, b []gpu.Resource) {
	argWords := gpu.Words(b[bindArguments])
	s := &scene{
		args:      argumentsFromWords(argWords, 0),
		prev:      argumentsFromWords(argWords, 1),
		grid:      grid.ParamsFromWords(gpu.Words(b[bindGridParams])),
		styles:    gpu.Words(b[bindStyles]),
		atoms:     gpu.Words(b[bindAtoms]),
		prevAtoms: gpu.Words(b[bindPreviousAtoms]),
		cells:     gpu.Words(b[bindCells]),
		refs:      gpu.Words(b[bindReferences]),
	}
	s.lights = decodeLights(gpu.Words(b[bindLights]), s.args.LightCount)
	color, depth, motion := gpu.Words(b[bindColor]), gpu.Words(b[bindDepth]), gpu.Words(b[bindMotion])
	w, h := int(s.args.Width), int(s.args.Height)

	for ty := 0; ty < TileSize; ty++ {
		y := int(group[1])*TileSize + ty
		if y >= h {
			break
		}
		for tx := 0; tx < TileSize; tx++ {
			x := int(group[0])*TileSize + tx
			if x >= w {
				break
			}
			i := y*w + x
			origin := s.args.Position
			dir := primaryRay(&s.args, x, y)
			hitInfo, found := s.trace(origin, dir, float32(math.Inf(1)))
			if found {
				seed := hash(uint32(i)) ^ hash(s.args.FrameID+0x68e31da4)
				color[i] = packColor(s.shade(hitInfo, origin, dir, seed))
				depth[i] = math.Float32bits(hitInfo.t)
			} else {
				color[i] = packColor(mgl32.Vec3{background, background, background})
				depth[i] = 0
			}
			mx, my := s.motion(x, y, origin, dir, hitInfo, found)
			motion[2*i] = math.Float32bits(mx)
			motion[2*i+1] = math.Float32bits(my)
		}
	}
}
