package grid

import (
	"math"
	"runtime"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"
)

// ChunkSize is the number of atoms one sizing task covers.
const ChunkSize = 65536

// SizingResult is the CPU pre-pass over a frame's atoms.
type SizingResult struct {
	// Min and Max bound every atom sphere, widened by SpanMargin.
	Min, Max  mgl32.Vec3
	MaxRadius float32
	// Counts holds the number of atoms per style.
	Counts         []int
	Width          uint32
	ReferenceBound uint64
}

type partial struct {
	min, max mgl32.Vec3
	counts   [core.MaxStyles + 1]int
}

func (p *partial) accumulate(atoms []core.Atom) {
	inf := float32(math.Inf(1))
	p.min = mgl32.Vec3{inf, inf, inf}
	p.max = mgl32.Vec3{-inf, -inf, -inf}

	n := len(atoms) &^ 3
	for i := 0; i < n; i += 4 {
		a0, a1, a2, a3 := &atoms[i], &atoms[i+1], &atoms[i+2], &atoms[i+3]
		for axis := 0; axis < 3; axis++ {
			lo := min(a0.Position[axis], a1.Position[axis], a2.Position[axis], a3.Position[axis])
			hi := max(a0.Position[axis], a1.Position[axis], a2.Position[axis], a3.Position[axis])
			p.min[axis] = min(p.min[axis], lo)
			p.max[axis] = max(p.max[axis], hi)
		}
		p.counts[a0.Element]++
		p.counts[a1.Element]++
		p.counts[a2.Element]++
		p.counts[a3.Element]++
	}
	for i := n; i < len(atoms); i++ {
		a := &atoms[i]
		for axis := 0; axis < 3; axis++ {
			p.min[axis] = min(p.min[axis], a.Position[axis])
			p.max[axis] = max(p.max[axis], a.Position[axis])
		}
		p.counts[a.Element]++
	}
}

func (p *partial) merge(o *partial) {
	for axis := 0; axis < 3; axis++ {
		p.min[axis] = min(p.min[axis], o.min[axis])
		p.max[axis] = max(p.max[axis], o.max[axis])
	}
	for i := range p.counts {
		p.counts[i] += o.counts[i]
	}
}

// Sizing computes the bounding box, per-style counts, grid width and the
// reference upper bound for a frame. Chunks are reduced concurrently.
func Sizing(atoms []core.Atom, styles []core.AtomStyle, cellWidth float32) (SizingResult, error) {
	if len(atoms) == 0 {
		return SizingResult{}, molrt.ConfigurationError("sizing", "no atoms")
	}
	if len(styles) == 0 || len(styles) > core.MaxStyles {
		return SizingResult{}, molrt.ConfigurationError("sizing", "style count %d outside 1..%d", len(styles), core.MaxStyles)
	}
	if !(cellWidth > 0) {
		return SizingResult{}, molrt.ConfigurationError("sizing", "cell width %v must be positive", cellWidth)
	}

	chunks := (len(atoms) + ChunkSize - 1) / ChunkSize
	partials := make([]partial, chunks)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for c := 0; c < chunks; c++ {
		lo := c * ChunkSize
		hi := min(lo+ChunkSize, len(atoms))
		g.Go(func() error {
			partials[c].accumulate(atoms[lo:hi])
			return nil
		})
	}
	g.Wait()

	total := &partials[0]
	for i := 1; i < chunks; i++ {
		total.merge(&partials[i])
	}

	res := SizingResult{Counts: make([]int, len(styles))}
	for e, n := range total.counts {
		if n == 0 {
			continue
		}
		if e >= len(styles) {
			return SizingResult{}, molrt.ConfigurationError("sizing", "%d atoms use element %d without a style", n, e)
		}
		res.Counts[e] = n
		res.MaxRadius = max(res.MaxRadius, styles[e].Radius)
	}

	pad := res.MaxRadius + SpanMargin
	res.Min = total.min.Sub(mgl32.Vec3{pad, pad, pad})
	res.Max = total.max.Add(mgl32.Vec3{pad, pad, pad})
	res.Width = WidthFor(res.Min, res.Max, cellWidth)
	if res.Width > MaxWidth {
		return res, molrt.ConfigurationError("sizing", "grid width %d exceeds %d cells at cell width %v", res.Width, MaxWidth, cellWidth)
	}

	if err := res.boundAt(styles, cellWidth, res.Width); err != nil {
		return res, err
	}
	return res, nil
}

// boundAt recomputes the reference bound for a grid of the given width. A
// wider grid than the frame needs can split an atom across more cells.
func (r *SizingResult) boundAt(styles []core.AtomStyle, cellWidth float32, width uint32) error {
	r.ReferenceBound = referenceBound(r.Counts, styles, cellWidth, width)
	if r.ReferenceBound >= MaxReferences {
		return molrt.ResourceExhaustion("sizing", "reference bound %d reaches the %d entry limit at width %d", r.ReferenceBound, MaxReferences, width)
	}
	return nil
}

// referenceBound sums count * cellsPerAxis^3 over styles, where cellsPerAxis
// is the most cells a widened sphere of that style can touch along one axis.
func referenceBound(counts []int, styles []core.AtomStyle, cellWidth float32, width uint32) uint64 {
	var bound uint64
	for s, n := range counts {
		if n == 0 {
			continue
		}
		diameter := 2 * (float64(styles[s].Radius) + SpanMargin)
		perAxis := 1 + uint64(math.Ceil(diameter/float64(cellWidth)))
		perAxis = min(perAxis, uint64(width))
		bound += uint64(n) * perAxis * perAxis * perAxis
	}
	return bound
}
