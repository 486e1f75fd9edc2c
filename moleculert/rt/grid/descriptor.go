package grid

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// BlockSize is the workgroup size of every grid kernel and the cell slot
	// granularity.
	BlockSize = 128

	// SpanMargin widens every atom's radius when computing the cells it
	// touches.
	SpanMargin = 1e-4

	// MaxWidth bounds the cells per axis.
	MaxWidth = 1024

	// MaxReferences bounds the reference array (16Mi entries).
	MaxReferences = 16 << 20

	// CellSize is the byte size of a cell record (offset, count).
	CellSize = 8

	// ParamsSize is the byte size of the grid parameter block.
	//
	// struct GridParams {
	//    width : u32;
	//    cell_count : u32;
	//    world_to_voxel : f32;
	//    atom_count : u32;
	// }; -> 16 bytes
	ParamsSize = 16

	// CounterSize holds the finalize cursor and the claimed reference count.
	CounterSize = 8
)

// Descriptor is an origin-centred cubic grid of Width^3 cells.
type Descriptor struct {
	CellWidth float32
	Width     uint32
}

func (d Descriptor) WorldToVoxel() float32 { return 1 / d.CellWidth }

func (d Descriptor) Cells() int {
	w := int(d.Width)
	return w * w * w
}

// Slots is the cell count padded to whole blocks.
func (d Descriptor) Slots() int {
	return (d.Cells() + BlockSize - 1) / BlockSize * BlockSize
}

func (d Descriptor) Blocks() uint32 { return uint32(d.Slots() / BlockSize) }

func (d Descriptor) CellIndex(x, y, z uint32) uint32 {
	return x + d.Width*(y+d.Width*z)
}

// Coord maps one world coordinate to its clamped cell coordinate.
func (d Descriptor) Coord(v float32) uint32 {
	return coord(v, d.WorldToVoxel(), d.Width)
}

// Span is the inclusive cell range touched by a sphere widened by SpanMargin.
func (d Descriptor) Span(center mgl32.Vec3, radius float32) (lo, hi [3]uint32) {
	return span(center, radius, d.WorldToVoxel(), d.Width)
}

func coord(v, worldToVoxel float32, width uint32) uint32 {
	c := math.Floor(float64(v*worldToVoxel + float32(width)/2))
	if c < 0 {
		return 0
	}
	if c >= float64(width) {
		return width - 1
	}
	return uint32(c)
}

func span(center mgl32.Vec3, radius, worldToVoxel float32, width uint32) (lo, hi [3]uint32) {
	r := radius + SpanMargin
	for axis := 0; axis < 3; axis++ {
		lo[axis] = coord(center[axis]-r, worldToVoxel, width)
		hi[axis] = coord(center[axis]+r, worldToVoxel, width)
	}
	return lo, hi
}

// ParamsBytes is the uniform block read by every grid kernel.
func (d Descriptor) ParamsBytes(atomCount int) []byte {
	buf := make([]byte, ParamsSize)
	binary.LittleEndian.PutUint32(buf[0:], d.Width)
	binary.LittleEndian.PutUint32(buf[4:], uint32(d.Cells()))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(d.WorldToVoxel()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(atomCount))
	return buf
}

// Params is the decoded grid parameter block.
type Params struct {
	Width        uint32
	CellCount    uint32
	WorldToVoxel float32
	AtomCount    uint32
}

func ParamsFromWords(w []uint32) Params {
	return Params{
		Width:        w[0],
		CellCount:    w[1],
		WorldToVoxel: math.Float32frombits(w[2]),
		AtomCount:    w[3],
	}
}

// Coord is Descriptor.Coord for kernels holding only the parameter block.
func (p Params) Coord(v float32) uint32 { return coord(v, p.WorldToVoxel, p.Width) }

func (p Params) CellIndex(x, y, z uint32) uint32 { return x + p.Width*(y+p.Width*z) }

// WidthFor is the cells per axis needed to cover [min, max] with an
// origin-centred grid.
func WidthFor(min, max mgl32.Vec3, cellWidth float32) uint32 {
	var extent float32
	for axis := 0; axis < 3; axis++ {
		extent = maxf(extent, mgl32.Abs(min[axis]))
		extent = maxf(extent, mgl32.Abs(max[axis]))
	}
	w := math.Ceil(2 * float64(extent) / float64(cellWidth))
	if w < 1 {
		return 1
	}
	if w > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(w)
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

// Cell is one decoded cell record.
type Cell struct {
	Offset uint32
	Count  uint32
}
