package grid

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gekko3d/molrt/moleculert/rt/gpu"

	"github.com/go-gl/mathgl/mgl32"
)

// Kernel names, shared with the WGSL sources.
const (
	KernelReset    = "dense_grid_reset"
	KernelCount    = "dense_grid_count"
	KernelFinalize = "dense_grid_finalize"
	KernelScatter  = "dense_grid_scatter"
)

// CPUKernels returns software versions of the grid kernels with the same
// bindings as the WGSL ones:
//
//	reset:    params, cells, counters
//	count:    params, atoms, styles, cells, counters
//	finalize: params, cells, counters
//	scatter:  params, atoms, styles, cells, references
func CPUKernels() []gpu.CPUKernel {
	return []gpu.CPUKernel{
		{KernelName: KernelReset, Size: BlockSize, Fn: resetCPU},
		{KernelName: KernelCount, Size: BlockSize, Fn: countCPU},
		{KernelName: KernelFinalize, Size: BlockSize, Fn: finalizeCPU},
		{KernelName: KernelScatter, Size: BlockSize, Fn: scatterCPU},
	}
}

func resetCPU(group [3]uint32, b []gpu.Resource) {
	cells, counters := gpu.Words(b[1]), gpu.Words(b[2])
	first := group[0] * BlockSize
	for i := first; i < first+BlockSize && int(2*i+1) < len(cells); i++ {
		cells[2*i] = 0
		cells[2*i+1] = 0
	}
	if group[0] == 0 {
		counters[0] = 0
		counters[1] = 0
	}
}

// atomSpan decodes atom i and returns its cell span.
func atomSpan(p Params, atoms, styles []uint32, i uint32) (lo, hi [3]uint32) {
	w := atoms[4*i : 4*i+4]
	center := mgl32.Vec3{
		math.Float32frombits(w[0]),
		math.Float32frombits(w[1]),
		math.Float32frombits(w[2]),
	}
	element := (w[3] >> 16) & 0xff
	radius := math.Float32frombits(styles[4*element+3])
	return span(center, radius, p.WorldToVoxel, p.Width)
}

func eachCell(p Params, lo, hi [3]uint32, fn func(cell uint32)) {
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				fn(p.CellIndex(x, y, z))
			}
		}
	}
}

func countCPU(group [3]uint32, b []gpu.Resource) {
	p := ParamsFromWords(gpu.Words(b[0]))
	atoms, styles := gpu.Words(b[1]), gpu.Words(b[2])
	cells, counters := gpu.Words(b[3]), gpu.Words(b[4])

	first := group[0] * BlockSize
	for i := first; i < first+BlockSize && i < p.AtomCount; i++ {
		lo, hi := atomSpan(p, atoms, styles, i)
		var claimed uint32
		eachCell(p, lo, hi, func(cell uint32) {
			atomic.AddUint32(&cells[2*cell+1], 1)
			claimed++
		})
		atomic.AddUint32(&counters[1], claimed)
	}
}

// finalizeCPU turns one block of counts into end offsets: an exclusive prefix
// over the block plus a single claim on the global cursor.
func finalizeCPU(group [3]uint32, b []gpu.Resource) {
	p := ParamsFromWords(gpu.Words(b[0]))
	cells, counters := gpu.Words(b[1]), gpu.Words(b[2])

	first := group[0] * BlockSize
	last := min(first+BlockSize, p.CellCount)
	if first >= last {
		return
	}
	var prefix [BlockSize]uint32
	var sum uint32
	for i := first; i < last; i++ {
		prefix[i-first] = sum
		sum += cells[2*i+1]
	}
	base := atomic.AddUint32(&counters[0], sum) - sum
	for i := first; i < last; i++ {
		cells[2*i] = base + prefix[i-first] + cells[2*i+1]
	}
}

func scatterCPU(group [3]uint32, b []gpu.Resource) {
	p := ParamsFromWords(gpu.Words(b[0]))
	atoms, styles := gpu.Words(b[1]), gpu.Words(b[2])
	cells, refs := gpu.Words(b[3]), gpu.Words(b[4])

	first := group[0] * BlockSize
	for i := first; i < first+BlockSize && i < p.AtomCount; i++ {
		lo, hi := atomSpan(p, atoms, styles, i)
		eachCell(p, lo, hi, func(cell uint32) {
			slot := atomic.AddUint32(&cells[2*cell], ^uint32(0))
			if int(slot) >= len(refs) {
				panic(fmt.Sprintf("grid: reference slot %d outside %d entries", slot, len(refs)))
			}
			refs[slot] = i
		})
	}
}
