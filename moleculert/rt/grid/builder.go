package grid

import (
	"encoding/binary"
	"time"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
)

// Index is a built spatial index plus the atom data it was built from.
type Index struct {
	Grid      Descriptor
	AtomCount int
	Sizing    SizingResult

	Atoms      gpu.Buffer
	Styles     gpu.Buffer
	Params     gpu.Buffer
	Cells      gpu.Buffer
	References gpu.Buffer
	Counters   gpu.Buffer

	// UsedReferences is known only once the index has been compacted.
	UsedReferences uint32
	Compacted      bool

	SizingTime time.Duration

	owned []gpu.Buffer
}

// Release frees the buffers created by compaction. Ring buffers belong to the
// pool.
func (ix *Index) Release() {
	for _, b := range ix.owned {
		b.Release()
	}
	ix.owned = nil
}

type Builder struct {
	device    gpu.Device
	pool      *gpu.FrameResourcePool
	cellWidth float32
	logger    molrt.Logger

	// width is a high-water mark so the cell buffers stop reallocating once a
	// scene has settled.
	width uint32

	reset, count, finalize, scatter gpu.Kernel
}

func NewBuilder(device gpu.Device, pool *gpu.FrameResourcePool, cellWidth float32, logger molrt.Logger) (*Builder, error) {
	if !(cellWidth > 0) {
		return nil, molrt.ConfigurationError("new builder", "cell width %v must be positive", cellWidth)
	}
	b := &Builder{
		device:    device,
		pool:      pool,
		cellWidth: cellWidth,
		logger:    molrt.OrNop(logger),
	}
	for _, k := range []struct {
		dst  *gpu.Kernel
		name string
	}{
		{&b.reset, KernelReset},
		{&b.count, KernelCount},
		{&b.finalize, KernelFinalize},
		{&b.scatter, KernelScatter},
	} {
		kernel, err := device.Kernel(k.name)
		if err != nil {
			return nil, err
		}
		*k.dst = kernel
	}
	return b, nil
}

func (b *Builder) CellWidth() float32 { return b.cellWidth }

// Width is the current high-water grid width.
func (b *Builder) Width() uint32 { return b.width }

// Build uploads atoms and styles and records the reset, count, finalize and
// scatter passes into list. The index is usable by any command recorded
// after it in the same list.
func (b *Builder) Build(list gpu.CommandList, atoms []core.Atom, styles []core.AtomStyle) (*Index, error) {
	start := time.Now()
	sizing, err := Sizing(atoms, styles, b.cellWidth)
	if err != nil {
		return nil, err
	}
	sizingTime := time.Since(start)

	if sizing.Width > b.width {
		if b.width > 0 {
			b.logger.Debugf("grid: width %d -> %d", b.width, sizing.Width)
		}
		b.width = sizing.Width
	}
	desc := Descriptor{CellWidth: b.cellWidth, Width: b.width}
	if desc.Width != sizing.Width {
		if err := sizing.boundAt(styles, b.cellWidth, desc.Width); err != nil {
			return nil, err
		}
	}

	ix := &Index{Grid: desc, AtomCount: len(atoms), Sizing: sizing, SizingTime: sizingTime}
	acquire := []struct {
		dst  *gpu.Buffer
		kind gpu.Kind
		size uint64
	}{
		{&ix.Atoms, gpu.KindAtoms, uint64(len(atoms) * core.AtomSize)},
		{&ix.Styles, gpu.KindStyles, uint64(len(styles) * core.StyleSize)},
		{&ix.Params, gpu.KindGridParams, ParamsSize},
		{&ix.Cells, gpu.KindCells, uint64(desc.Slots() * CellSize)},
		{&ix.References, gpu.KindReferences, sizing.ReferenceBound * 4},
		{&ix.Counters, gpu.KindCounters, CounterSize},
	}
	for _, a := range acquire {
		buf, err := b.pool.Acquire(a.kind, a.size)
		if err != nil {
			return nil, err
		}
		*a.dst = buf
	}

	list.WriteBuffer(ix.Atoms, 0, core.AtomsToBytes(atoms))
	list.WriteBuffer(ix.Styles, 0, core.StylesToBytes(styles))
	list.WriteBuffer(ix.Params, 0, desc.ParamsBytes(len(atoms)))

	atomGroups := gpu.Workgroups(len(atoms), BlockSize)
	list.Dispatch(b.reset, desc.Blocks(), 1, 1, ix.Params, ix.Cells, ix.Counters)
	list.Barrier(ix.Cells, ix.Counters)
	list.Dispatch(b.count, atomGroups, 1, 1, ix.Params, ix.Atoms, ix.Styles, ix.Cells, ix.Counters)
	list.Barrier(ix.Cells, ix.Counters)
	list.Dispatch(b.finalize, desc.Blocks(), 1, 1, ix.Params, ix.Cells, ix.Counters)
	list.Barrier(ix.Cells, ix.Counters)
	list.Dispatch(b.scatter, atomGroups, 1, 1, ix.Params, ix.Atoms, ix.Styles, ix.Cells, ix.References)
	list.Barrier(ix.Cells, ix.References)

	b.logger.Debugf("grid: built %d atoms, width %d, bound %d references", len(atoms), desc.Width, sizing.ReferenceBound)
	return ix, nil
}

// Compact flushes the device, reads how many references the index really
// claimed and copies cells and references into right-sized buffers owned by
// the returned index. The grid width high-water mark is reset.
func (b *Builder) Compact(ix *Index) (*Index, error) {
	counters, err := gpu.ReadBack(b.device, ix.Counters, CounterSize)
	if err != nil {
		return nil, err
	}
	used := binary.LittleEndian.Uint32(counters[4:])
	if err := checkClaimed(ix, used); err != nil {
		return nil, err
	}

	cellBytes := uint64(ix.Grid.Slots() * CellSize)
	refBytes := uint64(used) * 4

	usage := gpu.BufferUsageStorage | gpu.BufferUsageCopyDst | gpu.BufferUsageCopySrc
	cells, err := b.device.CreateBuffer("compacted-cells", gpu.NextPow2(cellBytes), usage)
	if err != nil {
		return nil, molrt.ResourceExhaustion("compact", "cells: %w", err)
	}
	refs, err := b.device.CreateBuffer("compacted-references", gpu.NextPow2(max(refBytes, 4)), usage)
	if err != nil {
		cells.Release()
		return nil, molrt.ResourceExhaustion("compact", "references: %w", err)
	}

	list, err := b.device.Queue().NewCommandList("compact")
	if err != nil {
		cells.Release()
		refs.Release()
		return nil, err
	}
	list.CopyBuffer(ix.Cells, cells, cellBytes)
	if refBytes > 0 {
		list.CopyBuffer(ix.References, refs, refBytes)
	}
	fence, err := b.device.Queue().Submit(list, nil)
	if err != nil {
		cells.Release()
		refs.Release()
		return nil, err
	}
	fence.Wait()

	out := *ix
	out.Cells = cells
	out.References = refs
	out.UsedReferences = used
	out.Compacted = true
	out.owned = []gpu.Buffer{cells, refs}
	b.width = 0

	b.logger.Debugf("grid: compacted to %d references (%d bytes, bound was %d)", used, refs.Size(), ix.Sizing.ReferenceBound)
	return &out, nil
}

// ReadCells copies the cell records and the used part of the reference array
// back to the CPU. All work writing the index must have been submitted.
func ReadCells(device gpu.Device, ix *Index) ([]Cell, []uint32, error) {
	used := ix.UsedReferences
	if !ix.Compacted {
		counters, err := gpu.ReadBack(device, ix.Counters, CounterSize)
		if err != nil {
			return nil, nil, err
		}
		used = binary.LittleEndian.Uint32(counters[4:])
		if err := checkClaimed(ix, used); err != nil {
			return nil, nil, err
		}
	}

	raw, err := gpu.ReadBack(device, ix.Cells, uint64(ix.Grid.Cells()*CellSize))
	if err != nil {
		return nil, nil, err
	}
	cells := make([]Cell, ix.Grid.Cells())
	for i := range cells {
		cells[i] = Cell{
			Offset: binary.LittleEndian.Uint32(raw[i*CellSize:]),
			Count:  binary.LittleEndian.Uint32(raw[i*CellSize+4:]),
		}
	}

	raw, err = gpu.ReadBack(device, ix.References, uint64(used)*4)
	if err != nil {
		return nil, nil, err
	}
	refs := make([]uint32, used)
	for i := range refs {
		refs[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return cells, refs, nil
}

// checkClaimed fails when the count pass claimed more references than the
// reference buffer holds. Scatter writes past the bound are lost.
func checkClaimed(ix *Index, used uint32) error {
	if uint64(used) > ix.Sizing.ReferenceBound || uint64(used)*4 > ix.References.Size() {
		return molrt.ResourceExhaustion("grid", "count pass claimed %d references, bound is %d", used, ix.Sizing.ReferenceBound)
	}
	return nil
}
