package gpu

import (
	"fmt"
	"sort"

	"github.com/gekko3d/molrt"
)

// Kind names a category of pooled resource.
type Kind string

const (
	KindAtoms         Kind = "atoms"
	KindPreviousAtoms Kind = "previous-atoms"
	KindStyles        Kind = "styles"
	KindGridParams    Kind = "grid-params"
	KindCells         Kind = "cells"
	KindReferences    Kind = "references"
	KindCounters      Kind = "counters"
	KindLights        Kind = "lights"
	KindArguments     Kind = "arguments"
	KindStaging       Kind = "staging"

	KindColor    Kind = "color"
	KindDepth    Kind = "depth"
	KindMotion   Kind = "motion"
	KindUpscaled Kind = "upscaled"
	KindHistory  Kind = "history"
)

// Frames in flight per pipeline stage.
const (
	GeometryFramesInFlight = 3
	RealtimeFramesInFlight = 2
	OfflineFramesInFlight  = 4
)

// KindSpec fixes the ring depth and usage of a kind.
type KindSpec struct {
	Depth int
	Usage BufferUsage
}

// DefaultKinds is the ring layout used by the renderer.
func DefaultKinds() map[Kind]KindSpec {
	storage := BufferUsageStorage | BufferUsageCopyDst | BufferUsageCopySrc
	return map[Kind]KindSpec{
		KindAtoms:         {GeometryFramesInFlight, storage},
		KindPreviousAtoms: {GeometryFramesInFlight, storage},
		KindStyles:        {GeometryFramesInFlight, storage},
		KindGridParams:    {GeometryFramesInFlight, BufferUsageUniform | BufferUsageCopyDst},
		KindCells:         {GeometryFramesInFlight, storage},
		KindReferences:    {GeometryFramesInFlight, storage},
		KindCounters:      {GeometryFramesInFlight, storage},
		KindLights:        {GeometryFramesInFlight, storage},
		KindArguments:     {GeometryFramesInFlight, BufferUsageUniform | BufferUsageCopyDst},
		KindStaging:       {OfflineFramesInFlight, BufferUsageMapRead | BufferUsageCopyDst},

		KindColor:    {RealtimeFramesInFlight, 0},
		KindDepth:    {RealtimeFramesInFlight, 0},
		KindMotion:   {RealtimeFramesInFlight, 0},
		KindUpscaled: {RealtimeFramesInFlight, 0},
		KindHistory:  {RealtimeFramesInFlight, 0},
	}
}

type PoolStats struct {
	Kind        Kind
	Depth       int
	Capacity    uint64
	Allocations int
}

// FrameResourcePool owns every ring-buffered resource. Slots of a kind are
// handed out round-robin, so a slot is revisited only after depth-1 other
// acquisitions of the same kind.
type FrameResourcePool struct {
	device   Device
	kinds    map[Kind]KindSpec
	buffers  map[Kind]*RingBuffer[Buffer]
	textures map[Kind]*RingBuffer[Texture]
	allocs   map[Kind]int
	logger   molrt.Logger
}

func NewFrameResourcePool(device Device, kinds map[Kind]KindSpec, logger molrt.Logger) *FrameResourcePool {
	if kinds == nil {
		kinds = DefaultKinds()
	}
	return &FrameResourcePool{
		device:   device,
		kinds:    kinds,
		buffers:  make(map[Kind]*RingBuffer[Buffer]),
		textures: make(map[Kind]*RingBuffer[Texture]),
		allocs:   make(map[Kind]int),
		logger:   molrt.OrNop(logger),
	}
}

func (p *FrameResourcePool) spec(kind Kind) (KindSpec, error) {
	s, ok := p.kinds[kind]
	if !ok {
		return s, molrt.ConfigurationError("acquire", "unknown resource kind %q", kind)
	}
	return s, nil
}

func (p *FrameResourcePool) bufferRing(kind Kind, depth int) *RingBuffer[Buffer] {
	r, ok := p.buffers[kind]
	if !ok {
		r = NewRingBuffer[Buffer](depth)
		p.buffers[kind] = r
	}
	return r
}

// Acquire returns the buffer at the current slot of kind, replacing it when
// it is missing or smaller than logicalSize, and advances the slot cursor.
func (p *FrameResourcePool) Acquire(kind Kind, logicalSize uint64) (Buffer, error) {
	spec, err := p.spec(kind)
	if err != nil {
		return nil, err
	}
	if logicalSize < 4 {
		logicalSize = 4
	}
	ring := p.bufferRing(kind, spec.Depth)
	slot := ring.Cursor()
	buf, allocated, err := ring.Next(logicalSize,
		func(b Buffer) bool { return b.Size() >= logicalSize },
		func(capacity uint64) (Buffer, error) {
			label := fmt.Sprintf("%s[%d]", kind, slot)
			b, err := p.device.CreateBuffer(label, capacity, spec.Usage)
			if err != nil {
				return nil, molrt.ResourceExhaustion("acquire "+string(kind), "create %d byte buffer: %w", capacity, err)
			}
			return b, nil
		},
		func(b Buffer) { b.Release() },
	)
	if err != nil {
		return nil, err
	}
	if allocated {
		p.allocs[kind]++
		p.logger.Debugf("pool: %s slot %d grew to %d bytes", kind, slot, buf.Size())
	}
	return buf, nil
}

// AcquireTexture is Acquire for textures. Textures are reused only when the
// dimensions and format match exactly.
func (p *FrameResourcePool) AcquireTexture(kind Kind, width, height int, format TextureFormat) (Texture, error) {
	spec, err := p.spec(kind)
	if err != nil {
		return nil, err
	}
	ring, ok := p.textures[kind]
	if !ok {
		ring = NewRingBuffer[Texture](spec.Depth)
		p.textures[kind] = ring
	}
	slot := ring.Cursor()
	size := uint64(width*height*format.WordsPerTexel()) * 4
	tex, allocated, err := ring.Next(size,
		func(t Texture) bool {
			return t.Width() == width && t.Height() == height && t.Format() == format
		},
		func(uint64) (Texture, error) {
			label := fmt.Sprintf("%s[%d]", kind, slot)
			t, err := p.device.CreateTexture(label, width, height, format)
			if err != nil {
				return nil, molrt.ResourceExhaustion("acquire "+string(kind), "create %dx%d %s texture: %w", width, height, format, err)
			}
			return t, nil
		},
		func(t Texture) { t.Release() },
	)
	if err != nil {
		return nil, err
	}
	if allocated {
		p.allocs[kind]++
	}
	return tex, nil
}

// Capacity is the high-water capacity of kind in bytes.
func (p *FrameResourcePool) Capacity(kind Kind) uint64 {
	if r, ok := p.buffers[kind]; ok {
		return r.Capacity()
	}
	if r, ok := p.textures[kind]; ok {
		return r.Capacity()
	}
	return 0
}

// Cursor is the slot the next Acquire of kind will return.
func (p *FrameResourcePool) Cursor(kind Kind) int {
	if r, ok := p.buffers[kind]; ok {
		return r.Cursor()
	}
	if r, ok := p.textures[kind]; ok {
		return r.Cursor()
	}
	return 0
}

func (p *FrameResourcePool) Allocations(kind Kind) int { return p.allocs[kind] }

func (p *FrameResourcePool) Stats() []PoolStats {
	var out []PoolStats
	for kind, spec := range p.kinds {
		if _, ok := p.buffers[kind]; !ok {
			if _, ok := p.textures[kind]; !ok {
				continue
			}
		}
		out = append(out, PoolStats{
			Kind:        kind,
			Depth:       spec.Depth,
			Capacity:    p.Capacity(kind),
			Allocations: p.allocs[kind],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Release frees every pooled resource.
func (p *FrameResourcePool) Release() {
	for _, r := range p.buffers {
		r.Reset(func(b Buffer) { b.Release() })
	}
	for _, r := range p.textures {
		r.Reset(func(t Texture) { t.Release() })
	}
}
