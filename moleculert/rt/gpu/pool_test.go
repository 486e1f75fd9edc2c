package gpu

import (
	"testing"

	"github.com/gekko3d/molrt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReusesLargeEnoughSlot(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	p := NewFrameResourcePool(d, nil, nil)

	first, err := p.Acquire(KindAtoms, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), first.Size())

	// Fill every slot, then come back around to the first one.
	for i := 1; i < GeometryFramesInFlight; i++ {
		_, err := p.Acquire(KindAtoms, 1000)
		require.NoError(t, err)
	}
	before := d.Stats().BuffersCreated
	again, err := p.Acquire(KindAtoms, 900)
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, before, d.Stats().BuffersCreated)
}

func TestAcquireGrowsOnlyTheCurrentSlot(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	p := NewFrameResourcePool(d, nil, nil)

	var slots []Buffer
	for i := 0; i < GeometryFramesInFlight; i++ {
		b, err := p.Acquire(KindCells, 64)
		require.NoError(t, err)
		slots = append(slots, b)
	}

	grown, err := p.Acquire(KindCells, 3000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4096), grown.Size())
	assert.Equal(t, uint64(4096), p.Capacity(KindCells))
	assert.Equal(t, GeometryFramesInFlight+1, p.Allocations(KindCells))

	ring := p.buffers[KindCells]
	for i := 1; i < GeometryFramesInFlight; i++ {
		b, ok := ring.Slot(i)
		require.True(t, ok)
		assert.Same(t, slots[i], b)
		assert.Equal(t, uint64(64), b.Size())
	}
}

func TestAcquireCapacityMonotonic(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	p := NewFrameResourcePool(d, nil, nil)

	var last uint64
	for _, size := range []uint64{100, 5000, 10, 70000, 3, 4096} {
		b, err := p.Acquire(KindReferences, size)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b.Size(), size)
		assert.GreaterOrEqual(t, p.Capacity(KindReferences), last)
		last = p.Capacity(KindReferences)
	}
}

func TestAcquireExhaustion(t *testing.T) {
	d := NewCPUDevice(nil)
	d.MaxBufferSize = 1 << 10
	defer d.Release()
	p := NewFrameResourcePool(d, nil, nil)

	_, err := p.Acquire(KindReferences, 1<<12)
	require.Error(t, err)
	assert.ErrorIs(t, err, molrt.ErrResourceExhaustion)
	assert.Equal(t, 1, p.Cursor(KindReferences))
}

func TestAcquireUnknownKind(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	p := NewFrameResourcePool(d, map[Kind]KindSpec{KindAtoms: {1, BufferUsageStorage}}, nil)

	_, err := p.Acquire(KindCells, 16)
	assert.ErrorIs(t, err, molrt.ErrConfiguration)
}

func TestAcquireTextureMatchesExactly(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	p := NewFrameResourcePool(d, nil, nil)

	a, err := p.AcquireTexture(KindColor, 64, 32, TextureFormatRGBA8)
	require.NoError(t, err)
	_, err = p.AcquireTexture(KindColor, 64, 32, TextureFormatRGBA8)
	require.NoError(t, err)

	same, err := p.AcquireTexture(KindColor, 64, 32, TextureFormatRGBA8)
	require.NoError(t, err)
	assert.Same(t, a, same)

	_, err = p.AcquireTexture(KindColor, 64, 32, TextureFormatR32Float)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Allocations(KindColor))

	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, KindColor, stats[0].Kind)
	assert.Equal(t, RealtimeFramesInFlight, stats[0].Depth)
}
