package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrow(t *testing.T) {
	tests := []struct {
		capacity, desired, want uint64
	}{
		{0, 0, 1},
		{0, 1, 1},
		{0, 5, 8},
		{8, 5, 8},
		{8, 9, 16},
		{16, 1000, 1024},
		{1024, 1024, 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Grow(tt.capacity, tt.desired), "Grow(%d, %d)", tt.capacity, tt.desired)
	}
	assert.Equal(t, uint64(64), NextPow2(33))
}

type fakeBuf struct{ size uint64 }

func nextFake(r *RingBuffer[*fakeBuf], desired uint64, allocs *int) *fakeBuf {
	v, _, _ := r.Next(desired,
		func(b *fakeBuf) bool { return b.size >= desired },
		func(c uint64) (*fakeBuf, error) {
			*allocs++
			return &fakeBuf{size: c}, nil
		},
		nil,
	)
	return v
}

func TestRingCursorPeriodIsDepth(t *testing.T) {
	r := NewRingBuffer[*fakeBuf](3)
	allocs := 0
	var seen []*fakeBuf
	for i := 0; i < 9; i++ {
		assert.Equal(t, i%3, r.Cursor())
		seen = append(seen, nextFake(r, 16, &allocs))
	}
	assert.Equal(t, 3, allocs)
	for i := 3; i < 9; i++ {
		assert.Same(t, seen[i-3], seen[i])
	}
}

func TestRingCapacityIsMonotonic(t *testing.T) {
	r := NewRingBuffer[*fakeBuf](2)
	allocs := 0
	var last uint64
	for _, desired := range []uint64{10, 3, 100, 7, 64, 200, 1} {
		v := nextFake(r, desired, &allocs)
		assert.GreaterOrEqual(t, v.size, desired)
		assert.GreaterOrEqual(t, r.Capacity(), last)
		last = r.Capacity()
	}
	assert.Equal(t, uint64(256), r.Capacity())
}

func TestRingCursorAdvancesOnFailure(t *testing.T) {
	r := NewRingBuffer[*fakeBuf](2)
	_, allocated, err := r.Next(8,
		func(*fakeBuf) bool { return false },
		func(uint64) (*fakeBuf, error) { return nil, errors.New("out of memory") },
		nil,
	)
	require.Error(t, err)
	assert.False(t, allocated)
	assert.Equal(t, 1, r.Cursor())
	assert.Equal(t, uint64(0), r.Capacity())
	_, ok := r.Slot(0)
	assert.False(t, ok)
}

func TestRingReleasesReplacedSlot(t *testing.T) {
	r := NewRingBuffer[*fakeBuf](1)
	var released []*fakeBuf
	alloc := func(c uint64) (*fakeBuf, error) { return &fakeBuf{size: c}, nil }
	fits := func(desired uint64) func(*fakeBuf) bool {
		return func(b *fakeBuf) bool { return b.size >= desired }
	}
	release := func(b *fakeBuf) { released = append(released, b) }

	first, _, err := r.Next(4, fits(4), alloc, release)
	require.NoError(t, err)
	second, allocated, err := r.Next(32, fits(32), alloc, release)
	require.NoError(t, err)
	assert.True(t, allocated)
	assert.Equal(t, []*fakeBuf{first}, released)

	r.Reset(release)
	assert.Equal(t, []*fakeBuf{first, second}, released)
	assert.Equal(t, uint64(32), r.Capacity())
}
