package gpu

// Grow returns the capacity after a request for desired bytes: the current
// capacity doubled until it covers the request. A zero capacity starts at 1,
// so capacities are always powers of two.
func Grow(capacity, desired uint64) uint64 {
	if capacity == 0 {
		capacity = 1
	}
	for capacity < desired {
		capacity <<= 1
	}
	return capacity
}

// NextPow2 is the smallest power of two >= n (1 for n == 0).
func NextPow2(n uint64) uint64 { return Grow(1, n) }

// RingBuffer rotates a fixed number of slots. The capacity is a high-water
// mark shared by all slots; it never shrinks.
type RingBuffer[T any] struct {
	slots    []T
	present  []bool
	cursor   int
	capacity uint64
}

func NewRingBuffer[T any](depth int) *RingBuffer[T] {
	if depth < 1 {
		depth = 1
	}
	return &RingBuffer[T]{
		slots:   make([]T, depth),
		present: make([]bool, depth),
	}
}

func (r *RingBuffer[T]) Depth() int       { return len(r.slots) }
func (r *RingBuffer[T]) Cursor() int      { return r.cursor }
func (r *RingBuffer[T]) Capacity() uint64 { return r.capacity }

// Slot returns the value held at index i, if any.
func (r *RingBuffer[T]) Slot(i int) (T, bool) {
	return r.slots[i], r.present[i]
}

// Next returns the value at the cursor and advances the cursor. fits reports
// whether an existing value satisfies the request; when it does not, alloc is
// called with the grown capacity and release with the value being replaced.
// The cursor advances even when alloc fails.
func (r *RingBuffer[T]) Next(desired uint64, fits func(T) bool, alloc func(capacity uint64) (T, error), release func(T)) (value T, allocated bool, err error) {
	i := r.cursor
	r.cursor = (r.cursor + 1) % len(r.slots)

	if r.present[i] && fits(r.slots[i]) {
		return r.slots[i], false, nil
	}

	capacity := Grow(r.capacity, desired)
	v, err := alloc(capacity)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if r.present[i] && release != nil {
		release(r.slots[i])
	}
	r.slots[i] = v
	r.present[i] = true
	r.capacity = capacity
	return v, true, nil
}

// Each calls fn for every occupied slot.
func (r *RingBuffer[T]) Each(fn func(T)) {
	for i, ok := range r.present {
		if ok {
			fn(r.slots[i])
		}
	}
}

// Reset drops every slot, calling release on occupied ones. Capacity is kept.
func (r *RingBuffer[T]) Reset(release func(T)) {
	for i, ok := range r.present {
		if ok && release != nil {
			release(r.slots[i])
		}
		var zero T
		r.slots[i] = zero
		r.present[i] = false
	}
}
