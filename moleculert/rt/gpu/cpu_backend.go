package gpu

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"

	"github.com/gekko3d/molrt"

	"golang.org/x/sync/errgroup"
)

// KernelFunc runs one workgroup of a CPU kernel.
type KernelFunc func(group [3]uint32, bindings []Resource)

// CPUKernel is a software implementation of a named compute kernel.
type CPUKernel struct {
	KernelName string
	Size       uint32
	Fn         KernelFunc
}

func (k *CPUKernel) Name() string          { return k.KernelName }
func (k *CPUKernel) WorkgroupSize() uint32 { return k.Size }

type cpuBuffer struct {
	label    string
	size     uint64
	words    []uint32
	released bool
}

func (b *cpuBuffer) Label() string { return b.label }
func (b *cpuBuffer) Size() uint64  { return b.size }
func (b *cpuBuffer) Release()      { b.released = true }

type cpuTexture struct {
	label  string
	width  int
	height int
	format TextureFormat
	words  []uint32
}

func (t *cpuTexture) Label() string         { return t.label }
func (t *cpuTexture) Width() int            { return t.width }
func (t *cpuTexture) Height() int           { return t.height }
func (t *cpuTexture) Format() TextureFormat { return t.format }
func (t *cpuTexture) Release()              {}

// Words exposes the backing store of a CPU buffer or texture to kernels.
// Kernels update shared words only through sync/atomic.
func Words(r Resource) []uint32 {
	switch v := r.(type) {
	case *cpuBuffer:
		return v.words
	case *cpuTexture:
		return v.words
	}
	panic(fmt.Sprintf("gpu: %T is not a CPU resource", r))
}

// CPUStats counts work done by a CPUDevice.
type CPUStats struct {
	Submissions    int
	Dispatches     int
	BuffersCreated int
	BytesCreated   uint64
	PerKernel      map[string]int
}

// CPUDevice executes kernels in Go. Workgroups of one dispatch run
// concurrently; submissions execute in order on a single queue goroutine.
type CPUDevice struct {
	// MaxBufferSize makes CreateBuffer fail above this size. Zero means no limit.
	MaxBufferSize uint64

	kernels     map[string]*CPUKernel
	parallelism int
	queue       *cpuQueue
	logger      molrt.Logger

	mu    sync.Mutex
	stats CPUStats
}

func NewCPUDevice(logger molrt.Logger, kernels ...CPUKernel) *CPUDevice {
	d := &CPUDevice{
		kernels:     make(map[string]*CPUKernel),
		parallelism: runtime.GOMAXPROCS(0),
		logger:      molrt.OrNop(logger),
		stats:       CPUStats{PerKernel: make(map[string]int)},
	}
	for i := range kernels {
		k := kernels[i]
		d.kernels[k.KernelName] = &k
	}
	d.queue = newCPUQueue(d)
	return d
}

func (d *CPUDevice) Name() string { return "cpu" }

func (d *CPUDevice) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if d.MaxBufferSize > 0 && size > d.MaxBufferSize {
		return nil, fmt.Errorf("buffer %q: %d bytes exceeds device limit %d", label, size, d.MaxBufferSize)
	}
	d.mu.Lock()
	d.stats.BuffersCreated++
	d.stats.BytesCreated += size
	d.mu.Unlock()
	return &cpuBuffer{label: label, size: size, words: make([]uint32, (size+3)/4)}, nil
}

func (d *CPUDevice) CreateTexture(label string, width, height int, format TextureFormat) (Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture %q: invalid size %dx%d", label, width, height)
	}
	return &cpuTexture{
		label:  label,
		width:  width,
		height: height,
		format: format,
		words:  make([]uint32, width*height*format.WordsPerTexel()),
	}, nil
}

func (d *CPUDevice) Kernel(name string) (Kernel, error) {
	k, ok := d.kernels[name]
	if !ok {
		return nil, molrt.ConfigurationError("kernel", "cpu kernel %q not registered", name)
	}
	return k, nil
}

func (d *CPUDevice) Queue() CommandQueue { return d.queue }

func (d *CPUDevice) ReadBuffer(buf Buffer, offset, size uint64) ([]byte, error) {
	b, ok := buf.(*cpuBuffer)
	if !ok {
		return nil, fmt.Errorf("read buffer: %T is not a CPU buffer", buf)
	}
	if offset+size > b.size {
		return nil, fmt.Errorf("read buffer %q: range %d+%d exceeds %d bytes", b.label, offset, size, b.size)
	}
	out := make([]byte, size)
	wordsToBytes(out, b.words, offset)
	return out, nil
}

func (d *CPUDevice) RowPitch(width int, format TextureFormat) uint32 {
	return uint32(width * format.WordsPerTexel() * 4)
}

func (d *CPUDevice) WaitIdle() { d.queue.waitIdle() }

func (d *CPUDevice) Release() { d.queue.close() }

// Stats returns a snapshot of the device counters.
func (d *CPUDevice) Stats() CPUStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	s.PerKernel = make(map[string]int, len(d.stats.PerKernel))
	for k, v := range d.stats.PerKernel {
		s.PerKernel[k] = v
	}
	return s
}

func (d *CPUDevice) dispatch(k *CPUKernel, gx, gy, gz uint32, bindings []Resource) {
	d.mu.Lock()
	d.stats.Dispatches++
	d.stats.PerKernel[k.KernelName]++
	d.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(d.parallelism)
	for z := uint32(0); z < gz; z++ {
		for y := uint32(0); y < gy; y++ {
			for x := uint32(0); x < gx; x++ {
				group := [3]uint32{x, y, z}
				g.Go(func() error {
					k.Fn(group, bindings)
					return nil
				})
			}
		}
	}
	g.Wait()
}

// bytes <-> words, little endian, starting at a byte offset into words.
func bytesToWords(words []uint32, offset uint64, data []byte) {
	if offset%4 != 0 || len(data)%4 != 0 {
		panic(fmt.Sprintf("gpu: unaligned write offset=%d len=%d", offset, len(data)))
	}
	base := offset / 4
	for i := 0; i < len(data); i += 4 {
		words[base+uint64(i/4)] = binary.LittleEndian.Uint32(data[i:])
	}
}

func wordsToBytes(out []byte, words []uint32, offset uint64) {
	base := offset / 4
	for i := 0; i+4 <= len(out); i += 4 {
		binary.LittleEndian.PutUint32(out[i:], words[base+uint64(i/4)])
	}
}

type cpuCommandList struct {
	label    string
	device   *CPUDevice
	commands []func()
}

func (l *cpuCommandList) WriteBuffer(dst Buffer, offset uint64, data []byte) {
	b := dst.(*cpuBuffer)
	if offset+uint64(len(data)) > b.size {
		panic(fmt.Sprintf("gpu: write of %d bytes at %d overflows %q (%d bytes)", len(data), offset, b.label, b.size))
	}
	snapshot := append([]byte(nil), data...)
	l.commands = append(l.commands, func() { bytesToWords(b.words, offset, snapshot) })
}

func (l *cpuCommandList) ClearBuffer(dst Buffer) {
	b := dst.(*cpuBuffer)
	l.commands = append(l.commands, func() { clear(b.words) })
}

func (l *cpuCommandList) CopyBuffer(src, dst Buffer, size uint64) {
	s, d := src.(*cpuBuffer), dst.(*cpuBuffer)
	if size > s.size || size > d.size {
		panic(fmt.Sprintf("gpu: copy of %d bytes from %q (%d) to %q (%d)", size, s.label, s.size, d.label, d.size))
	}
	n := (size + 3) / 4
	l.commands = append(l.commands, func() { copy(d.words[:n], s.words[:n]) })
}

func (l *cpuCommandList) CopyTextureToBuffer(src Texture, dst Buffer, rowPitch uint32) {
	t, b := src.(*cpuTexture), dst.(*cpuBuffer)
	rowWords := t.width * t.format.WordsPerTexel()
	pitchWords := int(rowPitch / 4)
	if uint64(pitchWords*t.height*4) > b.size {
		panic(fmt.Sprintf("gpu: texture copy %q does not fit %q", t.label, b.label))
	}
	l.commands = append(l.commands, func() {
		for y := 0; y < t.height; y++ {
			copy(b.words[y*pitchWords:y*pitchWords+rowWords], t.words[y*rowWords:(y+1)*rowWords])
		}
	})
}

func (l *cpuCommandList) Dispatch(k Kernel, gx, gy, gz uint32, bindings ...Resource) {
	ck := k.(*CPUKernel)
	bound := append([]Resource(nil), bindings...)
	l.commands = append(l.commands, func() { l.device.dispatch(ck, gx, gy, gz, bound) })
}

func (l *cpuCommandList) Barrier(...Resource) {}

type cpuFence struct{ done chan struct{} }

func (f *cpuFence) Wait() { <-f.done }

func (f *cpuFence) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

type cpuSubmission struct {
	list       *cpuCommandList
	fence      *cpuFence
	onComplete func()
}

type cpuQueue struct {
	device *CPUDevice
	work   chan cpuSubmission

	mu     sync.Mutex
	last   *cpuFence
	closed bool
	wg     sync.WaitGroup
}

func newCPUQueue(d *CPUDevice) *cpuQueue {
	q := &cpuQueue{device: d, work: make(chan cpuSubmission, 64)}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *cpuQueue) run() {
	defer q.wg.Done()
	for s := range q.work {
		for _, cmd := range s.list.commands {
			cmd()
		}
		close(s.fence.done)
		if s.onComplete != nil {
			s.onComplete()
		}
	}
}

func (q *cpuQueue) NewCommandList(label string) (CommandList, error) {
	return &cpuCommandList{label: label, device: q.device}, nil
}

func (q *cpuQueue) Submit(list CommandList, onComplete func()) (Fence, error) {
	l, ok := list.(*cpuCommandList)
	if !ok {
		return nil, fmt.Errorf("submit: %T is not a CPU command list", list)
	}
	fence := &cpuFence{done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("submit %q: device released", l.label)
	}
	q.last = fence
	q.device.mu.Lock()
	q.device.stats.Submissions++
	q.device.mu.Unlock()
	q.work <- cpuSubmission{list: l, fence: fence, onComplete: onComplete}
	q.mu.Unlock()
	return fence, nil
}

func (q *cpuQueue) waitIdle() {
	q.mu.Lock()
	last := q.last
	q.mu.Unlock()
	if last != nil {
		last.Wait()
	}
}

func (q *cpuQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()
	q.wg.Wait()
}
