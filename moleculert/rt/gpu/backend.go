package gpu

// The renderer talks to the GPU only through the interfaces in this file.
// A backend is chosen once at startup; nothing above this package branches on
// which one is running.

type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageUniform
	BufferUsageCopySrc
	BufferUsageCopyDst
	BufferUsageMapRead
)

type TextureFormat uint8

const (
	// TextureFormatRGBA8 is one packed word per texel, red in the low byte.
	TextureFormatRGBA8 TextureFormat = iota + 1
	// TextureFormatR32Float is one float32 per texel.
	TextureFormatR32Float
	// TextureFormatRG32Float is two float32 per texel.
	TextureFormatRG32Float
)

// WordsPerTexel is the texel size in 32-bit words.
func (f TextureFormat) WordsPerTexel() int {
	if f == TextureFormatRG32Float {
		return 2
	}
	return 1
}

func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "rgba8"
	case TextureFormatR32Float:
		return "r32float"
	case TextureFormatRG32Float:
		return "rg32float"
	}
	return "unknown"
}

// Resource is anything that can be bound to a kernel.
type Resource interface {
	Label() string
	Release()
}

type Buffer interface {
	Resource
	Size() uint64
}

type Texture interface {
	Resource
	Width() int
	Height() int
	Format() TextureFormat
}

// Kernel is an opaque compiled compute program. Bindings are passed to
// Dispatch in binding-slot order.
type Kernel interface {
	Name() string
	// WorkgroupSize is the number of invocations per workgroup along x.
	WorkgroupSize() uint32
}

// CommandList records GPU work. Commands execute in recording order once the
// list is submitted.
type CommandList interface {
	// WriteBuffer uploads data before any command recorded after it.
	WriteBuffer(dst Buffer, offset uint64, data []byte)
	ClearBuffer(dst Buffer)
	CopyBuffer(src, dst Buffer, size uint64)
	CopyTextureToBuffer(src Texture, dst Buffer, rowPitch uint32)
	Dispatch(k Kernel, groupsX, groupsY, groupsZ uint32, bindings ...Resource)
	// Barrier declares that the listed resources change from being written to
	// being read. Backends with implicit hazard tracking ignore it.
	Barrier(resources ...Resource)
}

// Fence tracks one submission.
type Fence interface {
	Wait()
	Done() bool
}

type CommandQueue interface {
	NewCommandList(label string) (CommandList, error)
	// Submit hands the list to the GPU. onComplete, when non-nil, runs on a
	// backend goroutine after the work has finished.
	Submit(list CommandList, onComplete func()) (Fence, error)
}

type Device interface {
	Name() string
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)
	CreateTexture(label string, width, height int, format TextureFormat) (Texture, error)
	Kernel(name string) (Kernel, error)
	Queue() CommandQueue
	// ReadBuffer copies size bytes out of a MapRead buffer. The work that
	// wrote buf must have completed.
	ReadBuffer(buf Buffer, offset, size uint64) ([]byte, error)
	// RowPitch is the byte stride of one texel row when copied into a buffer.
	RowPitch(width int, format TextureFormat) uint32
	WaitIdle()
	Release()
}

// Workgroups is the number of workgroups needed to cover n invocations.
func Workgroups(n int, size uint32) uint32 {
	if n <= 0 {
		return 0
	}
	return (uint32(n) + size - 1) / size
}

// ReadBack copies size bytes of src into a temporary MapRead buffer, waits for
// the copy and returns the bytes.
func ReadBack(device Device, src Buffer, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	staging, err := device.CreateBuffer("readback", size, BufferUsageMapRead|BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	list, err := device.Queue().NewCommandList("readback")
	if err != nil {
		return nil, err
	}
	list.CopyBuffer(src, staging, size)
	fence, err := device.Queue().Submit(list, nil)
	if err != nil {
		return nil, err
	}
	fence.Wait()
	return device.ReadBuffer(staging, 0, size)
}
