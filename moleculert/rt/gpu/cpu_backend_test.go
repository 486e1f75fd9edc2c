package gpu

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumKernel adds every input word into output[0].
var sumKernel = CPUKernel{
	KernelName: "sum",
	Size:       4,
	Fn: func(group [3]uint32, b []Resource) {
		in, out := Words(b[0]), Words(b[1])
		for i := group[0] * 4; i < group[0]*4+4 && int(i) < len(in); i++ {
			atomic.AddUint32(&out[0], in[i])
		}
	},
}

func TestCPUDeviceRunsCommandsInOrder(t *testing.T) {
	d := NewCPUDevice(nil, sumKernel)
	defer d.Release()

	in, err := d.CreateBuffer("in", 40, BufferUsageStorage|BufferUsageCopyDst)
	require.NoError(t, err)
	out, err := d.CreateBuffer("out", 4, BufferUsageStorage|BufferUsageCopySrc)
	require.NoError(t, err)
	k, err := d.Kernel("sum")
	require.NoError(t, err)

	data := make([]byte, 40)
	for i := 0; i < 10; i++ {
		data[i*4] = byte(i + 1)
	}

	list, err := d.Queue().NewCommandList("sum")
	require.NoError(t, err)
	list.WriteBuffer(in, 0, data)
	list.ClearBuffer(out)
	list.Dispatch(k, Workgroups(10, k.WorkgroupSize()), 1, 1, in, out)

	var completed atomic.Bool
	fence, err := d.Queue().Submit(list, func() { completed.Store(true) })
	require.NoError(t, err)
	d.WaitIdle()
	assert.True(t, fence.Done())

	got, err := ReadBack(d, out, 4)
	require.NoError(t, err)
	assert.Equal(t, byte(55), got[0])
	assert.True(t, completed.Load())

	stats := d.Stats()
	assert.Equal(t, 1, stats.PerKernel["sum"])
	assert.Equal(t, 2, stats.Submissions)
}

func TestCPUDeviceWriteSnapshotsData(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	buf, err := d.CreateBuffer("b", 4, BufferUsageStorage)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4}
	list, _ := d.Queue().NewCommandList("w")
	list.WriteBuffer(buf, 0, data)
	data[0] = 9
	fence, err := d.Queue().Submit(list, nil)
	require.NoError(t, err)
	fence.Wait()

	got, err := d.ReadBuffer(buf, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestCPUDeviceTextureCopyUsesRowPitch(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	tex, err := d.CreateTexture("t", 3, 2, TextureFormatRG32Float)
	require.NoError(t, err)
	copy(Words(tex), []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	pitch := d.RowPitch(3, TextureFormatRG32Float)
	assert.Equal(t, uint32(24), pitch)
	dst, err := d.CreateBuffer("dst", uint64(pitch)*2, BufferUsageMapRead|BufferUsageCopyDst)
	require.NoError(t, err)

	list, _ := d.Queue().NewCommandList("copy")
	list.CopyTextureToBuffer(tex, dst, pitch)
	fence, err := d.Queue().Submit(list, nil)
	require.NoError(t, err)
	fence.Wait()
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, Words(dst))
}

func TestCPUDeviceUnknownKernel(t *testing.T) {
	d := NewCPUDevice(nil)
	defer d.Release()
	_, err := d.Kernel("missing")
	assert.Error(t, err)
}

func TestCPUDeviceSubmitAfterRelease(t *testing.T) {
	d := NewCPUDevice(nil)
	d.Release()
	list, _ := d.Queue().NewCommandList("late")
	_, err := d.Queue().Submit(list, nil)
	assert.Error(t, err)
}

func TestWorkgroups(t *testing.T) {
	assert.Equal(t, uint32(0), Workgroups(0, 128))
	assert.Equal(t, uint32(1), Workgroups(1, 128))
	assert.Equal(t, uint32(2), Workgroups(129, 128))
}
