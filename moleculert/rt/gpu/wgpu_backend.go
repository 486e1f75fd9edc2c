package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

// WGPUDevice runs kernels on a webgpu device. Resource-state transitions are
// tracked by the webgpu implementation, so Barrier is a no-op here.
type WGPUDevice struct {
	Device *wgpu.Device
	queue  *wgpu.Queue

	sources map[string]shaders.Source
	logger  molrt.Logger

	mu        sync.Mutex
	pipelines map[string]*wgpuKernel
	pending   sync.WaitGroup
}

func NewWGPUDevice(device *wgpu.Device, sources map[string]shaders.Source, logger molrt.Logger) *WGPUDevice {
	return &WGPUDevice{
		Device:    device,
		queue:     device.GetQueue(),
		sources:   sources,
		logger:    molrt.OrNop(logger),
		pipelines: make(map[string]*wgpuKernel),
	}
}

// RequestHeadlessDevice opens a high-performance adapter without a surface,
// for offline rendering.
func RequestHeadlessDevice(logger molrt.Logger) (*WGPUDevice, error) {
	instance := wgpu.CreateInstance(nil)
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	return NewWGPUDevice(device, shaders.Kernels, logger), nil
}

type wgpuBuffer struct {
	label string
	buf   *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string { return b.label }
func (b *wgpuBuffer) Size() uint64  { return b.buf.GetSize() }
func (b *wgpuBuffer) Release()      { b.buf.Release() }

type wgpuTexture struct {
	label  string
	width  int
	height int
	format TextureFormat
	tex    *wgpu.Texture
	view   *wgpu.TextureView
}

func (t *wgpuTexture) Label() string         { return t.label }
func (t *wgpuTexture) Width() int            { return t.width }
func (t *wgpuTexture) Height() int           { return t.height }
func (t *wgpuTexture) Format() TextureFormat { return t.format }
func (t *wgpuTexture) Release() {
	t.view.Release()
	t.tex.Release()
}

// View exposes the texture view, for presentation passes outside this package.
func (t *wgpuTexture) View() *wgpu.TextureView { return t.view }

// TextureView returns the webgpu view behind a texture created by WGPUDevice.
func TextureView(t Texture) (*wgpu.TextureView, bool) {
	wt, ok := t.(*wgpuTexture)
	if !ok {
		return nil, false
	}
	return wt.view, true
}

type wgpuKernel struct {
	name     string
	size     uint32
	pipeline *wgpu.ComputePipeline
}

func (k *wgpuKernel) Name() string          { return k.name }
func (k *wgpuKernel) WorkgroupSize() uint32 { return k.size }

func (d *WGPUDevice) Name() string { return "wgpu" }

func toWGPUUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u&BufferUsageStorage != 0 {
		out |= wgpu.BufferUsageStorage
	}
	if u&BufferUsageUniform != 0 {
		out |= wgpu.BufferUsageUniform
	}
	if u&BufferUsageCopySrc != 0 {
		out |= wgpu.BufferUsageCopySrc
	}
	if u&BufferUsageCopyDst != 0 {
		out |= wgpu.BufferUsageCopyDst
	}
	if u&BufferUsageMapRead != 0 {
		out |= wgpu.BufferUsageMapRead
	}
	return out
}

func toWGPUFormat(f TextureFormat) wgpu.TextureFormat {
	switch f {
	case TextureFormatR32Float:
		return wgpu.TextureFormatR32Float
	case TextureFormatRG32Float:
		return wgpu.TextureFormatRG32Float
	}
	return wgpu.TextureFormatRGBA8Unorm
}

func (d *WGPUDevice) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if size%4 != 0 {
		size += 4 - size%4
	}
	buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            toWGPUUsage(usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buffer %s: %w", label, err)
	}
	return &wgpuBuffer{label: label, buf: buf}, nil
}

func (d *WGPUDevice) CreateTexture(label string, width, height int, format TextureFormat) (Texture, error) {
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         label,
		Size:          wgpu.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        toWGPUFormat(format),
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopySrc,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %s: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create view %s: %w", label, err)
	}
	return &wgpuTexture{label: label, width: width, height: height, format: format, tex: tex, view: view}, nil
}

// Kernel compiles the named kernel on first use.
func (d *WGPUDevice) Kernel(name string) (Kernel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if k, ok := d.pipelines[name]; ok {
		return k, nil
	}
	src, ok := d.sources[name]
	if !ok {
		return nil, molrt.ConfigurationError("kernel", "no shader source for %q", name)
	}
	module, err := d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          name,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: src.Code},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create shader module %s: %w", name, err)
	}
	defer module.Release()

	pipeline, err := d.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: name,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: src.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline %s: %w", name, err)
	}
	k := &wgpuKernel{name: name, size: src.WorkgroupSize, pipeline: pipeline}
	d.pipelines[name] = k
	d.logger.Debugf("wgpu: compiled kernel %s", name)
	return k, nil
}

func (d *WGPUDevice) Queue() CommandQueue { return d }

// ReadBuffer maps buf, blocking on the device until the map completes.
func (d *WGPUDevice) ReadBuffer(buf Buffer, offset, size uint64) ([]byte, error) {
	b, ok := buf.(*wgpuBuffer)
	if !ok {
		return nil, fmt.Errorf("read buffer: %T is not a wgpu buffer", buf)
	}
	var (
		mapped bool
		status wgpu.BufferMapAsyncStatus
	)
	err := b.buf.MapAsync(wgpu.MapModeRead, offset, size, func(s wgpu.BufferMapAsyncStatus) {
		mapped = true
		status = s
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map %s: %w", b.label, err)
	}
	d.Device.Poll(true, nil)
	if !mapped || status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, errors.New("gpu BufferMapAsync was not successful")
	}
	out := make([]byte, size)
	copy(out, b.buf.GetMappedRange(uint(offset), uint(size)))
	b.buf.Unmap()
	return out, nil
}

// RowPitch pads rows to the 256-byte copy alignment webgpu requires.
func (d *WGPUDevice) RowPitch(width int, format TextureFormat) uint32 {
	bytesPerRow := uint32(width * format.WordsPerTexel() * 4)
	return (bytesPerRow + 255) & ^uint32(255)
}

func (d *WGPUDevice) WaitIdle() {
	d.Device.Poll(true, nil)
	d.pending.Wait()
}

func (d *WGPUDevice) Release() {
	d.WaitIdle()
	d.mu.Lock()
	for _, k := range d.pipelines {
		k.pipeline.Release()
	}
	d.pipelines = nil
	d.mu.Unlock()
}

type wgpuCommandList struct {
	label      string
	device     *WGPUDevice
	encoder    *wgpu.CommandEncoder
	bindGroups []*wgpu.BindGroup
	err        error
}

func (d *WGPUDevice) NewCommandList(label string) (CommandList, error) {
	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder %s: %w", label, err)
	}
	return &wgpuCommandList{label: label, device: d, encoder: encoder}, nil
}

func (l *wgpuCommandList) fail(err error) {
	if l.err == nil {
		l.err = err
	}
}

// WriteBuffer goes through the queue, which orders it before every command
// of the next submission.
func (l *wgpuCommandList) WriteBuffer(dst Buffer, offset uint64, data []byte) {
	l.device.queue.WriteBuffer(dst.(*wgpuBuffer).buf, offset, data)
}

func (l *wgpuCommandList) ClearBuffer(dst Buffer) {
	b := dst.(*wgpuBuffer)
	l.encoder.ClearBuffer(b.buf, 0, b.buf.GetSize())
}

func (l *wgpuCommandList) CopyBuffer(src, dst Buffer, size uint64) {
	l.encoder.CopyBufferToBuffer(src.(*wgpuBuffer).buf, 0, dst.(*wgpuBuffer).buf, 0, size)
}

func (l *wgpuCommandList) CopyTextureToBuffer(src Texture, dst Buffer, rowPitch uint32) {
	t := src.(*wgpuTexture)
	l.encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{X: 0, Y: 0, Z: 0},
		},
		&wgpu.ImageCopyBuffer{
			Buffer: dst.(*wgpuBuffer).buf,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  rowPitch,
				RowsPerImage: uint32(t.height),
			},
		},
		&wgpu.Extent3D{Width: uint32(t.width), Height: uint32(t.height), DepthOrArrayLayers: 1},
	)
}

func (l *wgpuCommandList) Dispatch(k Kernel, gx, gy, gz uint32, bindings ...Resource) {
	wk := k.(*wgpuKernel)
	entries := make([]wgpu.BindGroupEntry, len(bindings))
	for i, r := range bindings {
		switch v := r.(type) {
		case *wgpuBuffer:
			entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), Buffer: v.buf, Size: wgpu.WholeSize}
		case *wgpuTexture:
			entries[i] = wgpu.BindGroupEntry{Binding: uint32(i), TextureView: v.view}
		default:
			l.fail(fmt.Errorf("dispatch %s: binding %d has type %T", wk.name, i, r))
			return
		}
	}
	bg, err := l.device.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  wk.pipeline.GetBindGroupLayout(0),
		Entries: entries,
	})
	if err != nil {
		l.fail(fmt.Errorf("dispatch %s: failed to create bind group: %w", wk.name, err))
		return
	}
	l.bindGroups = append(l.bindGroups, bg)

	pass := l.encoder.BeginComputePass(nil)
	pass.SetPipeline(wk.pipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups(gx, gy, gz)
	if err := pass.End(); err != nil {
		l.fail(fmt.Errorf("dispatch %s: %w", wk.name, err))
	}
}

func (l *wgpuCommandList) Barrier(...Resource) {}

type wgpuFence struct{ done chan struct{} }

func (f *wgpuFence) Wait() { <-f.done }

func (f *wgpuFence) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (d *WGPUDevice) Submit(list CommandList, onComplete func()) (Fence, error) {
	l, ok := list.(*wgpuCommandList)
	if !ok {
		return nil, fmt.Errorf("submit: %T is not a wgpu command list", list)
	}
	defer func() {
		for _, bg := range l.bindGroups {
			bg.Release()
		}
	}()
	if l.err != nil {
		return nil, molrt.ResourceExhaustion("submit "+l.label, "%w", l.err)
	}
	cmd, err := l.encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish %s: %w", l.label, err)
	}
	d.queue.Submit(cmd)
	cmd.Release()

	fence := &wgpuFence{done: make(chan struct{})}
	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.Device.Poll(true, nil)
		close(fence.done)
		if onComplete != nil {
			onComplete()
		}
	}()
	return fence, nil
}
