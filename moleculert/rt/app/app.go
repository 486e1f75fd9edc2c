package app

import (
	"fmt"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
	"github.com/gekko3d/molrt/moleculert/rt/render"
	"github.com/gekko3d/molrt/moleculert/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// App owns the window and its webgpu surface. It presents the renderer's
// upscaled frames with a fullscreen blit and drives the flying camera.
type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *gpu.WGPUDevice
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	RenderPipeline *wgpu.RenderPipeline
	Sampler        *wgpu.Sampler

	Camera        *core.CameraState
	MouseCaptured bool

	logger     molrt.Logger
	bindGroups map[*wgpu.TextureView]*wgpu.BindGroup
	lastX      float64
	lastY      float64
	lastTime   float64
	lastFrame  float64

	FrameCount int
	FPS        float64
	FPSTime    float64
}

func NewApp(window *glfw.Window, logger molrt.Logger) *App {
	return &App{
		Window:     window,
		Camera:     core.NewCameraState(),
		logger:     molrt.OrNop(logger),
		bindGroups: make(map[*wgpu.TextureView]*wgpu.BindGroup),
	}
}

func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(a.Window))

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: a.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Device = gpu.NewWGPUDevice(device, shaders.Kernels, a.logger)

	width, height := a.Window.GetFramebufferSize()
	caps := a.Surface.GetCapabilities(adapter)
	format := caps.Formats[0]
	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	a.Surface.Configure(adapter, device, a.Config)

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Fullscreen VS/FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.FullscreenWGSL},
	})
	if err != nil {
		return err
	}
	defer module.Release()

	a.RenderPipeline, err = device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Blit Pipeline",
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return err
	}

	a.Sampler, err = device.CreateSampler(&wgpu.SamplerDescriptor{
		MinFilter:     wgpu.FilterModeLinear,
		MagFilter:     wgpu.FilterModeLinear,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return err
	}

	a.lastTime = glfw.GetTime()
	a.logger.Infof("app: surface %dx%d, format %v", width, height, format)
	return nil
}

// RefreshRate is the primary monitor's refresh rate, 60 when unknown.
func (a *App) RefreshRate() int {
	if m := glfw.GetPrimaryMonitor(); m != nil {
		if mode := m.GetVideoMode(); mode != nil && mode.RefreshRate > 0 {
			return mode.RefreshRate
		}
	}
	return 60
}

func (a *App) Resize(w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	a.Config.Width = uint32(w)
	a.Config.Height = uint32(h)
	a.Surface.Configure(a.Adapter, a.Device.Device, a.Config)
}

// Update moves the camera from the keyboard state. It returns the camera and
// its single headlight for the next frame.
func (a *App) Update() (core.Camera, []core.Light) {
	now := glfw.GetTime()
	dt := float32(now - a.lastTime)
	a.lastTime = now

	var forward, right float32
	if a.Window.GetKey(glfw.KeyW) == glfw.Press {
		forward++
	}
	if a.Window.GetKey(glfw.KeyS) == glfw.Press {
		forward--
	}
	if a.Window.GetKey(glfw.KeyD) == glfw.Press {
		right++
	}
	if a.Window.GetKey(glfw.KeyA) == glfw.Press {
		right--
	}
	a.Camera.Move(forward, right, dt)

	cam := a.Camera.Camera()
	return cam, []core.Light{core.CameraLight(cam)}
}

func (a *App) HandleCursor(x, y float64) {
	if a.MouseCaptured {
		a.Camera.Look(float32(x-a.lastX), float32(y-a.lastY))
	}
	a.lastX, a.lastY = x, y
}

func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}
	switch key {
	case glfw.KeyTab:
		a.MouseCaptured = !a.MouseCaptured
		if a.MouseCaptured {
			a.Window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		} else {
			a.Window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
	case glfw.KeyEscape:
		a.Window.SetShouldClose(true)
	}
}

type surfaceFrame struct {
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

func (s *surfaceFrame) Release() {
	s.view.Release()
	s.texture.Release()
}

func (a *App) AcquireSurface() (render.Surface, error) {
	texture, err := a.Surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("GetCurrentTexture failed: %w", err)
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		texture.Release()
		return nil, fmt.Errorf("CreateView failed: %w", err)
	}
	return &surfaceFrame{texture: texture, view: view}, nil
}

func (a *App) bindGroup(view *wgpu.TextureView) (*wgpu.BindGroup, error) {
	if bg, ok := a.bindGroups[view]; ok {
		return bg, nil
	}
	bg, err := a.Device.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: a.RenderPipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: view},
			{Binding: 1, Sampler: a.Sampler},
		},
	})
	if err != nil {
		return nil, err
	}
	a.bindGroups[view] = bg
	return bg, nil
}

// Present blits img onto the surface. The blit is queued behind the frame's
// compute work on the same queue.
func (a *App) Present(s render.Surface, img gpu.Texture) error {
	frame := s.(*surfaceFrame)
	defer frame.Release()

	src, ok := gpu.TextureView(img)
	if !ok {
		return molrt.ConfigurationError("present", "texture %q does not belong to the webgpu device", img.Label())
	}
	bg, err := a.bindGroup(src)
	if err != nil {
		return err
	}

	encoder, err := a.Device.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("CreateCommandEncoder failed: %w", err)
	}
	defer encoder.Release()
	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       frame.view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	pass.SetPipeline(a.RenderPipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Draw(3, 1, 0, 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("render pass End failed: %w", err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("encoder Finish failed: %w", err)
	}
	defer cmd.Release()
	a.Device.Device.GetQueue().Submit(cmd)
	a.Surface.Present()

	a.countFrame()
	return nil
}

func (a *App) countFrame() {
	now := glfw.GetTime()
	if a.lastFrame == 0 {
		a.lastFrame = now
		return
	}
	a.FrameCount++
	a.FPSTime += now - a.lastFrame
	a.lastFrame = now
	if a.FPSTime >= 1.0 {
		a.FPS = float64(a.FrameCount) / a.FPSTime
		a.FrameCount = 0
		a.FPSTime = 0
	}
}

func (a *App) Release() {
	for _, bg := range a.bindGroups {
		bg.Release()
	}
	a.bindGroups = nil
	if a.Sampler != nil {
		a.Sampler.Release()
	}
	if a.RenderPipeline != nil {
		a.RenderPipeline.Release()
	}
	if a.Device != nil {
		a.Device.Release()
		a.Device.Device.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}
