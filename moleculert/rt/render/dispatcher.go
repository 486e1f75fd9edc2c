package render

import (
	"fmt"
	"image"
	"time"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
	"github.com/gekko3d/molrt/moleculert/rt/grid"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// AtomDataSource produces the atoms of the scene at animation time t.
type AtomDataSource interface {
	Atoms(t float64) []core.Atom
}

type StyleProvider interface {
	Styles() []core.AtomStyle
	LightPower() float32
}

// Surface is a presentable target handed out by a PresentationAdapter.
type Surface interface {
	Release()
}

// PresentationAdapter shows realtime frames. Present is called after the
// frame's work has been submitted; adapters that read image on the CPU must
// wait for the device first.
type PresentationAdapter interface {
	AcquireSurface() (Surface, error)
	Present(surface Surface, image gpu.Texture) error
}

// FrameSink receives encoded offline frames on the background encode
// goroutine, in submission order.
type FrameSink func(frameID int, img *image.RGBA) error

type Options struct {
	Descriptor molrt.RendererDescriptor
	Device     gpu.Device
	Atoms      AtomDataSource
	Styles     StyleProvider

	// Presenter is required in realtime mode, Sink in offline mode.
	Presenter PresentationAdapter
	Sink      FrameSink

	// CompactionThreshold defaults to grid.DefaultCompactionThreshold.
	CompactionThreshold int
	// Session is generated when zero.
	Session uuid.UUID
	Logger  molrt.Logger
}

// Frame is the outcome of one RenderFrame call.
type Frame struct {
	ID        int
	Rebuilt   bool
	Compacted bool
	// Surface is the upscaled image (realtime).
	Surface gpu.Texture
	// Staging holds the padded color rows (offline).
	Staging gpu.Buffer
	Fence   gpu.Fence
	Report  FrameReport
}

// framesInFlight caps the frames queued on the device in both modes. Geometry
// ring slots come back after GeometryFramesInFlight-1 other frames, and the
// color, depth and motion textures are RealtimeFramesInFlight deep. The
// deeper offline staging ring only lets encoding trail the device.
const framesInFlight = min(gpu.GeometryFramesInFlight-1, gpu.RealtimeFramesInFlight)

// Dispatcher orchestrates the per-frame GPU work. It is driven from a single
// goroutine.
type Dispatcher struct {
	desc      molrt.RendererDescriptor
	device    gpu.Device
	pool      *gpu.FrameResourcePool
	builder   *grid.Builder
	cache     *grid.FrameCache
	atoms     AtomDataSource
	styles    StyleProvider
	presenter PresentationAdapter
	logger    molrt.Logger
	session   uuid.UUID
	profiler  *Profiler

	raytrace gpu.Kernel
	upscale  gpu.Kernel

	width, height int

	camera    core.Camera
	lights    []core.GPULight
	quality   core.Quality
	cameraSet bool

	frameID   int
	prevArgs  *core.Arguments
	prevAtoms []core.Atom
	history   gpu.Texture
	inflight  []gpu.Fence
	lastFence gpu.Fence

	offline *encodeQueue
	stopped bool
}

func NewDispatcher(opts Options) (*Dispatcher, error) {
	if err := opts.Descriptor.Validate(); err != nil {
		return nil, err
	}
	if opts.Device == nil || opts.Atoms == nil || opts.Styles == nil {
		return nil, molrt.ConfigurationError("new dispatcher", "device, atom source and style provider are required")
	}
	if opts.Descriptor.Offline && opts.Sink == nil {
		return nil, molrt.ConfigurationError("new dispatcher", "offline mode needs a frame sink")
	}
	if !opts.Descriptor.Offline && opts.Presenter == nil {
		return nil, molrt.ConfigurationError("new dispatcher", "realtime mode needs a presentation adapter")
	}
	quality, err := core.QualityPreset(opts.Descriptor.Quality)
	if err != nil {
		return nil, err
	}

	session := opts.Session
	if session == uuid.Nil {
		session = uuid.New()
	}
	logger := molrt.OrNop(opts.Logger)
	if dl, ok := logger.(*molrt.DefaultLogger); ok {
		logger = dl.Named(session.String()[:8])
	}

	pool := gpu.NewFrameResourcePool(opts.Device, gpu.DefaultKinds(), logger)
	builder, err := grid.NewBuilder(opts.Device, pool, opts.Descriptor.SceneSize.CellWidth(), logger)
	if err != nil {
		return nil, err
	}
	cache := grid.NewFrameCache(builder, opts.CompactionThreshold, logger)
	cache.SetBuildOnce(opts.Descriptor.SceneSize.BuildOnce())

	raytrace, err := opts.Device.Kernel(KernelRaytrace)
	if err != nil {
		return nil, err
	}
	var upscale gpu.Kernel
	if !opts.Descriptor.Offline {
		if upscale, err = opts.Device.Kernel(KernelUpscale); err != nil {
			return nil, err
		}
	}

	w, h := opts.Descriptor.IntermediateSize()
	d := &Dispatcher{
		desc:      opts.Descriptor,
		device:    opts.Device,
		pool:      pool,
		builder:   builder,
		cache:     cache,
		atoms:     opts.Atoms,
		styles:    opts.Styles,
		presenter: opts.Presenter,
		logger:    logger,
		session:   session,
		profiler:  NewProfiler(),
		raytrace:  raytrace,
		upscale:   upscale,
		width:     w,
		height:    h,
		camera:    core.LookAt(mgl32.Vec3{0, -8, 0}, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, 60),
		quality:   quality,
		inflight:  make([]gpu.Fence, framesInFlight),
	}
	if opts.Descriptor.Offline {
		d.offline = newEncodeQueue(opts.Device, opts.Sink, w, h, opts.Descriptor.ReportPerformance, logger)
	}
	logger.Infof("dispatcher: %s on %s, intermediate %dx%d", opts.Descriptor, opts.Device.Name(), w, h)
	return d, nil
}

func (d *Dispatcher) Session() uuid.UUID { return d.session }
func (d *Dispatcher) Profiler() *Profiler { return d.profiler }
func (d *Dispatcher) Pool() *gpu.FrameResourcePool { return d.pool }
func (d *Dispatcher) Cache() *grid.FrameCache { return d.cache }
func (d *Dispatcher) Descriptor() molrt.RendererDescriptor { return d.desc }

// SetCamera sets the view for the next frame. It may be called at most once
// per frame.
func (d *Dispatcher) SetCamera(camera core.Camera, lights []core.Light, quality core.Quality) error {
	if d.cameraSet {
		return molrt.ConfigurationError("set camera", "camera already set for frame %d", d.frameID)
	}
	normalized, err := core.NormalizeLights(lights, camera.Position)
	if err != nil {
		return err
	}
	d.camera = camera
	d.lights = normalized
	d.quality = quality
	d.cameraSet = true
	return nil
}

// RenderFrame renders the scene at animation time t.
func (d *Dispatcher) RenderFrame(t float64) (*Frame, error) {
	if d.stopped {
		return nil, molrt.ConfigurationError("render frame", "dispatcher stopped")
	}
	d.profiler.BeginScope(ScopeRender)

	d.profiler.BeginScope(ScopeCopying)
	atoms := append([]core.Atom(nil), d.atoms.Atoms(t)...)
	styles := d.styles.Styles()
	core.ApplyStyles(atoms, styles)
	copying := d.profiler.EndScope(ScopeCopying)

	if d.desc.MotionVectors && d.prevAtoms != nil && len(atoms) != len(d.prevAtoms) {
		return nil, molrt.ConfigurationError("render frame",
			"atom count changed from %d to %d with motion vectors enabled", len(d.prevAtoms), len(atoms))
	}

	// Wait for the frame that last used this frame's ring slots.
	slot := d.frameID % len(d.inflight)
	if f := d.inflight[slot]; f != nil {
		f.Wait()
	}

	list, err := d.device.Queue().NewCommandList(fmt.Sprintf("frame %d", d.frameID))
	if err != nil {
		return nil, err
	}

	d.profiler.BeginScope(ScopeGeometry)
	res, err := d.cache.Prepare(list, atoms, styles)
	if err != nil {
		return nil, err
	}
	geometry := d.profiler.EndScope(ScopeGeometry)

	jitter := mgl32.Vec2{}
	if !d.desc.Offline {
		jitter = core.JitterOffset(d.frameID)
	}
	args := core.NewArguments(d.camera, core.FrameSetup{
		FrameID:       d.frameID,
		Width:         d.width,
		Height:        d.height,
		UpscaleFactor: d.desc.UpscaleFactor,
		Offline:       d.desc.Offline,
		Quality:       d.quality,
		LightCount:    len(d.lights),
		LightPower:    d.styles.LightPower(),
		Jitter:        jitter,
	}).WithGrid(res.Index.Grid.Width, res.Index.Grid.CellWidth)

	ix := res.Index
	prevAtoms := ix.Atoms
	if d.desc.MotionVectors && res.Rebuilt && d.prevAtoms != nil {
		buf, err := d.pool.Acquire(gpu.KindPreviousAtoms, uint64(len(d.prevAtoms)*core.AtomSize))
		if err != nil {
			return nil, err
		}
		list.WriteBuffer(buf, 0, core.AtomsToBytes(d.prevAtoms))
		prevAtoms = buf
	}

	lightBytes := core.LightsToBytes(d.lights)
	lights, err := d.pool.Acquire(gpu.KindLights, uint64(len(lightBytes)))
	if err != nil {
		return nil, err
	}
	list.WriteBuffer(lights, 0, lightBytes)

	argBuf, err := d.pool.Acquire(gpu.KindArguments, 2*core.ArgumentsSize)
	if err != nil {
		return nil, err
	}
	list.WriteBuffer(argBuf, 0, core.ArgumentPair(args, d.prevArgs))

	color, err := d.pool.AcquireTexture(gpu.KindColor, d.width, d.height, gpu.TextureFormatRGBA8)
	if err != nil {
		return nil, err
	}
	depth, err := d.pool.AcquireTexture(gpu.KindDepth, d.width, d.height, gpu.TextureFormatR32Float)
	if err != nil {
		return nil, err
	}
	motion, err := d.pool.AcquireTexture(gpu.KindMotion, d.width, d.height, gpu.TextureFormatRG32Float)
	if err != nil {
		return nil, err
	}

	list.Dispatch(d.raytrace,
		gpu.Workgroups(d.width, TileSize), gpu.Workgroups(d.height, TileSize), 1,
		argBuf, ix.Styles, ix.Atoms, prevAtoms, ix.Cells, ix.References, ix.Params, lights,
		color, depth, motion)
	list.Barrier(color, depth, motion)

	frame := &Frame{ID: d.frameID, Rebuilt: res.Rebuilt, Compacted: res.Compacted}
	if d.desc.Offline {
		err = d.submitOffline(list, frame, color)
	} else {
		err = d.submitRealtime(list, frame, argBuf, color, motion)
	}
	if err != nil {
		return nil, err
	}
	d.inflight[slot] = frame.Fence
	d.lastFence = frame.Fence

	refs := ix.Sizing.ReferenceBound
	if ix.Compacted {
		refs = uint64(ix.UsedReferences)
	}
	report := FrameReport{
		FrameID:      d.frameID,
		CopyingTime:  copying,
		GeometryTime: geometry,
		Rebuilt:      res.Rebuilt,
		Compacted:    res.Compacted,
		Atoms:        len(atoms),
		References:   refs,
	}
	if res.Rebuilt {
		report.SizingTime = ix.SizingTime
		d.profiler.SetScope(ScopeSizing, ix.SizingTime)
	}
	report.RenderTime = d.profiler.EndScope(ScopeRender)
	d.profiler.SetCount("atoms", len(atoms))
	d.profiler.SetCount("duplicates", res.Duplicates)
	d.profiler.Record(report)
	frame.Report = report
	if d.offline != nil {
		d.offline.setReport(frame.ID, report)
	}

	d.prevArgs = &args
	if d.desc.MotionVectors {
		d.prevAtoms = atoms
	}
	d.cameraSet = false
	d.frameID++
	return frame, nil
}

// Stop waits for every submitted frame. In offline mode it also drains the
// encode queue and returns the first sink error. The dispatcher cannot render
// afterwards.
func (d *Dispatcher) Stop() error {
	if d.stopped {
		return nil
	}
	d.stopped = true
	if d.lastFence != nil {
		d.lastFence.Wait()
	}
	if d.offline == nil {
		d.device.WaitIdle()
		return nil
	}
	start := time.Now()
	err := d.offline.stop(d.frameID - 1)
	d.logger.Debugf("dispatcher: offline queue drained in %s", time.Since(start))
	return err
}

// Release frees pooled and cached resources. Call after Stop.
func (d *Dispatcher) Release() {
	d.device.WaitIdle()
	d.cache.Release()
	d.pool.Release()
}
