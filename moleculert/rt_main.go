package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/app"
	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
	"github.com/gekko3d/molrt/moleculert/rt/render"
	"github.com/gekko3d/molrt/moleculert/rt/report"
	"github.com/gekko3d/molrt/moleculert/rt/source"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/google/uuid"
)

// Offline renders use a fixed video tick rate.
const offlineTicksPerSecond = 24000

func init() {
	runtime.LockOSThread()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

type options struct {
	config     string
	frames     int
	fps        int
	xyz        string
	lattice    int
	spin       float64
	preview    int
	exportJSON string
	debug      bool
}

func main() {
	var opts options
	desc := molrt.DefaultDescriptor()

	flag.StringVar(&opts.config, "config", "", "renderer descriptor (.yaml or .toml)")
	flag.IntVar(&opts.frames, "frames", 120, "number of frames to render offline")
	flag.IntVar(&opts.fps, "fps", 60, "offline frame rate")
	flag.StringVar(&opts.xyz, "xyz", "", "render atoms from an .xyz file")
	flag.IntVar(&opts.lattice, "lattice", 8, "diamond lattice size in unit cells when no .xyz is given")
	flag.Float64Var(&opts.spin, "spin", 0.5, "lattice rotation in radians per second")
	flag.IntVar(&opts.preview, "preview", 0, "also write PNG previews of at most this width")
	flag.StringVar(&opts.exportJSON, "export", "", "write the session's frame reports as JSON")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	// Descriptor overrides; applied only when set on the command line.
	offline := flag.Bool("offline", false, "render frames to disk instead of a window")
	out := flag.String("out", "", "offline output directory")
	backend := flag.String("backend", "", "gpu backend: wgpu or cpu")
	quality := flag.String("quality", "", "quality preset: preview, interactive or production")
	reportDB := flag.String("report-db", "", "sqlite database for frame reports")
	width := flag.Int("width", 0, "output width")
	height := flag.Int("height", 0, "output height")
	upscale := flag.Int("upscale", 0, "realtime upscale factor (1, 2 or 3)")
	flag.Parse()

	logger := molrt.NewDefaultLogger("molrt", opts.debug)

	if opts.config != "" {
		loaded, err := molrt.LoadDescriptor(opts.config)
		if err != nil {
			logger.Errorf("%v", err)
			os.Exit(1)
		}
		desc = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "offline":
			desc.Offline = *offline
			if desc.Offline && *upscale == 0 {
				desc.UpscaleFactor = 1
			}
		case "out":
			desc.OutputDir = *out
		case "backend":
			desc.Backend = *backend
		case "quality":
			desc.Quality = *quality
		case "report-db":
			desc.ReportDB = *reportDB
		case "width":
			desc.Width = *width
		case "height":
			desc.Height = *height
		case "upscale":
			desc.UpscaleFactor = *upscale
		}
	})

	if err := run(desc, opts, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(desc molrt.RendererDescriptor, opts options, logger *molrt.DefaultLogger) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if desc.Offline && (opts.frames <= 0 || opts.fps <= 0 || opts.fps > offlineTicksPerSecond) {
		return molrt.ConfigurationError("run", "offline rendering needs a positive frame count and rate, got %d at %d fps", opts.frames, opts.fps)
	}

	var atoms render.AtomDataSource
	if opts.xyz != "" {
		src, err := source.LoadXYZ(opts.xyz, float64(opts.fps))
		if err != nil {
			return err
		}
		atoms = src
	} else {
		atoms = source.NewLatticeSource(opts.lattice, float32(opts.spin))
	}

	var store *report.Store
	if desc.ReportDB != "" {
		s, err := report.Open(desc.ReportDB, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	r := &runner{
		desc:    desc,
		opts:    opts,
		logger:  logger,
		atoms:   atoms,
		styles:  source.DefaultStyleProvider(),
		store:   store,
		session: uuid.New(),
	}
	if desc.Offline {
		return r.offline()
	}
	return r.realtime()
}

type runner struct {
	desc    molrt.RendererDescriptor
	opts    options
	logger  *molrt.DefaultLogger
	atoms   render.AtomDataSource
	styles  *source.Styles
	store   *report.Store
	session uuid.UUID

	reports []render.FrameReport
}

func (r *runner) beginSession(device gpu.Device) (report.Session, error) {
	sess := report.Session{
		ID:         r.session,
		Device:     device.Name(),
		Descriptor: r.desc,
		Started:    time.Now(),
	}
	if r.store != nil {
		if err := r.store.BeginSession(sess); err != nil {
			return sess, err
		}
	}
	return sess, nil
}

func (r *runner) collect(rep render.FrameReport) {
	if r.store != nil || r.opts.exportJSON != "" {
		r.reports = append(r.reports, rep)
	}
}

// finish persists and exports the collected frame reports.
func (r *runner) finish(sess report.Session) error {
	if r.store != nil {
		if err := r.store.Record(r.session, r.reports...); err != nil {
			return err
		}
	}
	if r.opts.exportJSON == "" {
		return nil
	}
	f, err := os.Create(r.opts.exportJSON)
	if err != nil {
		return err
	}
	if err := report.ExportJSON(f, sess, r.reports); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *runner) offline() error {
	var device gpu.Device
	if r.desc.Backend == molrt.BackendCPU {
		device = gpu.NewCPUDevice(r.logger, render.AllCPUKernels()...)
	} else {
		d, err := gpu.RequestHeadlessDevice(r.logger)
		if err != nil {
			return err
		}
		device = d
	}
	defer device.Release()

	dir := filepath.Join(r.desc.OutputDir, r.session.String())
	sink, err := render.TIFFSink(dir, r.logger)
	if err != nil {
		return err
	}
	if r.opts.preview > 0 {
		previews, err := render.PreviewSink(filepath.Join(dir, "preview"), r.opts.preview)
		if err != nil {
			return err
		}
		sink = render.MultiSink(sink, previews)
	}

	d, err := render.NewDispatcher(render.Options{
		Descriptor: r.desc,
		Device:     device,
		Atoms:      r.atoms,
		Styles:     r.styles,
		Sink:       sink,
		Session:    r.session,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	defer d.Release()

	sess, err := r.beginSession(device)
	if err != nil {
		return err
	}
	quality, err := core.QualityPreset(r.desc.Quality)
	if err != nil {
		return err
	}

	period := int64(offlineTicksPerSecond / r.opts.fps)
	clock, err := core.NewClock(period, offlineTicksPerSecond)
	if err != nil {
		return err
	}
	camera := source.FramingCamera(r.atoms.Atoms(0), 60)
	lights := []core.Light{core.CameraLight(camera)}

	start := time.Now()
	for i := 0; i < r.opts.frames; i++ {
		if _, err := clock.Advance(core.VsyncTimestamp{Video: int64(i) * period}); err != nil {
			return err
		}
		if err := d.SetCamera(camera, lights, quality); err != nil {
			return err
		}
		frame, err := d.RenderFrame(clock.Seconds())
		if err != nil {
			d.Stop()
			return err
		}
		r.collect(frame.Report)
	}
	if err := d.Stop(); err != nil {
		return err
	}
	r.logger.Infof("rendered %d frames to %s in %s", r.opts.frames, dir, time.Since(start).Round(time.Millisecond))
	if r.logger.DebugEnabled() {
		r.logger.Debugf("%s", d.Profiler().Stats())
	}
	return r.finish(sess)
}

func (r *runner) realtime() error {
	if r.desc.Backend != molrt.BackendWGPU {
		return molrt.ConfigurationError("run", "realtime rendering needs the %s backend", molrt.BackendWGPU)
	}
	if err := glfw.Init(); err != nil {
		return err
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(r.desc.Width, r.desc.Height, "molrt", nil, nil)
	if err != nil {
		return err
	}
	defer window.Destroy()

	application := app.NewApp(window, r.logger)
	if err := application.Init(); err != nil {
		return err
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, x, y float64) {
		application.HandleCursor(x, y)
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleKey(key, action)
	})

	d, err := render.NewDispatcher(render.Options{
		Descriptor: r.desc,
		Device:     application.Device,
		Atoms:      r.atoms,
		Styles:     r.styles,
		Presenter:  application,
		Session:    r.session,
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	defer d.Release()

	sess, err := r.beginSession(application.Device)
	if err != nil {
		return err
	}
	quality, err := core.QualityPreset(r.desc.Quality)
	if err != nil {
		return err
	}

	rate := application.RefreshRate()
	vsync := &core.VsyncSource{RefreshRate: rate, TicksPerSecond: int64(rate) * 1000}
	clock, err := core.NewClock(vsync.Period(), vsync.TicksPerSecond)
	if err != nil {
		return err
	}
	framing := source.FramingCamera(r.atoms.Atoms(0), 60)
	application.Camera.Position = framing.Position

	start := glfw.GetTime()
	for !window.ShouldClose() {
		glfw.PollEvents()
		camera, lights := application.Update()
		if err := d.SetCamera(camera, lights, quality); err != nil {
			return err
		}

		// glfw has no presentation timestamps; frames sharing a refresh
		// period are pushed to the next one.
		collisions := vsync.Collisions
		ts := vsync.Next(glfw.GetTime() - start)
		if vsync.Collisions > collisions {
			r.logger.Debugf("frame %d shares a refresh period, moved to tick %d", clock.Frames(), ts.Video)
		}
		if _, err := clock.Advance(ts); err != nil {
			return err
		}

		frame, err := d.RenderFrame(clock.Seconds())
		if err != nil {
			d.Stop()
			return err
		}
		r.collect(frame.Report)
		if r.logger.DebugEnabled() && frame.ID%120 == 0 {
			r.logger.Debugf("%.1f fps\n%s", application.FPS, d.Profiler().Stats())
		}
	}
	if err := d.Stop(); err != nil {
		return err
	}
	return r.finish(sess)
}

