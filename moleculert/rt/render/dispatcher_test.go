package render

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
	"github.com/gekko3d/molrt/moleculert/rt/grid"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type atomFunc func(t float64) []core.Atom

func (f atomFunc) Atoms(t float64) []core.Atom { return f(t) }

type staticStyles []core.AtomStyle

func (s staticStyles) Styles() []core.AtomStyle { return s }
func (s staticStyles) LightPower() float32      { return 1 }

func testStyles() staticStyles {
	return staticStyles{
		{Color: mgl32.Vec3{0.9, 0.9, 0.9}, Radius: 0.12, Available: true},
		{Color: mgl32.Vec3{0.3, 0.3, 0.3}, Radius: 0.17, Available: true},
	}
}

// cluster is n atoms on a small cube lattice around the origin.
func cluster(n int) []core.Atom {
	atoms := make([]core.Atom, 0, n)
	side := 1
	for side*side*side < n {
		side++
	}
	for i := 0; i < n; i++ {
		x, y, z := i%side, (i/side)%side, i/(side*side)
		atoms = append(atoms, core.NewAtom(
			0.3*float32(x-side/2), 0.3*float32(y-side/2), 0.3*float32(z-side/2), uint8(i%2)))
	}
	return atoms
}

type surface struct{ released bool }

func (s *surface) Release() { s.released = true }

type recordingPresenter struct {
	presented []gpu.Texture
}

func (p *recordingPresenter) AcquireSurface() (Surface, error) { return &surface{}, nil }

func (p *recordingPresenter) Present(s Surface, img gpu.Texture) error {
	p.presented = append(p.presented, img)
	s.Release()
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	ids    []int
	images []*image.RGBA
	failAt int
}

func (s *recordingSink) sink(id int, img *image.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && id == s.failAt {
		return errors.New("disk full")
	}
	s.ids = append(s.ids, id)
	s.images = append(s.images, img)
	return nil
}

func realtimeDescriptor() molrt.RendererDescriptor {
	d := molrt.DefaultDescriptor()
	d.Width, d.Height = 32, 24
	d.UpscaleFactor = 2
	d.Backend = molrt.BackendCPU
	d.Quality = "preview"
	return d
}

func offlineDescriptor() molrt.RendererDescriptor {
	d := realtimeDescriptor()
	d.Offline = true
	d.UpscaleFactor = 1
	d.MotionVectors = false
	return d
}

func newTestDispatcher(t *testing.T, desc molrt.RendererDescriptor, atoms AtomDataSource, mutate func(*Options)) (*Dispatcher, *gpu.CPUDevice) {
	t.Helper()
	device := gpu.NewCPUDevice(nil, AllCPUKernels()...)
	t.Cleanup(device.Release)
	opts := Options{
		Descriptor: desc,
		Device:     device,
		Atoms:      atoms,
		Styles:     testStyles(),
	}
	if desc.Offline {
		opts.Sink = (&recordingSink{}).sink
	} else {
		opts.Presenter = &recordingPresenter{}
	}
	if mutate != nil {
		mutate(&opts)
	}
	d, err := NewDispatcher(opts)
	require.NoError(t, err)
	return d, device
}

func TestNewDispatcherValidation(t *testing.T) {
	device := gpu.NewCPUDevice(nil, AllCPUKernels()...)
	defer device.Release()

	_, err := NewDispatcher(Options{Descriptor: realtimeDescriptor(), Device: device, Atoms: atomFunc(nil), Styles: testStyles()})
	assert.True(t, errors.Is(err, molrt.ErrConfiguration), "missing presenter: %v", err)

	_, err = NewDispatcher(Options{Descriptor: offlineDescriptor(), Device: device, Atoms: atomFunc(nil), Styles: testStyles()})
	assert.True(t, errors.Is(err, molrt.ErrConfiguration), "missing sink: %v", err)

	desc := realtimeDescriptor()
	desc.UpscaleFactor = 4
	_, err = NewDispatcher(Options{Descriptor: desc, Device: device, Atoms: atomFunc(nil), Styles: testStyles(), Presenter: &recordingPresenter{}})
	assert.True(t, errors.Is(err, molrt.ErrConfiguration), "bad upscale: %v", err)
}

func TestAtomCountChangeWithMotionVectors(t *testing.T) {
	counts := []int{1000, 999}
	d, device := newTestDispatcher(t, realtimeDescriptor(), atomFunc(func(t float64) []core.Atom {
		return cluster(counts[int(t)])
	}), nil)
	defer d.Release()

	frame, err := d.RenderFrame(0)
	require.NoError(t, err)
	frame.Fence.Wait()
	before := device.Stats()

	_, err = d.RenderFrame(1)
	require.Error(t, err)
	kind, ok := molrt.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, molrt.KindConfiguration, kind)

	after := device.Stats()
	assert.Equal(t, before.Dispatches, after.Dispatches)
	assert.Equal(t, before.Submissions, after.Submissions)
	require.NoError(t, d.Stop())
}

func TestAtomCountChangeWithoutMotionVectors(t *testing.T) {
	desc := realtimeDescriptor()
	desc.MotionVectors = false
	counts := []int{100, 99}
	d, _ := newTestDispatcher(t, desc, atomFunc(func(t float64) []core.Atom {
		return cluster(counts[int(t)])
	}), nil)
	defer d.Release()

	_, err := d.RenderFrame(0)
	require.NoError(t, err)
	frame, err := d.RenderFrame(1)
	require.NoError(t, err)
	assert.True(t, frame.Rebuilt)
	require.NoError(t, d.Stop())
}

func TestRealtimeFramesAreUpscaledAndPresented(t *testing.T) {
	presenter := &recordingPresenter{}
	d, _ := newTestDispatcher(t, realtimeDescriptor(), atomFunc(func(float64) []core.Atom { return cluster(27) }),
		func(o *Options) { o.Presenter = presenter })
	defer d.Release()

	for i := 0; i < 3; i++ {
		frame, err := d.RenderFrame(float64(i) / 60)
		require.NoError(t, err)
		require.NotNil(t, frame.Surface)
		assert.Equal(t, 32, frame.Surface.Width())
		assert.Equal(t, 24, frame.Surface.Height())
		assert.Equal(t, i > 0, !frame.Rebuilt, "frame %d", i)
	}
	require.NoError(t, d.Stop())
	assert.Len(t, presenter.presented, 3)
}

func TestCachedFrameRendersIdentically(t *testing.T) {
	sink := &recordingSink{}
	atoms := cluster(64)
	d, _ := newTestDispatcher(t, offlineDescriptor(), atomFunc(func(float64) []core.Atom { return atoms }),
		func(o *Options) { o.Sink = sink.sink })
	defer d.Release()

	first, err := d.RenderFrame(0)
	require.NoError(t, err)
	second, err := d.RenderFrame(1)
	require.NoError(t, err)
	assert.True(t, first.Rebuilt)
	assert.False(t, second.Rebuilt)
	require.NoError(t, d.Stop())

	require.Equal(t, []int{0, 1}, sink.ids)
	assert.Equal(t, sink.images[0].Pix, sink.images[1].Pix)

	hit := false
	for i := 0; i < len(sink.images[0].Pix); i += 4 {
		if sink.images[0].Pix[i] != 13 {
			hit = true
			break
		}
	}
	assert.True(t, hit, "no atom visible")
}

func TestSetCameraOncePerFrame(t *testing.T) {
	d, _ := newTestDispatcher(t, realtimeDescriptor(), atomFunc(func(float64) []core.Atom { return cluster(8) }), nil)
	defer d.Release()

	cam := core.LookAt(mgl32.Vec3{0, -5, 0}, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}, 45)
	lights := []core.Light{core.CameraLight(cam)}
	require.NoError(t, d.SetCamera(cam, lights, core.QualityPreview))
	err := d.SetCamera(cam, lights, core.QualityPreview)
	assert.True(t, errors.Is(err, molrt.ErrConfiguration))

	_, err = d.RenderFrame(0)
	require.NoError(t, err)
	assert.NoError(t, d.SetCamera(cam, lights, core.QualityPreview))
	require.NoError(t, d.Stop())
}

func TestOfflineStopDrainsAndReportsSinkError(t *testing.T) {
	sink := &recordingSink{failAt: 2}
	d, _ := newTestDispatcher(t, offlineDescriptor(), atomFunc(func(float64) []core.Atom { return cluster(8) }),
		func(o *Options) { o.Sink = sink.sink })
	defer d.Release()

	for i := 0; i < 7; i++ {
		_, err := d.RenderFrame(float64(i))
		require.NoError(t, err)
	}
	err := d.Stop()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []int{0, 1}, sink.ids)

	_, err = d.RenderFrame(8)
	assert.True(t, errors.Is(err, molrt.ErrConfiguration))
	assert.NoError(t, d.Stop())
}

func TestOfflineSinkErrorReleasesOverlayReports(t *testing.T) {
	sink := &recordingSink{failAt: 1}
	desc := offlineDescriptor()
	desc.ReportPerformance = true
	d, _ := newTestDispatcher(t, desc, atomFunc(func(float64) []core.Atom { return cluster(8) }),
		func(o *Options) { o.Sink = sink.sink })
	defer d.Release()

	for i := 0; i < 9; i++ {
		_, err := d.RenderFrame(float64(i))
		require.NoError(t, err)
	}
	require.ErrorContains(t, d.Stop(), "disk full")
	assert.Equal(t, []int{0}, sink.ids)

	d.offline.mu.Lock()
	defer d.offline.mu.Unlock()
	assert.Empty(t, d.offline.reports)
}

func TestEncodeQueueStopDetectsMissingFrames(t *testing.T) {
	device := gpu.NewCPUDevice(nil)
	defer device.Release()
	q := newEncodeQueue(device, (&recordingSink{}).sink, 4, 4, false, nil)

	err := q.stop(3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last submitted 3")
	_, classified := molrt.KindOf(err)
	assert.False(t, classified)
}

func TestFramesInFlightFollowRingDepths(t *testing.T) {
	assert.Equal(t, gpu.GeometryFramesInFlight-1, framesInFlight)
	assert.LessOrEqual(t, framesInFlight, gpu.RealtimeFramesInFlight)
	assert.Less(t, framesInFlight, gpu.OfflineFramesInFlight)

	d, _ := newTestDispatcher(t, offlineDescriptor(), atomFunc(func(float64) []core.Atom { return cluster(8) }), nil)
	defer d.Release()
	assert.Len(t, d.inflight, framesInFlight)
	for i := 0; i < 5; i++ {
		_, err := d.RenderFrame(float64(i))
		require.NoError(t, err)
	}
	require.NoError(t, d.Stop())
}

func TestOfflineFramesArriveInOrder(t *testing.T) {
	sink := &recordingSink{}
	desc := offlineDescriptor()
	desc.ReportPerformance = true
	d, _ := newTestDispatcher(t, desc, atomFunc(func(float64) []core.Atom { return cluster(8) }),
		func(o *Options) { o.Sink = sink.sink })
	defer d.Release()

	for i := 0; i < 10; i++ {
		_, err := d.RenderFrame(float64(i))
		require.NoError(t, err)
	}
	require.NoError(t, d.Stop())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, sink.ids)
}

func TestProfilerKeepsRecentReports(t *testing.T) {
	d, _ := newTestDispatcher(t, realtimeDescriptor(), atomFunc(func(float64) []core.Atom { return cluster(8) }), nil)
	defer d.Release()

	for i := 0; i < ReportHistory+2; i++ {
		_, err := d.RenderFrame(0)
		require.NoError(t, err)
	}
	require.NoError(t, d.Stop())

	reports := d.Profiler().Reports()
	require.Len(t, reports, ReportHistory)
	assert.Equal(t, 2, reports[0].FrameID)
	assert.Equal(t, grid.StateCompacted, d.Cache().State())
	last, ok := d.Profiler().Last()
	require.True(t, ok)
	assert.Equal(t, ReportHistory+1, last.FrameID)
	assert.Equal(t, 8, last.Atoms)
	assert.Contains(t, d.Profiler().Stats(), "Last 10 frames")
}
