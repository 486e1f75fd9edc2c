package render

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"

	"golang.org/x/sync/semaphore"
)

// submitOffline copies the color image into a staging buffer and submits the
// frame. Encoding happens on the queue goroutine once the copy has landed.
// The call blocks while OfflineFramesInFlight frames are still waiting to be
// encoded.
func (d *Dispatcher) submitOffline(list gpu.CommandList, frame *Frame, color gpu.Texture) error {
	q := d.offline
	if err := q.sem.Acquire(context.Background(), 1); err != nil {
		return err
	}
	pitch := d.device.RowPitch(d.width, gpu.TextureFormatRGBA8)
	staging, err := d.pool.Acquire(gpu.KindStaging, uint64(pitch)*uint64(d.height))
	if err != nil {
		q.sem.Release(1)
		return err
	}
	list.CopyTextureToBuffer(color, staging, pitch)

	job := encodeJob{frameID: frame.ID, staging: staging, rowPitch: pitch}
	fence, err := d.device.Queue().Submit(list, func() { q.jobs <- job })
	if err != nil {
		q.sem.Release(1)
		return err
	}
	frame.Fence = fence
	frame.Staging = staging
	return nil
}

type encodeJob struct {
	frameID  int
	staging  gpu.Buffer
	rowPitch uint32
}

// encodeQueue turns staged frames into images and feeds them to the sink on
// one goroutine, in submission order.
type encodeQueue struct {
	device        gpu.Device
	sink          FrameSink
	width, height int
	hud           bool
	logger        molrt.Logger

	sem  *semaphore.Weighted
	jobs chan encodeJob
	done chan struct{}

	mu          sync.Mutex
	cond        *sync.Cond
	reports     map[int]FrameReport
	err         error
	lastHandled int
}

func newEncodeQueue(device gpu.Device, sink FrameSink, width, height int, hud bool, logger molrt.Logger) *encodeQueue {
	q := &encodeQueue{
		device:      device,
		sink:        sink,
		width:       width,
		height:      height,
		hud:         hud,
		logger:      molrt.OrNop(logger),
		sem:         semaphore.NewWeighted(gpu.OfflineFramesInFlight),
		jobs:        make(chan encodeJob, gpu.OfflineFramesInFlight),
		done:        make(chan struct{}),
		reports:     make(map[int]FrameReport),
		lastHandled: -1,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// setReport publishes the timing of a frame for its overlay.
func (q *encodeQueue) setReport(frameID int, r FrameReport) {
	if !q.hud {
		return
	}
	q.mu.Lock()
	q.reports[frameID] = r
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *encodeQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		err := q.encode(job)
		q.mu.Lock()
		if err != nil && q.err == nil {
			q.err = err
			q.logger.Errorf("encode: frame %d: %v", job.frameID, err)
		}
		q.lastHandled = job.frameID
		q.mu.Unlock()
		q.sem.Release(1)
	}
}

func (q *encodeQueue) encode(job encodeJob) error {
	var report FrameReport
	q.mu.Lock()
	if q.hud {
		r, ok := q.reports[job.frameID]
		for !ok {
			q.cond.Wait()
			r, ok = q.reports[job.frameID]
		}
		delete(q.reports, job.frameID)
		report = r
	}
	failed := q.err != nil
	q.mu.Unlock()
	if failed {
		// Frames after a sink failure are drained but not delivered.
		return nil
	}

	data, err := q.device.ReadBuffer(job.staging, 0, uint64(job.rowPitch)*uint64(q.height))
	if err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, q.width, q.height))
	for y := 0; y < q.height; y++ {
		src := data[y*int(job.rowPitch):]
		copy(img.Pix[y*img.Stride:y*img.Stride+4*q.width], src[:4*q.width])
	}

	if q.hud {
		drawHUD(img, report.Lines())
	}
	return q.sink(job.frameID, img)
}

// stop waits for every queued frame and returns the first error.
func (q *encodeQueue) stop(lastSubmitted int) error {
	if err := q.sem.Acquire(context.Background(), gpu.OfflineFramesInFlight); err != nil {
		return err
	}
	close(q.jobs)
	<-q.done

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if q.lastHandled != lastSubmitted {
		return fmt.Errorf("stop: last encoded frame %d, last submitted %d", q.lastHandled, lastSubmitted)
	}
	return nil
}
