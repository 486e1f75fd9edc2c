package render

import (
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
)

// submitRealtime records the temporal upscale into a texture sized for the
// presentation surface, submits the frame and hands the result to the
// presenter. The upscaled image becomes the history of the next frame.
func (d *Dispatcher) submitRealtime(list gpu.CommandList, frame *Frame, args gpu.Buffer, color, motion gpu.Texture) error {
	surface, err := d.presenter.AcquireSurface()
	if err != nil {
		return err
	}

	ow, oh := d.width*d.desc.UpscaleFactor, d.height*d.desc.UpscaleFactor
	out, err := d.pool.AcquireTexture(gpu.KindUpscaled, ow, oh, gpu.TextureFormatRGBA8)
	if err != nil {
		surface.Release()
		return err
	}

	history := d.history
	if history == nil || history.Width() != ow || history.Height() != oh || history == out {
		// First frame or resized: bind a placeholder, the kernel ignores it
		// while frame 0 or the sizes differ.
		if history, err = d.pool.AcquireTexture(gpu.KindHistory, ow, oh, gpu.TextureFormatRGBA8); err != nil {
			surface.Release()
			return err
		}
	}

	list.Dispatch(d.upscale,
		gpu.Workgroups(ow, TileSize), gpu.Workgroups(oh, TileSize), 1,
		args, color, history, motion, out)
	list.Barrier(out)

	fence, err := d.device.Queue().Submit(list, nil)
	if err != nil {
		surface.Release()
		return err
	}
	frame.Fence = fence
	frame.Surface = out

	if err := d.presenter.Present(surface, out); err != nil {
		return err
	}
	d.history = out
	return nil
}
