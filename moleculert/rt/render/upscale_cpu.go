package render

import (
	"math"

	"github.com/gekko3d/molrt/moleculert/rt/gpu"
)

// historyWeight is the share of the reprojected history in each output pixel.
const historyWeight = 0.9

// Upscale bindings: arguments, color, history, motion, output.
func upscaleCPU(group [3]uint32, b []gpu.Resource) {
	args := argumentsFromWords(gpu.Words(b[0]), 0)
	colorTex, historyTex := b[1].(gpu.Texture), b[2].(gpu.Texture)
	outTex := b[4].(gpu.Texture)
	color, history := gpu.Words(b[1]), gpu.Words(b[2])
	motion, out := gpu.Words(b[3]), gpu.Words(b[4])

	cw, ch := colorTex.Width(), colorTex.Height()
	ow, oh := outTex.Width(), outTex.Height()
	scale := float32(ow) / float32(cw)
	useHistory := args.FrameID > 0 && historyTex.Width() == ow && historyTex.Height() == oh

	for ty := 0; ty < TileSize; ty++ {
		oy := int(group[1])*TileSize + ty
		if oy >= oh {
			break
		}
		for tx := 0; tx < TileSize; tx++ {
			ox := int(group[0])*TileSize + tx
			if ox >= ow {
				break
			}
			sx := clampi(int(math.Round(float64((float32(ox)+0.5)/scale-0.5-args.Jitter.X()))), 0, cw-1)
			sy := clampi(int(math.Round(float64((float32(oy)+0.5)/scale-0.5-args.Jitter.Y()))), 0, ch-1)
			current := unpackColor(color[sy*cw+sx])

			result := current
			if useHistory {
				lo, hi := current, current
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						n := unpackColor(color[clampi(sy+dy, 0, ch-1)*cw+clampi(sx+dx, 0, cw-1)])
						for c := 0; c < 3; c++ {
							lo[c] = min(lo[c], n[c])
							hi[c] = max(hi[c], n[c])
						}
					}
				}
				m := sy*cw + sx
				hx := int(math.Round(float64(float32(ox) - math.Float32frombits(motion[2*m])*scale)))
				hy := int(math.Round(float64(float32(oy) - math.Float32frombits(motion[2*m+1])*scale)))
				if hx >= 0 && hx < ow && hy >= 0 && hy < oh {
					prev := unpackColor(history[hy*ow+hx])
					for c := 0; c < 3; c++ {
						prev[c] = min(max(prev[c], lo[c]), hi[c])
					}
					result = prev.Mul(historyWeight).Add(current.Mul(1 - historyWeight))
				}
			}
			out[oy*ow+ox] = packColor(result)
		}
	}
}

func clampi(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
