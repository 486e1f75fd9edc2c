package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera is the per-frame view handed to the renderer. Basis columns are the
// camera's right, up and backward axes in world space; rays leave through -Z.
type Camera struct {
	Position   mgl32.Vec3
	Basis      mgl32.Mat3
	FOVDegrees float32
}

func NewCamera(position mgl32.Vec3, fovDegrees float32) Camera {
	return Camera{Position: position, Basis: mgl32.Ident3(), FOVDegrees: fovDegrees}
}

// LookAt returns a camera at eye facing target with the given up hint.
func LookAt(eye, target, up mgl32.Vec3, fovDegrees float32) Camera {
	back := eye.Sub(target).Normalize()
	right := up.Cross(back).Normalize()
	trueUp := back.Cross(right)
	return Camera{
		Position:   eye,
		Basis:      mgl32.Mat3FromCols(right, trueUp, back),
		FOVDegrees: fovDegrees,
	}
}

// FOVMultiplier converts pixel offsets from the image center into camera-space
// ray slopes for an image intermediateWidth pixels wide.
func (c Camera) FOVMultiplier(intermediateWidth int) float32 {
	fov := float64(mgl32.DegToRad(c.FOVDegrees))
	return float32(math.Tan(fov/2) / (0.5 * float64(intermediateWidth)))
}

// CameraState is an interactive flying camera. Z is up.
type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	FOVDegrees  float32
	Speed       float32
	Sensitivity float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Position:    mgl32.Vec3{0, -8, 0},
		FOVDegrees:  60,
		Speed:       2.0,
		Sensitivity: 0.003,
	}
}

func (c *CameraState) GetForward() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Pitch)) * math.Sin(float64(c.Yaw))),
		float32(math.Cos(float64(c.Pitch)) * math.Cos(float64(c.Yaw))),
		float32(math.Sin(float64(c.Pitch))),
	}
}

func (c *CameraState) GetRight() mgl32.Vec3 {
	return mgl32.Vec3{
		float32(math.Cos(float64(c.Yaw))),
		float32(-math.Sin(float64(c.Yaw))),
		0,
	}
}

// Look applies a mouse delta in pixels, clamping pitch short of the poles.
func (c *CameraState) Look(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch -= dy * c.Sensitivity
	limit := float32(math.Pi/2 - 0.01)
	c.Pitch = mgl32.Clamp(c.Pitch, -limit, limit)
}

// Move translates along the view axes; forward and right are in [-1, 1].
func (c *CameraState) Move(forward, right, dt float32) {
	step := c.Speed * dt
	c.Position = c.Position.Add(c.GetForward().Mul(forward * step)).Add(c.GetRight().Mul(right * step))
}

// Camera snapshots the state into a renderer camera.
func (c *CameraState) Camera() Camera {
	forward := c.GetForward()
	right := c.GetRight()
	up := right.Cross(forward).Normalize()
	return Camera{
		Position:   c.Position,
		Basis:      mgl32.Mat3FromCols(right, up, forward.Mul(-1)),
		FOVDegrees: c.FOVDegrees,
	}
}
