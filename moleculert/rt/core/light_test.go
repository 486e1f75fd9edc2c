package core

import (
	"errors"
	"testing"

	"github.com/gekko3d/molrt"
	"github.com/go-gl/mathgl/mgl32"
)

func TestNormalizeLights(t *testing.T) {
	cam := mgl32.Vec3{0, 0, 10}
	lights := []Light{
		{Origin: cam, DiffusePower: 3, SpecularPower: 1},
		{Origin: mgl32.Vec3{5, 5, 5}, DiffusePower: 1, SpecularPower: 3},
	}
	out, err := NormalizeLights(lights, cam)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].DiffusePower != 0.75 || out[1].DiffusePower != 0.25 {
		t.Errorf("diffuse powers = %v, %v", out[0].DiffusePower, out[1].DiffusePower)
	}
	if out[0].SpecularPower != 0.25 || out[1].SpecularPower != 0.75 {
		t.Errorf("specular powers = %v, %v", out[0].SpecularPower, out[1].SpecularPower)
	}
	if out[0].Flags&LightCameraCentered == 0 {
		t.Errorf("light at camera should be flagged")
	}
	if out[1].Flags != 0 {
		t.Errorf("distant light flagged: %#x", out[1].Flags)
	}
}

func TestNormalizeLightsRejectsTooMany(t *testing.T) {
	lights := make([]Light, MaxLights)
	_, err := NormalizeLights(lights, mgl32.Vec3{})
	if !errors.Is(err, molrt.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLightsToBytesNeverEmpty(t *testing.T) {
	if len(LightsToBytes(nil)) != LightSize {
		t.Errorf("empty light list should pack one record")
	}
}
