package core

import "testing"

func TestHaltonSequence(t *testing.T) {
	base2 := []float32{0, 0.5, 0.25, 0.75, 0.125}
	for i, want := range base2 {
		if got := Halton(i, 2); got != want {
			t.Errorf("Halton(%d, 2) = %v, want %v", i, got, want)
		}
	}
	base3 := []float32{0, 1.0 / 3, 2.0 / 3, 1.0 / 9}
	for i, want := range base3 {
		if got := Halton(i, 3); got-want > 1e-6 || want-got > 1e-6 {
			t.Errorf("Halton(%d, 3) = %v, want %v", i, got, want)
		}
	}
}

func TestJitterOffsetPeriod(t *testing.T) {
	first := JitterOffset(0)
	if first.X() != 0 || first.Y() != float32(1.0/3)-0.5 {
		t.Errorf("frame 0 jitter = %v", first)
	}
	for f := 0; f < JitterPeriod; f++ {
		j := JitterOffset(f)
		if j != JitterOffset(f+JitterPeriod) {
			t.Errorf("jitter not periodic at frame %d", f)
		}
		if j.X() < -0.5 || j.X() >= 0.5 || j.Y() < -0.5 || j.Y() >= 0.5 {
			t.Errorf("frame %d jitter out of range: %v", f, j)
		}
	}
}
