package core

import (
	"errors"
	"testing"

	"github.com/gekko3d/molrt"
)

func TestClockCountsRefreshPeriods(t *testing.T) {
	c, err := NewClock(400, 24000)
	if err != nil {
		t.Fatal(err)
	}
	steps := []struct {
		video int64
		want  int64
	}{
		{1000, 0},
		{1400, 1},
		{2200, 2},
		{2600, 1},
	}
	for _, s := range steps {
		got, err := c.Advance(VsyncTimestamp{Video: s.video})
		if err != nil {
			t.Fatalf("Advance(%d): %v", s.video, err)
		}
		if got != s.want {
			t.Errorf("Advance(%d) = %d, want %d", s.video, got, s.want)
		}
	}
	if c.Frames() != 4 {
		t.Errorf("Frames = %d, want 4", c.Frames())
	}
	if c.Seconds() != 4*400.0/24000 {
		t.Errorf("Seconds = %v", c.Seconds())
	}
}

func TestClockRejectsMisalignedTimestamp(t *testing.T) {
	c, _ := NewClock(400, 24000)
	c.Advance(VsyncTimestamp{Video: 0})
	_, err := c.Advance(VsyncTimestamp{Video: 401})
	if !errors.Is(err, molrt.ErrTimingAnomaly) {
		t.Fatalf("expected timing anomaly, got %v", err)
	}
}

func TestClockRejectsNonMonotonic(t *testing.T) {
	c, _ := NewClock(400, 24000)
	c.Advance(VsyncTimestamp{Video: 800})
	_, err := c.Advance(VsyncTimestamp{Video: 800})
	if !errors.Is(err, molrt.ErrTimingAnomaly) {
		t.Fatalf("expected timing anomaly for repeated timestamp, got %v", err)
	}
}

func TestQuantizeAlignsToPeriod(t *testing.T) {
	c, _ := NewClock(24000/60, 24000)
	for _, s := range []float64{0, 0.016, 0.034, 0.051, 1.0} {
		ts := Quantize(s, 60, 24000)
		if ts.Video%c.RefreshPeriod != 0 {
			t.Errorf("Quantize(%v) = %d not aligned", s, ts.Video)
		}
	}
}

func TestNewClockValidates(t *testing.T) {
	if _, err := NewClock(0, 100); !errors.Is(err, molrt.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestVsyncSourceMovesCollisionsForward(t *testing.T) {
	src := &VsyncSource{RefreshRate: 60, TicksPerSecond: 60000}
	c, err := NewClock(src.Period(), src.TicksPerSecond)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{0, 1000, 2000, 3000, 5000}
	for i, sec := range []float64{0, 0.001, 0.002, 0.05, 0.08} {
		ts := src.Next(sec)
		if ts.Video != want[i] {
			t.Errorf("Next(%v) = %d, want %d", sec, ts.Video, want[i])
		}
		if _, err := c.Advance(ts); err != nil {
			t.Fatalf("Advance(%d): %v", ts.Video, err)
		}
	}
	if src.Collisions != 2 {
		t.Errorf("Collisions = %d, want 2", src.Collisions)
	}
	if c.Frames() != 5 {
		t.Errorf("Frames() = %d, want 5", c.Frames())
	}
}
