package core

import (
	"math"

	"github.com/gekko3d/molrt"
)

// VsyncTimestamp is a presentation timestamp in integer video ticks.
type VsyncTimestamp struct {
	Video int64
}

// Clock turns vsync timestamps into whole refresh periods. Timestamps must be
// aligned to the refresh period relative to the first one and strictly
// increasing; anything else is a TimingAnomaly.
type Clock struct {
	RefreshPeriod  int64
	TicksPerSecond int64

	started  bool
	start    VsyncTimestamp
	previous VsyncTimestamp
	frames   int64
}

func NewClock(refreshPeriod, ticksPerSecond int64) (*Clock, error) {
	if refreshPeriod <= 0 || ticksPerSecond <= 0 {
		return nil, molrt.ConfigurationError("new clock", "refresh period %d and tick rate %d must be positive", refreshPeriod, ticksPerSecond)
	}
	return &Clock{RefreshPeriod: refreshPeriod, TicksPerSecond: ticksPerSecond}, nil
}

// Advance consumes the next timestamp and returns the number of refresh
// periods since the previous one. The first call returns 0.
func (c *Clock) Advance(ts VsyncTimestamp) (int64, error) {
	const op = "advance clock"
	if !c.started {
		c.started = true
		c.start = ts
		c.previous = ts
		return 0, nil
	}
	if ts.Video <= c.previous.Video {
		return 0, molrt.TimingAnomaly(op, "vsync timestamp %d not after %d", ts.Video, c.previous.Video)
	}
	if (ts.Video-c.start.Video)%c.RefreshPeriod != 0 {
		return 0, molrt.TimingAnomaly(op, "vsync timestamp %d is not divisible by refresh period %d", ts.Video-c.start.Video, c.RefreshPeriod)
	}
	elapsed := (ts.Video - c.previous.Video) / c.RefreshPeriod
	c.previous = ts
	c.frames += elapsed
	return elapsed, nil
}

// Frames is the number of refresh periods since the first timestamp.
func (c *Clock) Frames() int64 { return c.frames }

// Seconds is the animation time since the first timestamp.
func (c *Clock) Seconds() float64 {
	return float64(c.frames*c.RefreshPeriod) / float64(c.TicksPerSecond)
}

// Quantize snaps a wall-clock time to the nearest vsync tick of a display with
// the given refresh rate. Hosts without integer video timestamps use it to feed
// Advance.
func Quantize(seconds float64, refreshRate int, ticksPerSecond int64) VsyncTimestamp {
	if refreshRate <= 0 {
		refreshRate = 60
	}
	period := ticksPerSecond / int64(refreshRate)
	n := int64(math.Round(seconds * float64(refreshRate)))
	return VsyncTimestamp{Video: n * period}
}

// VsyncSource synthesizes vsync timestamps for hosts that only expose a wall
// clock. A frame landing on a refresh period that was already used moves to
// the next period and is counted in Collisions. Its output is always aligned
// and increasing, so a Clock fed from it never reports a TimingAnomaly.
type VsyncSource struct {
	RefreshRate    int
	TicksPerSecond int64
	Collisions     int

	started bool
	last    int64
}

// Period is the refresh period in ticks.
func (s *VsyncSource) Period() int64 {
	rate := s.RefreshRate
	if rate <= 0 {
		rate = 60
	}
	return s.TicksPerSecond / int64(rate)
}

func (s *VsyncSource) Next(seconds float64) VsyncTimestamp {
	ts := Quantize(seconds, s.RefreshRate, s.TicksPerSecond)
	if s.started && ts.Video <= s.last {
		ts.Video = s.last + s.Period()
		s.Collisions++
	}
	s.started = true
	s.last = ts.Video
	return ts
}
