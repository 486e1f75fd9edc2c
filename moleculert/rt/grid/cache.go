package grid

import (
	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/core"
	"github.com/gekko3d/molrt/moleculert/rt/gpu"
)

// DefaultCompactionThreshold is the number of consecutive duplicate frames
// after which the cached index is compacted.
const DefaultCompactionThreshold = 3

type State int

const (
	StateDirty State = iota
	StateCached
	StatePendingCompaction
	StateCompacted
)

func (s State) String() string {
	switch s {
	case StateDirty:
		return "dirty"
	case StateCached:
		return "cached"
	case StatePendingCompaction:
		return "pending-compaction"
	case StateCompacted:
		return "compacted"
	}
	return "unknown"
}

// Result describes what Prepare did for one frame.
type Result struct {
	Index      *Index
	Rebuilt    bool
	Compacted  bool
	State      State
	Duplicates int
}

// FrameCache skips index rebuilds for frames identical to the previous one
// and compacts the index once a duplicate streak reaches the threshold.
type FrameCache struct {
	builder   *Builder
	threshold int
	buildOnce bool
	logger    molrt.Logger

	atoms      []core.Atom
	styles     []core.AtomStyle
	index      *Index
	duplicates int
	compacted  bool
	state      State

	// retired compacted indices; released at the next flush.
	retired []*Index
}

func NewFrameCache(builder *Builder, threshold int, logger molrt.Logger) *FrameCache {
	if threshold < 1 {
		threshold = DefaultCompactionThreshold
	}
	return &FrameCache{
		builder:   builder,
		threshold: threshold,
		logger:    molrt.OrNop(logger),
	}
}

// SetBuildOnce makes every frame after the first reuse the first index.
func (c *FrameCache) SetBuildOnce(enabled bool) { c.buildOnce = enabled }

func (c *FrameCache) State() State      { return c.state }
func (c *FrameCache) Duplicates() int   { return c.duplicates }
func (c *FrameCache) Index() *Index     { return c.index }
func (c *FrameCache) Threshold() int    { return c.threshold }
func (c *FrameCache) Builder() *Builder { return c.builder }

func (c *FrameCache) identical(atoms []core.Atom, styles []core.AtomStyle) bool {
	if c.index == nil {
		return false
	}
	if c.buildOnce {
		return true
	}
	return core.AtomsEqual(c.atoms, atoms) && core.StylesEqual(c.styles, styles)
}

// Prepare returns the index for this frame, recording a rebuild into list when
// the frame differs from the previous one.
func (c *FrameCache) Prepare(list gpu.CommandList, atoms []core.Atom, styles []core.AtomStyle) (Result, error) {
	if !c.identical(atoms, styles) {
		c.state = StateDirty
		ix, err := c.builder.Build(list, atoms, styles)
		if err != nil {
			return Result{}, err
		}
		if c.index != nil && c.index.Compacted {
			c.retired = append(c.retired, c.index)
		}
		c.index = ix
		c.atoms = append(c.atoms[:0], atoms...)
		c.styles = append(c.styles[:0], styles...)
		c.duplicates = 0
		c.compacted = false
		c.state = StateCached
		return Result{Index: ix, Rebuilt: true, State: c.state}, nil
	}

	c.duplicates++
	res := Result{Index: c.index, State: c.state, Duplicates: c.duplicates}
	if c.duplicates < c.threshold || c.compacted {
		return res, nil
	}

	c.state = StatePendingCompaction
	compact, err := c.builder.Compact(c.index)
	if err != nil {
		return Result{}, err
	}
	// Compact flushed the device, so nothing in flight still reads retired
	// buffers.
	c.releaseRetired()
	c.index = compact
	c.compacted = true
	c.state = StateCompacted
	c.logger.Debugf("cache: compacted after %d duplicate frames", c.duplicates)

	res.Index = compact
	res.Compacted = true
	res.State = c.state
	return res, nil
}

func (c *FrameCache) releaseRetired() {
	for _, ix := range c.retired {
		ix.Release()
	}
	c.retired = nil
}

// Release frees compacted buffers. The device must be idle.
func (c *FrameCache) Release() {
	c.releaseRetired()
	if c.index != nil {
		c.index.Release()
	}
}
