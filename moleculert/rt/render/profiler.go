package render

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ReportHistory is the number of frame reports the profiler keeps.
const ReportHistory = 10

// Profiler scope names.
const (
	ScopeSizing   = "sizing"
	ScopeCopying  = "copying"
	ScopeGeometry = "geometry"
	ScopeRender   = "render"
)

// FrameReport is the CPU-side timing of one frame.
type FrameReport struct {
	FrameID      int           `json:"frame_id"`
	SizingTime   time.Duration `json:"sizing_ns"`
	CopyingTime  time.Duration `json:"copying_ns"`
	GeometryTime time.Duration `json:"geometry_ns"`
	RenderTime   time.Duration `json:"render_ns"`
	Rebuilt      bool          `json:"rebuilt"`
	Compacted    bool          `json:"compacted"`
	Atoms        int           `json:"atoms"`
	References   uint64        `json:"references"`
}

func (r FrameReport) Lines() []string {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	return []string{
		fmt.Sprintf("frame %d: %d atoms, %d refs", r.FrameID, r.Atoms, r.References),
		fmt.Sprintf("sizing %.2f ms  copying %.2f ms", ms(r.SizingTime), ms(r.CopyingTime)),
		fmt.Sprintf("geometry %.2f ms  render %.2f ms", ms(r.GeometryTime), ms(r.RenderTime)),
	}
}

type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string

	reports []FrameReport
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
		Order:      make([]string, 0),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	found := false
	for _, n := range p.Order {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) time.Duration {
	start, ok := p.StartTimes[name]
	if !ok {
		return 0
	}
	d := time.Since(start)
	p.Scopes[name] = d
	return d
}

// SetScope records a duration measured elsewhere.
func (p *Profiler) SetScope(name string, d time.Duration) {
	p.BeginScope(name)
	p.Scopes[name] = d
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

// Record appends a report, dropping the oldest beyond ReportHistory.
func (p *Profiler) Record(r FrameReport) {
	p.reports = append(p.reports, r)
	if len(p.reports) > ReportHistory {
		p.reports = p.reports[len(p.reports)-ReportHistory:]
	}
}

// Reports returns the retained reports, oldest first.
func (p *Profiler) Reports() []FrameReport {
	return append([]FrameReport(nil), p.reports...)
}

func (p *Profiler) Last() (FrameReport, bool) {
	if len(p.reports) == 0 {
		return FrameReport{}, false
	}
	return p.reports[len(p.reports)-1], true
}

// Stats formats the last scope timings, the counters and the averages over
// the retained reports.
func (p *Profiler) Stats() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		dur := p.Scopes[name]
		ms := float64(dur.Microseconds()) / 1000.0
		sb.WriteString(fmt.Sprintf("  %-15s: %.2f ms\n", name, ms))
	}

	sb.WriteString("\nStats:\n")
	keys := make([]string, 0, len(p.Counts))
	for k := range p.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("  %-15s: %d\n", k, p.Counts[k]))
	}

	if len(p.reports) > 0 {
		var total time.Duration
		rebuilt := 0
		for _, r := range p.reports {
			total += r.RenderTime
			if r.Rebuilt {
				rebuilt++
			}
		}
		avg := total / time.Duration(len(p.reports))
		sb.WriteString(fmt.Sprintf("\nLast %d frames: %.2f ms avg, %d rebuilt\n",
			len(p.reports), float64(avg.Microseconds())/1000.0, rebuilt))
	}
	return sb.String()
}
