package report

import (
	"io"
	"time"

	"github.com/gekko3d/molrt/moleculert/rt/render"

	"github.com/sugawarayuuta/sonnet"
)

// Summary aggregates the reports of one session.
type Summary struct {
	Frames       int     `json:"frames"`
	Rebuilt      int     `json:"rebuilt"`
	Compacted    int     `json:"compacted"`
	MeanRenderMs float64 `json:"mean_render_ms"`
	MaxRenderMs  float64 `json:"max_render_ms"`
}

type Export struct {
	Session string               `json:"session"`
	Device  string               `json:"device"`
	Started time.Time            `json:"started"`
	Summary Summary              `json:"summary"`
	Reports []render.FrameReport `json:"reports"`
}

func Summarize(reports []render.FrameReport) Summary {
	var s Summary
	var total, longest time.Duration
	for _, r := range reports {
		s.Frames++
		if r.Rebuilt {
			s.Rebuilt++
		}
		if r.Compacted {
			s.Compacted++
		}
		total += r.RenderTime
		longest = max(longest, r.RenderTime)
	}
	if s.Frames > 0 {
		s.MeanRenderMs = float64(total.Microseconds()) / 1000 / float64(s.Frames)
	}
	s.MaxRenderMs = float64(longest.Microseconds()) / 1000
	return s
}

// ExportJSON writes a session and its reports as one JSON document.
func ExportJSON(w io.Writer, session Session, reports []render.FrameReport) error {
	doc := Export{
		Session: session.ID.String(),
		Device:  session.Device,
		Started: session.Started,
		Summary: Summarize(reports),
		Reports: reports,
	}
	if doc.Reports == nil {
		doc.Reports = []render.FrameReport{}
	}
	data, err := sonnet.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// ExportSession reads a session from the store and exports it.
func (s *Store) ExportSession(w io.Writer, session Session) error {
	reports, err := s.Reports(session.ID)
	if err != nil {
		return err
	}
	return ExportJSON(w, session, reports)
}
