// Package report persists per-frame timing reports across sessions.
package report

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/gekko3d/molrt"
	"github.com/gekko3d/molrt/moleculert/rt/render"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	device     TEXT NOT NULL,
	descriptor TEXT NOT NULL,
	started    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS frame_reports (
	session     TEXT NOT NULL REFERENCES sessions(id),
	frame_id    INTEGER NOT NULL,
	sizing_ns   INTEGER NOT NULL,
	copying_ns  INTEGER NOT NULL,
	geometry_ns INTEGER NOT NULL,
	render_ns   INTEGER NOT NULL,
	rebuilt     INTEGER NOT NULL,
	compacted   INTEGER NOT NULL,
	atoms       INTEGER NOT NULL,
	refs        INTEGER NOT NULL,
	PRIMARY KEY (session, frame_id)
) WITHOUT ROWID;
`

// Session describes one renderer run.
type Session struct {
	ID         uuid.UUID
	Device     string
	Descriptor molrt.RendererDescriptor
	Started    time.Time
}

// Store is a sqlite database of frame reports.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	logger molrt.Logger
}

func Open(path string, logger molrt.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open report db %s: %w", path, err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create report schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT OR REPLACE INTO frame_reports
		(session, frame_id, sizing_ns, copying_ns, geometry_ns, render_ns, rebuilt, compacted, atoms, refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, insert: insert, logger: molrt.OrNop(logger)}, nil
}

func (s *Store) Close() error {
	s.insert.Close()
	return s.db.Close()
}

// BeginSession registers a session before its frames are recorded.
func (s *Store) BeginSession(session Session) error {
	desc, err := sonnet.Marshal(session.Descriptor)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (id, device, descriptor, started) VALUES (?, ?, ?, ?)`,
		session.ID.String(), session.Device, string(desc), session.Started.UnixNano())
	if err != nil {
		return fmt.Errorf("begin session %s: %w", session.ID, err)
	}
	s.logger.Debugf("report: session %s on %s", session.ID, session.Device)
	return nil
}

// Record stores reports in one transaction.
func (s *Store) Record(session uuid.UUID, reports ...render.FrameReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt := tx.Stmt(s.insert)
	for _, r := range reports {
		if _, err := stmt.Exec(session.String(), r.FrameID,
			int64(r.SizingTime), int64(r.CopyingTime), int64(r.GeometryTime), int64(r.RenderTime),
			r.Rebuilt, r.Compacted, r.Atoms, int64(r.References)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record frame %d: %w", r.FrameID, err)
		}
	}
	return tx.Commit()
}

// Reports returns the stored reports of a session ordered by frame.
func (s *Store) Reports(session uuid.UUID) ([]render.FrameReport, error) {
	rows, err := s.db.Query(`SELECT frame_id, sizing_ns, copying_ns, geometry_ns, render_ns,
		rebuilt, compacted, atoms, refs FROM frame_reports WHERE session = ? ORDER BY frame_id`, session.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []render.FrameReport
	for rows.Next() {
		var r render.FrameReport
		var sizing, copying, geometry, rendering, refs int64
		if err := rows.Scan(&r.FrameID, &sizing, &copying, &geometry, &rendering,
			&r.Rebuilt, &r.Compacted, &r.Atoms, &refs); err != nil {
			return nil, err
		}
		r.SizingTime = time.Duration(sizing)
		r.CopyingTime = time.Duration(copying)
		r.GeometryTime = time.Duration(geometry)
		r.RenderTime = time.Duration(rendering)
		r.References = uint64(refs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sessions lists the recorded sessions, newest first.
func (s *Store) Sessions() ([]Session, error) {
	rows, err := s.db.Query(`SELECT id, device, descriptor, started FROM sessions ORDER BY started DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var id, device, desc string
		var started int64
		if err := rows.Scan(&id, &device, &desc, &started); err != nil {
			return nil, err
		}
		sess := Session{Device: device, Started: time.Unix(0, started)}
		if sess.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if err := sonnet.Unmarshal([]byte(desc), &sess.Descriptor); err != nil {
			return nil, fmt.Errorf("session %s descriptor: %w", id, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
