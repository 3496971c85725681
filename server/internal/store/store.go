package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/focustrack/focustrack/pkg/types"
)

// ErrInvalidReport is returned by Submit for reports that violate the
// structural invariants checked by types.SessionReport.Validate.
var ErrInvalidReport = errors.New("store: invalid report")

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// Record is a stored report together with its row id and storage time.
type Record struct {
	ID       int64
	Report   *types.SessionReport
	StoredAt time.Time
}

// Store is a SQLite-backed report store. It is safe for concurrent use.
type Store struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the database at path and applies the
// schema. retention of zero keeps reports forever.
func Open(path string, retention time.Duration) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite has a single writer, and every connection to ":memory:" is a
	// separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := &Store{db: db, retention: retention, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS reports (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id         TEXT    NOT NULL UNIQUE,
		learner            TEXT    NOT NULL,
		class_id           INTEGER NOT NULL,
		course_id          INTEGER NOT NULL,
		started_at         INTEGER NOT NULL,
		ended_at           INTEGER NOT NULL,
		total_duration_sec INTEGER NOT NULL,
		intervals          TEXT    NOT NULL,
		stored_at          INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_subject
		ON reports(learner, class_id, course_id, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_reports_stored_at ON reports(stored_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Submit validates and stores r. A report without a session id is assigned
// one; a report whose session id is already stored replaces it. The
// returned Record carries the assigned id and session id.
func (s *Store) Submit(ctx context.Context, r *types.SessionReport) (*Record, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}

	cp := *r
	if cp.SessionID == "" {
		cp.SessionID = uuid.NewString()
	}
	if cp.Intervals == nil {
		cp.Intervals = []types.IntervalSummary{}
	}
	ivs, err := json.Marshal(cp.Intervals)
	if err != nil {
		return nil, fmt.Errorf("store: encode intervals: %w", err)
	}
	storedAt := s.now()

	const query = `
	INSERT INTO reports (session_id, learner, class_id, course_id, started_at, ended_at,
		total_duration_sec, intervals, stored_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		learner = excluded.learner,
		class_id = excluded.class_id,
		course_id = excluded.course_id,
		started_at = excluded.started_at,
		ended_at = excluded.ended_at,
		total_duration_sec = excluded.total_duration_sec,
		intervals = excluded.intervals,
		stored_at = excluded.stored_at
	RETURNING id`

	var id int64
	err = s.db.QueryRowContext(ctx, query,
		cp.SessionID,
		cp.Subject.Learner, cp.Subject.ClassID, cp.Subject.CourseID,
		cp.StartedAtMs, cp.EndedAtMs, cp.TotalDurationSec,
		string(ivs),
		storedAt.UnixMilli(),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("store: submit %s: %w", cp.SessionID, err)
	}

	return &Record{ID: id, Report: &cp, StoredAt: storedAt}, nil
}

// Latest returns the most recently started report for subject, or nil when
// the subject has none.
func (s *Store) Latest(ctx context.Context, subject types.SubjectRef) (*Record, error) {
	recs, err := s.List(ctx, subject, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// List returns up to limit reports for subject, most recently started first.
// A non-positive limit uses the default of 20.
func (s *Store) List(ctx context.Context, subject types.SubjectRef, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	const query = `
	SELECT id, session_id, learner, class_id, course_id, started_at, ended_at,
		total_duration_sec, intervals, stored_at
	FROM reports
	WHERE learner = ? AND class_id = ? AND course_id = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, subject.Learner, subject.ClassID, subject.CourseID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", subject.Key(), err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list %s: %w", subject.Key(), err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list %s: %w", subject.Key(), err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec      Record
		r        types.SessionReport
		ivs      string
		storedAt int64
	)
	err := rows.Scan(&rec.ID, &r.SessionID,
		&r.Subject.Learner, &r.Subject.ClassID, &r.Subject.CourseID,
		&r.StartedAtMs, &r.EndedAtMs, &r.TotalDurationSec,
		&ivs, &storedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ivs), &r.Intervals); err != nil {
		return nil, fmt.Errorf("decode intervals of %s: %w", r.SessionID, err)
	}
	rec.Report = &r
	rec.StoredAt = time.UnixMilli(storedAt)
	return &rec, nil
}

// Count returns the total number of stored reports.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Evict deletes reports stored at or before now minus the retention and
// returns how many were removed. It is a no-op when retention is zero.
func (s *Store) Evict(ctx context.Context, now time.Time) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-s.retention).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE stored_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: evict: %w", err)
	}
	return res.RowsAffected()
}

// Run starts the background retention loop, evicting every interval. Run
// blocks until ctx is cancelled. It returns immediately when retention is
// zero.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := s.Evict(ctx, now)
			if err != nil {
				slog.Warn("store: eviction failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Debug("store: evicted expired reports", "count", n)
			}
		}
	}
}
