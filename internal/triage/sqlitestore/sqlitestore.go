// Package sqlitestore provides a SQLite implementation of triage.Store for
// single-node deployments that want results to survive restarts without
// running PostgreSQL.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/linnemanlabs/sentinel/internal/triage"
)

const schema = `
CREATE TABLE IF NOT EXISTS triage_results (
	id           TEXT PRIMARY KEY,
	fingerprint  TEXT NOT NULL,
	status       TEXT NOT NULL,
	decision     TEXT NOT NULL DEFAULT '',
	record       TEXT,
	issue_key    TEXT NOT NULL DEFAULT '',
	issue_url    TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	completed_at INTEGER,
	duration_s   REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_triage_results_fp ON triage_results(fingerprint, created_at);
`

// Store persists submissions in a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. path may be ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer at a time; also keeps a :memory: database on one connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const resultColumns = `id, fingerprint, status, decision, record, issue_key, issue_url, created_at, completed_at, duration_s`

// Get retrieves a submission by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Result, bool, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM triage_results WHERE id = ?`, id))
	if err != nil {
		return nil, false, err
	}
	return r, r != nil, nil
}

// GetByFingerprint retrieves the most recent submission for a fingerprint.
func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*triage.Result, bool, error) {
	r, err := scanResult(s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM triage_results WHERE fingerprint = ? ORDER BY created_at DESC LIMIT 1`,
		fingerprint))
	if err != nil {
		return nil, false, err
	}
	return r, r != nil, nil
}

// Put inserts or updates a submission.
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	var record sql.NullString
	if r.Record != nil {
		b, err := json.Marshal(r.Record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		record = sql.NullString{String: string(b), Valid: true}
	}

	var completedAt sql.NullInt64
	if !r.CompletedAt.IsZero() {
		completedAt = sql.NullInt64{Int64: r.CompletedAt.UnixNano(), Valid: true}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", 10), ",")
	_, err := s.db.ExecContext(ctx, `INSERT INTO triage_results (`+resultColumns+`) VALUES (`+placeholders+`)
		ON CONFLICT(id) DO UPDATE SET
			fingerprint  = excluded.fingerprint,
			status       = excluded.status,
			decision     = excluded.decision,
			record       = excluded.record,
			issue_key    = excluded.issue_key,
			issue_url    = excluded.issue_url,
			completed_at = excluded.completed_at,
			duration_s   = excluded.duration_s`,
		r.ID, r.Fingerprint, string(r.Status), string(r.Decision), record,
		r.IssueKey, r.IssueURL, r.CreatedAt.UnixNano(), completedAt, r.Duration,
	)
	if err != nil {
		return fmt.Errorf("upsert triage result: %w", err)
	}
	return nil
}

// CountByDecision counts submissions per terminal decision.
func (s *Store) CountByDecision(ctx context.Context) (map[triage.Decision]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT decision, COUNT(*) FROM triage_results WHERE decision <> '' GROUP BY decision`)
	if err != nil {
		return nil, fmt.Errorf("count by decision: %w", err)
	}
	defer rows.Close()

	out := make(map[triage.Decision]int)
	for rows.Next() {
		var (
			decision string
			n        int
		)
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		out[triage.Decision(decision)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decision counts: %w", err)
	}
	return out, nil
}

// scanResult scans one row. Returns (nil, nil) when no row is found.
func scanResult(row *sql.Row) (*triage.Result, error) {
	var (
		r           triage.Result
		status      string
		decision    string
		record      sql.NullString
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Fingerprint, &status, &decision, &record,
		&r.IssueKey, &r.IssueURL, &createdAt, &completedAt, &r.Duration)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.Status = triage.Status(status)
	r.Decision = triage.Decision(decision)
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	if completedAt.Valid {
		r.CompletedAt = time.Unix(0, completedAt.Int64).UTC()
	}
	if record.Valid {
		r.Record = &triage.Record{}
		if err := json.Unmarshal([]byte(record.String), r.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
	}
	return &r, nil
}
