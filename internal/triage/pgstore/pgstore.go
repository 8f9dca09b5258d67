// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists submissions in PostgreSQL. The pipeline record is kept as
// JSONB next to the lifecycle columns.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const resultColumns = `id, fingerprint, status, decision, record, issue_key, issue_url, created_at, completed_at, duration_s`

// Get retrieves a submission by ID.
func (s *Store) Get(ctx context.Context, id string) (*triage.Result, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	r, err := scanResult(s.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM triage_results WHERE id = $1`, id))
	if err != nil {
		failSpan(span, err)
		return nil, false, err
	}
	return r, r != nil, nil
}

// GetByFingerprint retrieves the most recent submission for a fingerprint.
func (s *Store) GetByFingerprint(ctx context.Context, fingerprint string) (*triage.Result, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.GetByFingerprint", "SELECT")
	defer span.End()

	query := `SELECT ` + resultColumns + ` FROM triage_results
		WHERE fingerprint = $1 ORDER BY created_at DESC LIMIT 1`
	r, err := scanResult(s.pool.QueryRow(ctx, query, fingerprint))
	if err != nil {
		failSpan(span, err)
		return nil, false, err
	}
	return r, r != nil, nil
}

// Put inserts or updates a submission.
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	ctx, span := startSpan(ctx, "pgstore.Put", "UPSERT")
	defer span.End()
	span.SetAttributes(attribute.String("sentinel.triage.id", r.ID))

	var record []byte
	if r.Record != nil {
		b, err := json.Marshal(r.Record)
		if err != nil {
			failSpan(span, err)
			return fmt.Errorf("marshal record: %w", err)
		}
		record = b
	}

	var completedAt *time.Time
	if !r.CompletedAt.IsZero() {
		completedAt = &r.CompletedAt
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO triage_results (`+resultColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			fingerprint  = EXCLUDED.fingerprint,
			status       = EXCLUDED.status,
			decision     = EXCLUDED.decision,
			record       = EXCLUDED.record,
			issue_key    = EXCLUDED.issue_key,
			issue_url    = EXCLUDED.issue_url,
			completed_at = EXCLUDED.completed_at,
			duration_s   = EXCLUDED.duration_s`,
		r.ID, r.Fingerprint, string(r.Status), string(r.Decision), record,
		r.IssueKey, r.IssueURL, r.CreatedAt, completedAt, r.Duration,
	)
	if err != nil {
		failSpan(span, err)
		return fmt.Errorf("upsert triage result: %w", err)
	}
	return nil
}

// CountByDecision returns how many finished submissions reached each decision.
func (s *Store) CountByDecision(ctx context.Context) (map[triage.Decision]int, error) {
	ctx, span := startSpan(ctx, "pgstore.CountByDecision", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT decision, count(*) FROM triage_results WHERE decision <> '' GROUP BY decision`)
	if err != nil {
		failSpan(span, err)
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
			failSpan(span, err)
			return nil, fmt.Errorf("scan decision count: %w", err)
		}
		out[triage.Decision(decision)] = n
	}
	if err := rows.Err(); err != nil {
		failSpan(span, err)
		return nil, fmt.Errorf("iterate decision counts: %w", err)
	}
	return out, nil
}

// scanResult scans one row. Returns (nil, nil) when no row is found.
func scanResult(row pgx.Row) (*triage.Result, error) {
	var (
		r           triage.Result
		status      string
		decision    string
		record      []byte
		completedAt *time.Time
	)
	err := row.Scan(&r.ID, &r.Fingerprint, &status, &decision, &record,
		&r.IssueKey, &r.IssueURL, &r.CreatedAt, &completedAt, &r.Duration)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}

	r.Status = triage.Status(status)
	r.Decision = triage.Decision(decision)
	if completedAt != nil {
		r.CompletedAt = *completedAt
	}
	if len(record) > 0 {
		r.Record = &triage.Record{}
		if err := json.Unmarshal(record, r.Record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
	}
	return &r, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
