// Package pgindex stores the similarity corpus in PostgreSQL and searches it
// with pg_trgm trigram distance.
package pgindex

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/sentinel/internal/similarity"
	"github.com/linnemanlabs/sentinel/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/similarity/pgindex")

//go:embed schema.sql
var schema string

// Index is a pg_trgm backed similarity.Index.
type Index struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Index, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Index{pool: pool}, nil
}

// Search returns up to k tickets ordered by trigram distance, which pg_trgm
// defines as 1 - similarity.
func (x *Index) Search(ctx context.Context, query string, k int) ([]triage.Candidate, error) {
	ctx, span := tracer.Start(ctx, "pgindex.Search", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.Int("sentinel.similarity.k", k),
	))
	defer span.End()

	if k <= 0 {
		return nil, nil
	}

	rows, err := x.pool.Query(ctx, `SELECT id, title, document <-> $1 AS distance
		FROM similar_tickets ORDER BY distance, id LIMIT $2`, query, k)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("search similar tickets: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (triage.Candidate, error) {
		var (
			c    triage.Candidate
			dist float32
		)
		err := row.Scan(&c.ID, &c.Title, &dist)
		c.Distance = float64(dist)
		return c, err
	})
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("scan similar tickets: %w", err)
	}
	span.SetAttributes(attribute.Int("sentinel.similarity.results", len(out)))
	return out, nil
}

// Add upserts tickets in one batch.
func (x *Index) Add(ctx context.Context, tickets []similarity.Ticket) error {
	ctx, span := tracer.Start(ctx, "pgindex.Add", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.Int("sentinel.similarity.tickets", len(tickets)),
	))
	defer span.End()

	if len(tickets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range tickets {
		batch.Queue(`INSERT INTO similar_tickets (id, title, description, component, severity, team, document)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (id) DO UPDATE SET
				title       = EXCLUDED.title,
				description = EXCLUDED.description,
				component   = EXCLUDED.component,
				severity    = EXCLUDED.severity,
				team        = EXCLUDED.team,
				document    = EXCLUDED.document,
				updated_at  = now()`,
			t.ID, t.Title, t.Description, t.Component, t.Severity, t.Team, t.Document())
	}
	if err := x.pool.SendBatch(ctx, batch).Close(); err != nil {
		fail(span, err)
		return fmt.Errorf("upsert similar tickets: %w", err)
	}
	return nil
}

// Count returns the number of indexed tickets.
func (x *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.pool.QueryRow(ctx, `SELECT count(*) FROM similar_tickets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count similar tickets: %w", err)
	}
	return n, nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
