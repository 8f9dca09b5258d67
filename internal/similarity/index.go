package similarity

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Index is a searchable prior-ticket corpus. Search results are ordered
// best match first with cosine-style distances in [0,1].
type Index interface {
	triage.Searcher

	// Add inserts tickets, replacing any with the same ID.
	Add(ctx context.Context, tickets []Ticket) error

	// Count returns the number of indexed tickets.
	Count(ctx context.Context) (int, error)
}

// Seed loads tickets into idx unless it already holds at least as many
// documents as the seed set. It reports whether anything was written.
func Seed(ctx context.Context, idx Index, tickets []Ticket, logger log.Logger) (bool, error) {
	if logger == nil {
		logger = log.Nop()
	}

	n, err := idx.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count index: %w", err)
	}
	if n >= len(tickets) {
		logger.Info(ctx, "similarity index already seeded", "indexed", n, "seed", len(tickets))
		return false, nil
	}

	if err := idx.Add(ctx, tickets); err != nil {
		return false, fmt.Errorf("seed index: %w", err)
	}
	logger.Info(ctx, "similarity index seeded", "previous", n, "seed", len(tickets))
	return true, nil
}
