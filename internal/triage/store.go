package triage

import "context"

// Store is the persistence interface for submissions.
type Store interface {
	Get(ctx context.Context, id string) (*Result, bool, error)

	// GetByFingerprint returns the most recently created submission for fingerprint.
	GetByFingerprint(ctx context.Context, fingerprint string) (*Result, bool, error)

	Put(ctx context.Context, result *Result) error

	// CountByDecision counts submissions per terminal decision. Submissions
	// still running are not counted.
	CountByDecision(ctx context.Context) (map[Decision]int, error)
}
