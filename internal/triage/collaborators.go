package triage

import "context"

// Extractor turns normalized report text into a ParsedTicket. Implementations
// must honor the validity/clarification-reason invariant; the intake stage
// re-checks it and treats a violation as a failure.
type Extractor interface {
	Extract(ctx context.Context, text string) (*ParsedTicket, error)
}

// Classifier assigns severity, priority, type and labels to a valid ticket.
type Classifier interface {
	Classify(ctx context.Context, ticket *ParsedTicket) (*Classification, error)
}

// Searcher returns up to k nearest prior tickets for query, best match first.
// It must be safe for concurrent use; the pipeline only reads from it.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Candidate, error)
}

// Tracker creates issues in the external tracker from an outbound payload.
type Tracker interface {
	CreateIssue(ctx context.Context, payload *OutboundPayload) (*IssueRef, error)
}

// IssueRef identifies an issue created in the tracker.
type IssueRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Notifier is called after a submission finishes. Failures are logged, not retried.
type Notifier interface {
	Send(ctx context.Context, result *Result) error
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, text string) (*ParsedTicket, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, text string) (*ParsedTicket, error) {
	return f(ctx, text)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, ticket *ParsedTicket) (*Classification, error)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(ctx context.Context, ticket *ParsedTicket) (*Classification, error) {
	return f(ctx, ticket)
}

// SearcherFunc adapts a function to Searcher.
type SearcherFunc func(ctx context.Context, query string, k int) ([]Candidate, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, query string, k int) ([]Candidate, error) {
	return f(ctx, query, k)
}
