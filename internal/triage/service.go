package triage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrNotFound is returned when no submission has the requested ID.
	ErrNotFound = errors.New("triage result not found")

	// ErrNotTicket is returned when an issue is requested for a submission
	// whose decision is not create_ticket.
	ErrNotTicket = errors.New("triage result is not a ticket")

	// ErrNoTracker is returned when no tracker client is configured.
	ErrNoTracker = errors.New("issue tracker not configured")
)

// SubmitResult is the outcome of submitting a report for triage.
type SubmitResult struct {
	ID      string
	Skipped bool
	Reason  string
}

// Service is the business boundary for triage operations.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier
	tracker  Tracker

	wg sync.WaitGroup

	issueMu sync.Mutex
	issuing map[string]*issueLock
}

// issueLock serializes CreateIssue calls for one submission ID.
type issueLock struct {
	mu   sync.Mutex
	refs int
}

// NewService creates a new triage service. metrics, notifier and tracker may be nil.
func NewService(store Store, engine *Engine, logger log.Logger, metrics *Metrics, notifier Notifier, tracker Tracker) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		engine:   engine,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		tracker:  tracker,
	}
}

// Submit accepts a report for triage. Identical reports already pending or
// in progress are skipped; everything else is queued and run asynchronously.
func (s *Service) Submit(ctx context.Context, in Input) (*SubmitResult, error) {
	fp := Fingerprint(in.Text)

	// in-flight dedup: skip if the same report is already pending or in progress
	if existing, ok, err := s.store.GetByFingerprint(ctx, fp); err != nil {
		s.countSubmit("error")
		return nil, err
	} else if ok && (existing.Status == StatusPending || existing.Status == StatusInProgress) {
		s.countSubmit("skipped")
		return &SubmitResult{ID: existing.ID, Skipped: true, Reason: "already in progress"}, nil
	}

	id := ulid.Make().String()
	result := &Result{
		ID:          id,
		Fingerprint: fp,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}

	if err := s.store.Put(ctx, result); err != nil {
		s.countSubmit("error")
		return nil, err
	}
	s.countSubmit("accepted")

	// kick off async triage - pass only the ID to avoid sharing the Result pointer.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runTriage(context.WithoutCancel(ctx), id, in)
	}()

	return &SubmitResult{ID: id}, nil
}

// Get retrieves a triage result by ID.
func (s *Service) Get(ctx context.Context, id string) (*Result, bool, error) {
	return s.store.Get(ctx, id)
}

// CreateIssue hands a completed ticket's payload to the tracker and records
// the created issue. Calling it again for the same result returns the
// already-created issue. Concurrent calls for one ID are serialized within
// this process; separate replicas sharing a store are not coordinated.
func (s *Service) CreateIssue(ctx context.Context, id string) (*Result, error) {
	unlock := s.lockIssue(id)
	defer unlock()

	result, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if result.IssueKey != "" {
		return result, nil
	}
	if result.Decision != DecisionCreateTicket || result.Record == nil || result.Record.Payload == nil {
		return nil, ErrNotTicket
	}
	if s.tracker == nil {
		return nil, ErrNoTracker
	}

	ref, err := s.tracker.CreateIssue(ctx, result.Record.Payload)
	if err != nil {
		s.logger.Error(ctx, err, "failed to create tracker issue", "triage_id", id)
		return nil, err
	}

	result.IssueKey = ref.Key
	result.IssueURL = ref.URL
	if err := s.store.Put(ctx, result); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "tracker issue created", "triage_id", id, "issue_key", ref.Key)
	return result, nil
}

func (s *Service) lockIssue(id string) func() {
	s.issueMu.Lock()
	if s.issuing == nil {
		s.issuing = make(map[string]*issueLock)
	}
	l := s.issuing[id]
	if l == nil {
		l = &issueLock{}
		s.issuing[id] = l
	}
	l.refs++
	s.issueMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.issueMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.issuing, id)
		}
		s.issueMu.Unlock()
	}
}

// Stats returns submission counts per terminal decision.
func (s *Service) Stats(ctx context.Context) (map[Decision]int, error) {
	return s.store.CountByDecision(ctx)
}

// Wait blocks until all in-flight triage runs have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runTriage(ctx context.Context, id string, in Input) {
	L := s.logger.With("triage_id", id)

	result, err := s.pendingResult(ctx, id)
	if err != nil {
		L.Error(ctx, err, "failed to fetch result for triage")
		return
	}

	result.Status = StatusInProgress
	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to update status to in_progress")
		return
	}

	start := time.Now()
	rec := s.engine.Run(ctx, id, in)

	result.Record = rec
	result.Decision = rec.Decision
	result.Status = StatusComplete
	if rec.Decision == DecisionError {
		result.Status = StatusFailed
	}
	result.CompletedAt = time.Now()
	result.Duration = time.Since(start).Seconds()

	if err := s.store.Put(ctx, result); err != nil {
		L.Error(ctx, err, "failed to persist triage result")
	}

	if s.notifier != nil {
		if err := s.notifier.Send(ctx, result); err != nil {
			L.Error(ctx, err, "failed to send notification")
		}
	}

	L.Info(ctx, "triage complete",
		"status", result.Status,
		"decision", result.Decision,
		"duration", result.Duration,
	)
}

// pendingResult loads the stored submission a run is about to work on.
func (s *Service) pendingResult(ctx context.Context, id string) (*Result, error) {
	result, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return result, nil
}

func (s *Service) countSubmit(outcome string) {
	if s.metrics != nil {
		s.metrics.SubmitsTotal.WithLabelValues(outcome).Inc()
	}
}

// Fingerprint identifies a report by its normalized, case-folded text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(Normalize(text))))
	return hex.EncodeToString(sum[:16])
}
