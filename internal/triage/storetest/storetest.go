// Package storetest holds behavior checks shared by every triage.Store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Factory returns an empty store. Stores backed by shared databases should
// namespace IDs with prefix so parallel runs do not collide.
type Factory func(t *testing.T) triage.Store

// CompletedResult returns a fully populated create_ticket result.
func CompletedResult(id, fp string) *triage.Result {
	created := time.Now().UTC().Truncate(time.Millisecond)
	return &triage.Result{
		ID:          id,
		Fingerprint: fp,
		Status:      triage.StatusComplete,
		Decision:    triage.DecisionCreateTicket,
		Record: &triage.Record{
			ID:             id,
			RawInput:       "Checkout page crashes on Safari",
			InputType:      triage.InputText,
			NormalizedText: "Checkout page crashes on Safari",
			Parsed: &triage.ParsedTicket{
				Title:       "Checkout crashes on Safari",
				Description: "The checkout page crashes in Safari.",
				Component:   "checkout",
				IsValid:     true,
			},
			Dedup: &triage.DedupVerdict{IsDuplicate: false},
			Classification: &triage.Classification{
				Severity:   triage.SeverityHigh,
				Priority:   triage.PriorityP1,
				IssueType:  triage.IssueBug,
				Labels:     []string{"checkout", "safari"},
				Confidence: 0.9,
			},
			Assignment: &triage.TeamAssignment{
				Team:          "payments",
				Assignee:      "alice_payments",
				Reasoning:     "Matched skills: checkout. Team capacity: 5.",
				MatchedSkills: []string{"checkout"},
				Score:         1,
			},
			Payload: &triage.OutboundPayload{Fields: triage.IssueFields{
				Project:    triage.ProjectRef{Key: "ENG"},
				Summary:    "Checkout crashes on Safari",
				IssueType:  triage.NameRef{Name: "Bug"},
				Priority:   triage.NameRef{Name: "P1"},
				Labels:     []string{"checkout", "safari"},
				Assignee:   triage.AccountRef{AccountID: "alice_payments"},
				Components: []triage.NameRef{{Name: "checkout"}},
				Description: triage.Doc{Type: "doc", Version: 1, Content: []triage.DocNode{{
					Type:    "paragraph",
					Content: []triage.DocNode{{Type: "text", Text: "The checkout page crashes in Safari."}},
				}}},
			}},
			Decision: triage.DecisionCreateTicket,
			Trace:    []string{"INTAKE: Parsed as 'Checkout crashes on Safari'", "DEDUP: No similar tickets found"},
		},
		IssueKey:    "ENG-7",
		IssueURL:    "https://tracker.test/browse/ENG-7",
		CreatedAt:   created,
		CompletedAt: created.Add(1500 * time.Millisecond),
		Duration:    1.5,
	}
}

// Run exercises a Store implementation.
func Run(t *testing.T, prefix string, newStore Factory) {
	t.Helper()
	ctx := context.Background()
	id := func(s string) string { return prefix + s }

	t.Run("PutAndGet", func(t *testing.T) {
		s := newStore(t)
		want := CompletedResult(id("put-get"), id("fp-put-get"))
		if err := s.Put(ctx, want); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, ok, err := s.Get(ctx, want.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !ok {
			t.Fatal("expected result to be found")
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.Get(ctx, id("nonexistent"))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if ok {
			t.Fatal("expected ok=false for missing ID")
		}
		_, ok, err = s.GetByFingerprint(ctx, id("nonexistent"))
		if err != nil {
			t.Fatalf("GetByFingerprint: %v", err)
		}
		if ok {
			t.Fatal("expected ok=false for missing fingerprint")
		}
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		s := newStore(t)
		created := time.Now().UTC().Truncate(time.Millisecond)
		r := &triage.Result{ID: id("ow"), Fingerprint: id("fp-ow"), Status: triage.StatusPending, CreatedAt: created}
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
		r.Status = triage.StatusFailed
		r.Decision = triage.DecisionError
		r.Record = &triage.Record{ID: r.ID, Decision: triage.DecisionError, Error: "boom", Trace: []string{"INTAKE ERROR: boom"}}
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}

		got, _, err := s.Get(ctx, r.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != triage.StatusFailed || got.Record == nil || got.Record.Error != "boom" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("GetByFingerprintReturnsNewest", func(t *testing.T) {
		s := newStore(t)
		fp := id("fp-newest")
		older := &triage.Result{ID: id("older"), Fingerprint: fp, Status: triage.StatusComplete, CreatedAt: time.Now().Add(-time.Hour).UTC()}
		newer := &triage.Result{ID: id("newer"), Fingerprint: fp, Status: triage.StatusPending, CreatedAt: time.Now().UTC()}

		// write newer first so insertion order does not decide
		for _, r := range []*triage.Result{newer, older} {
			if err := s.Put(ctx, r); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}

		got, ok, err := s.GetByFingerprint(ctx, fp)
		if err != nil || !ok {
			t.Fatalf("GetByFingerprint: ok=%v err=%v", ok, err)
		}
		if got.ID != newer.ID {
			t.Errorf("ID = %q, want %q", got.ID, newer.ID)
		}
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		r := CompletedResult(id("copy"), id("fp-copy"))
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
		r.Record.Trace[0] = "mutated after put"

		got, _, _ := s.Get(ctx, r.ID)
		got.Record.Trace[1] = "mutated after get"

		again, _, _ := s.Get(ctx, r.ID)
		for _, line := range again.Record.Trace {
			if line == "mutated after put" || line == "mutated after get" {
				t.Fatalf("store shares state with callers: %v", again.Record.Trace)
			}
		}
	})

	t.Run("CountByDecision", func(t *testing.T) {
		s := newStore(t)
		before, err := s.CountByDecision(ctx)
		if err != nil {
			t.Fatalf("CountByDecision: %v", err)
		}

		dup := CompletedResult(id("count-dup"), id("fp-count-dup"))
		dup.Decision = triage.DecisionDuplicate
		pending := &triage.Result{ID: id("count-pending"), Fingerprint: id("fp-count-pending"), Status: triage.StatusPending, CreatedAt: time.Now().UTC()}
		for _, r := range []*triage.Result{dup, pending} {
			if err := s.Put(ctx, r); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}

		after, err := s.CountByDecision(ctx)
		if err != nil {
			t.Fatalf("CountByDecision: %v", err)
		}
		if got := after[triage.DecisionDuplicate] - before[triage.DecisionDuplicate]; got != 1 {
			t.Errorf("duplicate delta = %d, want 1", got)
		}
		if _, ok := after[""]; ok {
			t.Error("undecided submissions must not be counted")
		}
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		s := newStore(t)
		const n = 20

		var wg sync.WaitGroup
		for i := range n {
			rid := id(fmt.Sprintf("conc-%d", i))
			fp := id(fmt.Sprintf("fp-conc-%d", i))
			wg.Add(2)
			go func() {
				defer wg.Done()
				if err := s.Put(ctx, &triage.Result{ID: rid, Fingerprint: fp, Status: triage.StatusPending, CreatedAt: time.Now().UTC()}); err != nil {
					t.Errorf("Put: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				_, _, _ = s.Get(ctx, rid)
				_, _, _ = s.GetByFingerprint(ctx, fp)
			}()
		}
		wg.Wait()

		for i := range n {
			if _, ok, err := s.Get(ctx, id(fmt.Sprintf("conc-%d", i))); err != nil || !ok {
				t.Errorf("conc-%d: ok=%v err=%v", i, ok, err)
			}
		}
	})
}
