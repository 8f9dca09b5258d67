package triage

import (
	"context"
	"fmt"
	"strings"
)

// StageName identifies a pipeline stage.
type StageName string

const (
	StageIntake   StageName = "intake"
	StageDedup    StageName = "dedup"
	StageClassify StageName = "classify"
	StageRoute    StageName = "route"
)

// Update is the partial record a stage returns. Zero-valued fields are left
// untouched on merge. A non-nil Err terminates the run with DecisionError.
type Update struct {
	NormalizedText string
	Parsed         *ParsedTicket
	Dedup          *DedupVerdict
	Classification *Classification
	Assignment     *TeamAssignment
	Payload        *OutboundPayload
	Trace          string
	Err            error

	// Similarity is the best candidate's similarity when the dedup stage saw
	// any candidates. It feeds metrics only.
	Similarity *float64
}

// Stage is one processing step. Run receives a copy of the record and must
// not modify anything reachable from it.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, rec Record) Update
}

// IntakeStage normalizes the raw input and extracts a ParsedTicket.
type IntakeStage struct {
	Extractor Extractor
}

// Name implements Stage.
func (s *IntakeStage) Name() StageName { return StageIntake }

// Run implements Stage.
func (s *IntakeStage) Run(ctx context.Context, rec Record) Update {
	if rec.InputType != "" && rec.InputType != InputText {
		err := fmt.Errorf("unsupported input type %q", rec.InputType)
		return Update{Err: err, Trace: "INTAKE ERROR: " + err.Error()}
	}

	text := rec.NormalizedText
	if text == "" {
		text = Normalize(rec.RawInput)
	}

	if text == "" {
		parsed := &ParsedTicket{IsValid: false, ClarificationReason: "empty report"}
		return Update{Parsed: parsed, Trace: "INTAKE: Needs clarification: empty report"}
	}

	parsed, err := s.Extractor.Extract(ctx, text)
	if err == nil && parsed == nil {
		err = fmt.Errorf("extractor returned no ticket")
	}
	if err == nil {
		err = parsed.Validate()
	}
	if err != nil {
		err = fmt.Errorf("intake: %w", err)
		return Update{NormalizedText: text, Err: err, Trace: "INTAKE ERROR: " + err.Error()}
	}

	trace := fmt.Sprintf("INTAKE: Parsed as '%s'", parsed.Title)
	if !parsed.IsValid {
		trace = "INTAKE: Needs clarification: " + parsed.ClarificationReason
	}
	return Update{NormalizedText: text, Parsed: parsed, Trace: trace}
}

// DedupStage checks the similarity index for an existing matching ticket.
type DedupStage struct {
	Searcher  Searcher
	Threshold float64
	TopK      int
}

// Name implements Stage.
func (s *DedupStage) Name() StageName { return StageDedup }

// Run implements Stage.
func (s *DedupStage) Run(ctx context.Context, rec Record) Update {
	if rec.Parsed == nil || !rec.Parsed.IsValid {
		return Update{Dedup: &DedupVerdict{IsDuplicate: false}, Trace: "DEDUP: Skipped (invalid ticket)"}
	}

	k := s.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	candidates, err := s.Searcher.Search(ctx, DedupQuery(rec.Parsed), k)
	if err != nil {
		err = fmt.Errorf("dedup search: %w", err)
		return Update{Err: err, Trace: "DEDUP ERROR: " + err.Error()}
	}

	outcome, err := DecideDuplicate(candidates, s.Threshold)
	if err != nil {
		err = fmt.Errorf("dedup: %w", err)
		return Update{Err: err, Trace: "DEDUP ERROR: " + err.Error()}
	}

	verdict := outcome.Verdict
	return Update{Dedup: &verdict, Similarity: outcome.Closest, Trace: outcome.TraceMessage()}
}

// ClassifyStage labels a valid ticket.
type ClassifyStage struct {
	Classifier Classifier
}

// Name implements Stage.
func (s *ClassifyStage) Name() StageName { return StageClassify }

// Run implements Stage.
func (s *ClassifyStage) Run(ctx context.Context, rec Record) Update {
	if rec.Parsed == nil {
		err := fmt.Errorf("classify: no parsed ticket")
		return Update{Err: err, Trace: "LABELER ERROR: " + err.Error()}
	}

	cls, err := s.Classifier.Classify(ctx, rec.Parsed)
	if err == nil && cls == nil {
		err = fmt.Errorf("classifier returned no classification")
	}
	if err == nil {
		err = cls.Validate()
	}
	if err != nil {
		err = fmt.Errorf("classify: %w", err)
		return Update{Err: err, Trace: "LABELER ERROR: " + err.Error()}
	}

	return Update{
		Classification: cls,
		Trace: fmt.Sprintf("LABELER: %s/%s (%s) confidence=%.2f",
			cls.Severity, cls.Priority, cls.IssueType, cls.Confidence),
	}
}

// RouteStage assigns a team and builds the outbound payload.
type RouteStage struct {
	Router *Router
}

// Name implements Stage.
func (s *RouteStage) Name() StageName { return StageRoute }

// Run implements Stage.
func (s *RouteStage) Run(_ context.Context, rec Record) Update {
	if rec.Parsed == nil || rec.Classification == nil {
		err := fmt.Errorf("route: ticket is not parsed and classified")
		return Update{Err: err, Trace: "ROUTER ERROR: " + err.Error()}
	}

	a, payload := s.Router.Route(rec.Parsed, rec.Classification)
	return Update{
		Assignment: &a,
		Payload:    &payload,
		Trace:      fmt.Sprintf("ROUTER: Assigned to %s (%s): %s", a.Team, a.Assignee, a.Reasoning),
	}
}

// DedupQuery is the text sent to the similarity index for a ticket.
func DedupQuery(p *ParsedTicket) string {
	return p.Title + ". " + p.Description
}

// Normalize trims the input and collapses runs of whitespace.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
