package triage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"
)

// MaxTitleLen bounds ParsedTicket.Title, in characters.
const MaxTitleLen = 200

// Status tracks where a submitted report is in its lifecycle.
type Status string

const (
	// StatusPending means created, not yet started
	StatusPending Status = "pending"

	// StatusInProgress means the pipeline is running
	StatusInProgress Status = "in_progress"

	// StatusComplete means the pipeline reached a non-error decision
	StatusComplete Status = "complete"

	// StatusFailed means the pipeline terminated with DecisionError
	StatusFailed Status = "failed"
)

// Decision is the terminal outcome of a pipeline run. Exactly one is set on
// every completed Record.
type Decision string

const (
	DecisionCreateTicket       Decision = "create_ticket"
	DecisionDuplicate          Decision = "duplicate"
	DecisionNeedsClarification Decision = "needs_clarification"
	DecisionError              Decision = "error"
)

// InputType describes the medium the raw report arrived in.
type InputType string

const (
	InputText  InputType = "text"
	InputVoice InputType = "voice"
	InputImage InputType = "image"
)

// ParsedTicket is the structured output of the extraction collaborator.
type ParsedTicket struct {
	Title               string `json:"title"`
	Description         string `json:"description"`
	Component           string `json:"component,omitempty"`
	StepsToReproduce    string `json:"steps_to_reproduce,omitempty"`
	Environment         string `json:"environment,omitempty"`
	ReporterContext     string `json:"reporter_context,omitempty"`
	IsValid             bool   `json:"is_valid"`
	ClarificationReason string `json:"clarification_reason,omitempty"`
}

// Validate checks the title bound and that a clarification reason is present
// if and only if the ticket is invalid.
func (p *ParsedTicket) Validate() error {
	var errs []error
	if n := utf8.RuneCountInString(p.Title); n > MaxTitleLen {
		errs = append(errs, fmt.Errorf("title is %d characters (max %d)", n, MaxTitleLen))
	}
	if p.IsValid && p.ClarificationReason != "" {
		errs = append(errs, errors.New("valid ticket carries a clarification reason"))
	}
	if !p.IsValid && p.ClarificationReason == "" {
		errs = append(errs, errors.New("invalid ticket is missing a clarification reason"))
	}
	return errors.Join(errs...)
}

// Classification is the output of the classification collaborator.
type Classification struct {
	Severity   Severity  `json:"severity"`
	Priority   Priority  `json:"priority"`
	IssueType  IssueType `json:"issue_type"`
	Labels     []string  `json:"labels"`
	Confidence float64   `json:"confidence"`
}

// Validate rejects unknown enum values and out-of-range confidence.
func (c *Classification) Validate() error {
	var errs []error
	if !c.Severity.Valid() {
		errs = append(errs, fmt.Errorf("unknown severity %q", c.Severity))
	}
	if !c.Priority.Valid() {
		errs = append(errs, fmt.Errorf("unknown priority %q", c.Priority))
	}
	if !c.IssueType.Valid() {
		errs = append(errs, fmt.Errorf("unknown issue type %q", c.IssueType))
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		errs = append(errs, fmt.Errorf("confidence %v outside [0,1]", c.Confidence))
	}
	return errors.Join(errs...)
}

// DedupVerdict is the outcome of duplicate detection. MatchID, MatchTitle and
// Score are only set when IsDuplicate is true.
type DedupVerdict struct {
	IsDuplicate bool     `json:"is_duplicate"`
	MatchID     string   `json:"similar_ticket_id,omitempty"`
	MatchTitle  string   `json:"similar_ticket_title,omitempty"`
	Score       *float64 `json:"similarity_score,omitempty"`
}

// TeamAssignment names the owning team for a classified ticket.
type TeamAssignment struct {
	Team          string   `json:"team"`
	Assignee      string   `json:"assignee"`
	Reasoning     string   `json:"reasoning"`
	MatchedSkills []string `json:"matched_skills"`
	Score         float64  `json:"score"`
	Fallback      bool     `json:"fallback,omitempty"`
}

// Record is the state threaded through one pipeline run. Fields are filled
// in by stages and never cleared; Trace only grows.
type Record struct {
	ID             string           `json:"id"`
	RawInput       string           `json:"raw_input"`
	InputType      InputType        `json:"input_type"`
	NormalizedText string           `json:"normalized_text,omitempty"`
	Parsed         *ParsedTicket    `json:"parsed_ticket,omitempty"`
	Dedup          *DedupVerdict    `json:"dedup_result,omitempty"`
	Classification *Classification  `json:"labeled_ticket,omitempty"`
	Assignment     *TeamAssignment  `json:"team_assignment,omitempty"`
	Payload        *OutboundPayload `json:"outbound_payload,omitempty"`
	Decision       Decision         `json:"decision"`
	Error          string           `json:"error,omitempty"`
	Trace          []string         `json:"trace"`
}

// Result is a persisted submission: the pipeline record plus lifecycle data.
type Result struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	Decision    Decision  `json:"decision,omitempty"`
	Record      *Record   `json:"record,omitempty"`
	IssueKey    string    `json:"issue_key,omitempty"`
	IssueURL    string    `json:"issue_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Duration    float64   `json:"duration_seconds,omitempty"`
}

// Clone returns a deep copy via JSON so stores never share state with callers.
func (r *Result) Clone() *Result {
	b, err := json.Marshal(r)
	if err != nil {
		cp := *r
		return &cp
	}
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		cp := *r
		return &cp
	}
	return &out
}
