package eval

import (
	"math"
	"strings"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Scored dimensions, in report order.
const (
	DimDecision      = "decision"
	DimSeverity      = "severity"
	DimPriority      = "priority"
	DimIssueType     = "issue_type"
	DimTeam          = "team"
	DimIsValid       = "is_valid"
	DimIsDuplicate   = "is_duplicate"
	DimLabelCoverage = "label_coverage"
)

// Dimensions lists every scored dimension in report order.
var Dimensions = []string{
	DimDecision, DimSeverity, DimPriority, DimIssueType,
	DimTeam, DimIsValid, DimIsDuplicate, DimLabelCoverage,
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Scores    map[string]bool `json:"scores"`
	AllPassed bool            `json:"all_passed"`
	LatencyS  float64         `json:"latency_s"`
	Decision  triage.Decision `json:"decision"`
	Trace     []string        `json:"trace"`
}

// Failed returns the dimensions that scored false, in report order.
func (r CaseResult) Failed() []string {
	var out []string
	for _, d := range Dimensions {
		if ok, scored := r.Scores[d]; scored && !ok {
			out = append(out, d)
		}
	}
	return out
}

// Score compares a pipeline record against a case's expectations. A
// dimension is only scored when the case expects it and the record reached
// the stage that produces it. A case with no scored dimension does not pass.
func Score(c Case, rec *triage.Record, latencySeconds float64) CaseResult {
	exp := c.Expected
	scores := make(map[string]bool)

	if exp.Decision != nil {
		scores[DimDecision] = rec.Decision == *exp.Decision
	}
	if exp.IsValid != nil && rec.Parsed != nil {
		scores[DimIsValid] = rec.Parsed.IsValid == *exp.IsValid
	}
	if exp.IsDuplicate != nil && rec.Dedup != nil {
		scores[DimIsDuplicate] = rec.Dedup.IsDuplicate == *exp.IsDuplicate
	}
	if cls := rec.Classification; cls != nil {
		if exp.Severity != nil {
			scores[DimSeverity] = cls.Severity == *exp.Severity
		}
		if exp.Priority != nil {
			scores[DimPriority] = cls.Priority == *exp.Priority
		}
		if exp.IssueType != nil {
			scores[DimIssueType] = cls.IssueType == *exp.IssueType
		}
		if exp.LabelsShouldContain != nil {
			scores[DimLabelCoverage] = containsAllFold(cls.Labels, exp.LabelsShouldContain)
		}
	}
	if exp.Team != nil && rec.Assignment != nil {
		scores[DimTeam] = rec.Assignment.Team == *exp.Team
	}

	all := len(scores) > 0
	for _, ok := range scores {
		all = all && ok
	}

	return CaseResult{
		ID:        c.ID,
		Category:  c.Category,
		Scores:    scores,
		AllPassed: all,
		LatencyS:  round(latencySeconds, 2),
		Decision:  rec.Decision,
		Trace:     rec.Trace,
	}
}

// containsAllFold reports whether every want label is in have, ignoring case.
func containsAllFold(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, l := range have {
		set[strings.ToLower(l)] = struct{}{}
	}
	for _, l := range want {
		if _, ok := set[strings.ToLower(l)]; !ok {
			return false
		}
	}
	return true
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
