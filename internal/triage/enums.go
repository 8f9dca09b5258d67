package triage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Severity is ordered: critical > high > medium > low.
type Severity string

const (
	SeverityCritical Severity = "critical" // system down, data loss, security breach
	SeverityHigh     Severity = "high"     // major feature broken, no workaround
	SeverityMedium   Severity = "medium"   // feature broken, workaround exists
	SeverityLow      Severity = "low"      // minor or cosmetic
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns a comparable weight, higher is more severe. Unknown values rank 0.
func (s Severity) Rank() int { return severityRank[s] }

// UnmarshalJSON rejects unknown severities at the boundary.
func (s *Severity) UnmarshalJSON(b []byte) error {
	v, err := decodeEnum(b, "severity", func(x string) bool { return Severity(x).Valid() })
	if err != nil {
		return err
	}
	*s = Severity(v)
	return nil
}

// Priority is ordered: P0 (drop everything) through P3 (eventually).
type Priority string

const (
	PriorityP0 Priority = "P0"
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

var priorityRank = map[Priority]int{
	PriorityP0: 4,
	PriorityP1: 3,
	PriorityP2: 2,
	PriorityP3: 1,
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Rank returns a comparable weight, higher is more urgent. Unknown values rank 0.
func (p Priority) Rank() int { return priorityRank[p] }

// UnmarshalJSON rejects unknown priorities at the boundary.
func (p *Priority) UnmarshalJSON(b []byte) error {
	v, err := decodeEnum(b, "priority", func(x string) bool { return Priority(strings.ToUpper(x)).Valid() })
	if err != nil {
		return err
	}
	*p = Priority(strings.ToUpper(v))
	return nil
}

// IssueType is the tracker issue category.
type IssueType string

const (
	IssueBug            IssueType = "bug"
	IssueFeatureRequest IssueType = "feature_request"
	IssueImprovement    IssueType = "improvement"
	IssueTask           IssueType = "task"
	IssueIncident       IssueType = "incident"
)

// Valid reports whether t is a known issue type.
func (t IssueType) Valid() bool {
	switch t {
	case IssueBug, IssueFeatureRequest, IssueImprovement, IssueTask, IssueIncident:
		return true
	}
	return false
}

// DisplayName renders the type the way trackers expect: "feature_request"
// becomes "Feature Request".
func (t IssueType) DisplayName() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// UnmarshalJSON rejects unknown issue types at the boundary.
func (t *IssueType) UnmarshalJSON(b []byte) error {
	v, err := decodeEnum(b, "issue type", func(x string) bool { return IssueType(x).Valid() })
	if err != nil {
		return err
	}
	*t = IssueType(v)
	return nil
}

func decodeEnum(b []byte, kind string, valid func(string) bool) (string, error) {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	if !valid(s) {
		return "", fmt.Errorf("unknown %s %q", kind, s)
	}
	return s, nil
}
