// Package eval runs labelled bug reports through the triage pipeline and
// scores the outcome per dimension.
package eval

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

//go:embed test_cases.json
var defaultCases []byte

// Case is one labelled report.
type Case struct {
	ID       string      `json:"id"`
	Category string      `json:"category,omitempty"`
	Input    string      `json:"input"`
	Expected Expectation `json:"expected"`
}

// Expectation lists the dimensions a case checks. Nil fields are not scored.
type Expectation struct {
	Decision            *triage.Decision  `json:"decision,omitempty"`
	IsValid             *bool             `json:"is_valid,omitempty"`
	IsDuplicate         *bool             `json:"is_duplicate,omitempty"`
	Severity            *triage.Severity  `json:"severity,omitempty"`
	Priority            *triage.Priority  `json:"priority,omitempty"`
	IssueType           *triage.IssueType `json:"issue_type,omitempty"`
	Team                *string           `json:"team,omitempty"`
	LabelsShouldContain []string          `json:"labels_should_contain,omitempty"`
}

// ParseCases decodes a JSON array of cases. Case IDs must be present and
// unique; a missing category becomes "unknown".
func ParseCases(data []byte) ([]Case, error) {
	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("decode eval cases: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(cases))
	for i := range cases {
		c := &cases[i]
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("case #%d has no id", i+1))
		} else if seen[c.ID] {
			errs = append(errs, fmt.Errorf("case %s listed twice", c.ID))
		}
		seen[c.ID] = true
		if c.Category == "" {
			c.Category = "unknown"
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid eval cases: %w", err)
	}
	return cases, nil
}

// LoadCases reads cases from path, or the built-in set when path is empty.
func LoadCases(path string) ([]Case, error) {
	if path == "" {
		return ParseCases(defaultCases)
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("read eval cases: %w", err)
	}
	return ParseCases(data)
}
