package eval

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// WriteReport renders a human-readable report of s and results to w.
func WriteReport(w io.Writer, s Summary, results []CaseResult) error {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	fmt.Fprintf(&b, "\n%s\nSENTINEL EVAL REPORT\n%s\n", rule, rule)
	fmt.Fprintf(&b, "\nOverall pass rate: %.1f%%\n", s.OverallPassRate*100)
	fmt.Fprintf(&b, "Average latency: %.2fs\n", s.AvgLatencyS)

	b.WriteString("\nPer-dimension accuracy:\n")
	for _, d := range Dimensions {
		a, ok := s.Dimensions[d]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "  %-20s: %.1f%% (%d/%d)\n", d, a.Accuracy*100, a.Correct, a.Total)
	}

	b.WriteString("\nPer-category pass rate:\n")
	cats := make([]string, 0, len(s.ByCategory))
	for c := range s.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	for _, c := range cats {
		m := s.ByCategory[c]
		fmt.Fprintf(&b, "  %-25s: %.1f%% (%d cases)\n", c, m.PassRate*100, m.Total)
	}

	if failures := Failures(results); len(failures) > 0 {
		fmt.Fprintf(&b, "\nFailed cases (%d):\n", len(failures))
		for _, f := range failures {
			dims := f.Failed()
			if len(dims) == 0 {
				fmt.Fprintf(&b, "  %s: nothing scored\n", f.ID)
				continue
			}
			fmt.Fprintf(&b, "  %s: failed on %s\n", f.ID, strings.Join(dims, ", "))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
