package eval

import "sort"

// Accuracy is the hit rate for one dimension.
type Accuracy struct {
	Accuracy float64 `json:"accuracy"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
}

// CategoryStats is the pass rate for one case category.
type CategoryStats struct {
	PassRate float64 `json:"pass_rate"`
	Total    int     `json:"total"`
}

// Summary aggregates a run.
type Summary struct {
	Dimensions      map[string]Accuracy      `json:"dimensions"`
	OverallPassRate float64                  `json:"overall_pass_rate"`
	AvgLatencyS     float64                  `json:"avg_latency_s"`
	ByCategory      map[string]CategoryStats `json:"by_category"`
}

// Summarize computes per-dimension accuracy over the cases that scored the
// dimension, the overall pass rate, mean latency and per-category pass rate.
func Summarize(results []CaseResult) Summary {
	s := Summary{
		Dimensions: make(map[string]Accuracy),
		ByCategory: make(map[string]CategoryStats),
	}
	if len(results) == 0 {
		return s
	}

	for _, d := range Dimensions {
		var a Accuracy
		for _, r := range results {
			if ok, scored := r.Scores[d]; scored {
				a.Total++
				if ok {
					a.Correct++
				}
			}
		}
		if a.Total > 0 {
			a.Accuracy = round(float64(a.Correct)/float64(a.Total), 3)
			s.Dimensions[d] = a
		}
	}

	var passed int
	var latency float64
	cats := make(map[string][2]int) // passed, total
	for _, r := range results {
		c := cats[r.Category]
		if r.AllPassed {
			passed++
			c[0]++
		}
		c[1]++
		cats[r.Category] = c
		latency += r.LatencyS
	}
	s.OverallPassRate = round(float64(passed)/float64(len(results)), 3)
	s.AvgLatencyS = round(latency/float64(len(results)), 2)
	for name, c := range cats {
		s.ByCategory[name] = CategoryStats{PassRate: round(float64(c[0])/float64(c[1]), 3), Total: c[1]}
	}
	return s
}

// Failures returns the results that did not pass, ordered by ID.
func Failures(results []CaseResult) []CaseResult {
	var out []CaseResult
	for _, r := range results {
		if !r.AllPassed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
