package triage

import (
	"fmt"
	"math"
)

// DefaultSimilarityThreshold is the reference similarity at or above which
// the best candidate is treated as a duplicate.
const DefaultSimilarityThreshold = 0.82

// DefaultTopK is how many candidates the dedup stage asks the index for.
const DefaultTopK = 3

// thresholdEpsilon absorbs float noise from 1-distance so that a candidate
// sitting exactly on the threshold is still a duplicate.
const thresholdEpsilon = 1e-9

// Candidate is one similarity search hit. Distance is in [0,1], 0 = identical.
type Candidate struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Distance float64 `json:"distance"`
}

// Similarity returns 1 - Distance.
func (c Candidate) Similarity() float64 { return 1 - c.Distance }

// DedupOutcome is a verdict plus the observability detail that does not
// belong on the verdict itself.
type DedupOutcome struct {
	Verdict DedupVerdict

	// Closest is the best candidate's similarity, set whenever there was at
	// least one candidate, duplicate or not.
	Closest *float64

	// ClosestID is the best candidate's ID.
	ClosestID string
}

// TraceMessage renders the outcome for the record's trace log.
func (o DedupOutcome) TraceMessage() string {
	switch {
	case o.Verdict.IsDuplicate:
		return fmt.Sprintf("DEDUP: Duplicate of %s (similarity: %.3f)", o.Verdict.MatchID, *o.Closest)
	case o.Closest != nil:
		return fmt.Sprintf("DEDUP: No duplicate found (closest: %.3f to %s)", *o.Closest, o.ClosestID)
	default:
		return "DEDUP: No similar tickets found"
	}
}

// DecideDuplicate turns an ordered (best first) candidate list into a
// verdict. Only the first candidate is considered; the threshold is a closed
// interval. It returns an error if the best candidate's distance is outside
// [0,1].
func DecideDuplicate(candidates []Candidate, threshold float64) (DedupOutcome, error) {
	if len(candidates) == 0 {
		return DedupOutcome{Verdict: DedupVerdict{IsDuplicate: false}}, nil
	}

	best := candidates[0]
	if math.IsNaN(best.Distance) || best.Distance < 0 || best.Distance > 1 {
		return DedupOutcome{}, fmt.Errorf("candidate %q distance %v outside [0,1]", best.ID, best.Distance)
	}

	sim := roundTo(best.Similarity(), 4)
	out := DedupOutcome{Closest: &sim, ClosestID: best.ID}

	if best.Similarity() >= threshold-thresholdEpsilon {
		score := sim
		out.Verdict = DedupVerdict{
			IsDuplicate: true,
			MatchID:     best.ID,
			MatchTitle:  best.Title,
			Score:       &score,
		}
	}
	return out, nil
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
