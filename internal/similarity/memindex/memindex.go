// Package memindex is an in-process similarity index using bag-of-words
// cosine distance. It is the default when no database is configured.
package memindex

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/linnemanlabs/sentinel/internal/similarity"
	"github.com/linnemanlabs/sentinel/internal/triage"
)

type doc struct {
	ticket similarity.Ticket
	terms  map[string]float64
	norm   float64
}

// Index holds term vectors for every ticket. Safe for concurrent use.
type Index struct {
	mu   sync.RWMutex
	docs map[string]*doc
}

// New returns an empty index.
func New() *Index {
	return &Index{docs: make(map[string]*doc)}
}

// Add indexes tickets, replacing any with the same ID.
func (x *Index) Add(_ context.Context, tickets []similarity.Ticket) error {
	built := make([]*doc, 0, len(tickets))
	for _, t := range tickets {
		terms := termVector(t.Document())
		built = append(built, &doc{ticket: t, terms: terms, norm: norm(terms)})
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	for _, d := range built {
		x.docs[d.ticket.ID] = d
	}
	return nil
}

// Count returns the number of indexed tickets.
func (x *Index) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs), nil
}

// Search returns up to k tickets closest to query. Distance is 1 - cosine
// similarity. Ties are broken by ticket ID.
func (x *Index) Search(ctx context.Context, query string, k int) ([]triage.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	q := termVector(query)
	qn := norm(q)

	x.mu.RLock()
	out := make([]triage.Candidate, 0, len(x.docs))
	for _, d := range x.docs {
		out = append(out, triage.Candidate{
			ID:       d.ticket.ID,
			Title:    d.ticket.Title,
			Distance: 1 - cosine(q, qn, d),
		})
	}
	x.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func cosine(q map[string]float64, qn float64, d *doc) float64 {
	if qn == 0 || d.norm == 0 {
		return 0
	}
	var dot float64
	for term, w := range q {
		dot += w * d.terms[term]
	}
	sim := dot / (qn * d.norm)
	// float error can push identical vectors just past 1
	return math.Min(1, math.Max(0, sim))
}

func termVector(text string) map[string]float64 {
	out := make(map[string]float64)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		out[w]++
	}
	return out
}

func norm(v map[string]float64) float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

var stopwords = map[string]bool{
	"the": true, "and": true, "an": true, "of": true, "to": true, "in": true,
	"on": true, "is": true, "it": true, "for": true, "when": true, "with": true,
	"we": true, "at": true, "be": true, "by": true, "or": true, "are": true,
	"this": true, "that": true, "after": true, "from": true, "as": true,
}
