// Package similarity holds the prior-ticket corpus the dedup stage searches
// and the plumbing to load and (re)seed it into an index.
package similarity

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed seed_tickets.json
var defaultSeed []byte

// Ticket is one prior ticket in the similarity corpus.
type Ticket struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Component   string `json:"component,omitempty"`
	Severity    string `json:"severity,omitempty"`
	Team        string `json:"team,omitempty"`
}

// Document is the text indexed for t. It matches the query text the dedup
// stage builds from a parsed ticket.
func (t Ticket) Document() string {
	return t.Title + ". " + t.Description
}

// ParseSeed decodes a JSON array of tickets and checks each has an ID and a
// title, and that IDs are unique.
func ParseSeed(data []byte) ([]Ticket, error) {
	var tickets []Ticket
	if err := json.Unmarshal(data, &tickets); err != nil {
		return nil, fmt.Errorf("decode seed tickets: %w", err)
	}

	var errs []error
	seen := make(map[string]struct{}, len(tickets))
	for i, t := range tickets {
		switch {
		case strings.TrimSpace(t.ID) == "":
			errs = append(errs, fmt.Errorf("ticket #%d has no id", i+1))
		case strings.TrimSpace(t.Title) == "":
			errs = append(errs, fmt.Errorf("ticket %s has no title", t.ID))
		}
		if _, dup := seen[t.ID]; dup {
			errs = append(errs, fmt.Errorf("ticket %s listed twice", t.ID))
		}
		seen[t.ID] = struct{}{}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid seed tickets: %w", err)
	}
	return tickets, nil
}

// LoadSeedFile reads and parses a seed file. An empty path returns the
// built-in corpus.
func LoadSeedFile(path string) ([]Ticket, error) {
	if path == "" {
		return DefaultSeed(), nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// DefaultSeed returns the built-in corpus.
func DefaultSeed() []Ticket {
	tickets, err := ParseSeed(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("embedded seed tickets: %v", err))
	}
	return tickets
}
