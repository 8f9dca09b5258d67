// Package skills holds the team skills registry used to route triaged tickets.
// A Registry is built once and is read-only afterwards, so it is safe to
// share across concurrent pipeline runs.
package skills

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRegistry is wrapped by every validation failure from New, Parse and Load.
var ErrInvalidRegistry = errors.New("invalid skills registry")

// Team is one registry entry.
type Team struct {
	Name     string   `yaml:"name" json:"name"`
	Lead     string   `yaml:"lead" json:"lead"`
	Skills   []string `yaml:"skills" json:"skills"`
	Capacity int      `yaml:"capacity" json:"capacity"`

	// Rank orders teams for routing tie-breaks, lowest first. Zero means
	// unranked: unranked teams follow ranked ones in definition order.
	Rank int `yaml:"rank,omitempty" json:"rank,omitempty"`

	skillSet map[string]struct{}
}

// HasSkill reports whether the team lists skill (case-insensitive).
func (t *Team) HasSkill(skill string) bool {
	_, ok := t.skillSet[strings.ToLower(skill)]
	return ok
}

// Registry is an immutable, ordered set of teams.
type Registry struct {
	teams  []*Team
	byName map[string]*Team
}

type file struct {
	Teams []Team `yaml:"teams"`
}

// New validates teams and builds a Registry ordered by rank, then by the
// order given.
func New(teams []Team) (*Registry, error) {
	if len(teams) == 0 {
		return nil, fmt.Errorf("%w: no teams defined", ErrInvalidRegistry)
	}

	r := &Registry{byName: make(map[string]*Team, len(teams))}
	var errs []error

	for i := range teams {
		t := teams[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Skills = normalizeSkills(t.Skills)

		switch {
		case t.Name == "":
			errs = append(errs, fmt.Errorf("team #%d has no name", i+1))
			continue
		case r.byName[t.Name] != nil:
			errs = append(errs, fmt.Errorf("team %q defined twice", t.Name))
			continue
		}
		if len(t.Skills) == 0 {
			errs = append(errs, fmt.Errorf("team %q has no skills", t.Name))
		}
		if t.Capacity <= 0 {
			errs = append(errs, fmt.Errorf("team %q capacity %d must be positive", t.Name, t.Capacity))
		}
		if t.Lead == "" {
			errs = append(errs, fmt.Errorf("team %q has no lead", t.Name))
		}
		if t.Rank < 0 {
			errs = append(errs, fmt.Errorf("team %q rank %d must not be negative", t.Name, t.Rank))
		}

		t.skillSet = make(map[string]struct{}, len(t.Skills))
		for _, s := range t.Skills {
			t.skillSet[s] = struct{}{}
		}

		tp := &t
		r.teams = append(r.teams, tp)
		r.byName[t.Name] = tp
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, errors.Join(errs...))
	}

	sort.SliceStable(r.teams, func(i, j int) bool {
		return effectiveRank(r.teams[i]) < effectiveRank(r.teams[j])
	})

	return r, nil
}

// Parse builds a Registry from YAML of the form:
//
//	teams:
//	  - name: payments
//	    lead: alice_payments
//	    capacity: 5
//	    skills: [payments, stripe, billing]
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidRegistry, err)
	}
	return New(f.Teams)
}

// Load reads and parses a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read skills file: %w", err)
	}
	return Parse(data)
}

// Teams returns the teams in routing order. The returned slice is a copy;
// the teams themselves must not be modified.
func (r *Registry) Teams() []*Team {
	return slices.Clone(r.teams)
}

// Get returns a team by name.
func (r *Registry) Get(name string) (*Team, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Len returns the number of teams.
func (r *Registry) Len() int { return len(r.teams) }

func effectiveRank(t *Team) int {
	if t.Rank == 0 {
		return int(^uint(0) >> 1)
	}
	return t.Rank
}

func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
