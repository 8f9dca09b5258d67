package triage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linnemanlabs/sentinel/internal/skills"
)

// DefaultFallbackTeam receives tickets that match no team's skills.
const DefaultFallbackTeam = "platform"

// DefaultProjectKey is the tracker project outbound payloads target.
const DefaultProjectKey = "ENG"

// Capacity penalty: score = overlap - capacityPenaltyWeight * max(0, capacityPenaltyPivot - capacity).
// The constants are a tunable heuristic kept for behavioral compatibility.
const (
	capacityPenaltyWeight = 0.1
	capacityPenaltyPivot  = 5
)

// TeamScore is one team's routing score, exposed for observability and tests.
type TeamScore struct {
	Team    string
	Score   float64
	Matched []string
}

// Router scores teams against classified tickets. It never mutates the registry.
type Router struct {
	registry     *skills.Registry
	fallbackTeam string
	projectKey   string
}

// NewRouter builds a Router. The fallback team must exist in the registry.
func NewRouter(registry *skills.Registry, fallbackTeam, projectKey string) (*Router, error) {
	if registry == nil {
		return nil, fmt.Errorf("skills registry is required")
	}
	if fallbackTeam == "" {
		fallbackTeam = DefaultFallbackTeam
	}
	if _, ok := registry.Get(fallbackTeam); !ok {
		return nil, fmt.Errorf("fallback team %q not in skills registry", fallbackTeam)
	}
	if projectKey == "" {
		projectKey = DefaultProjectKey
	}
	return &Router{registry: registry, fallbackTeam: fallbackTeam, projectKey: projectKey}, nil
}

// Signals builds the routing signal set: every label plus the component, if
// any, all case-folded so each skill is matched at most once.
func Signals(component string, labels []string) map[string]struct{} {
	out := make(map[string]struct{}, len(labels)+1)
	add := func(s string) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out[s] = struct{}{}
		}
	}
	for _, l := range labels {
		add(l)
	}
	add(component)
	return out
}

// Scores computes every team's score in registry order.
func (r *Router) Scores(component string, labels []string) []TeamScore {
	signals := Signals(component, labels)
	teams := r.registry.Teams()
	out := make([]TeamScore, 0, len(teams))

	for _, t := range teams {
		var matched []string
		for s := range signals {
			if t.HasSkill(s) {
				matched = append(matched, s)
			}
		}
		sort.Strings(matched)
		score := float64(len(matched)) - capacityPenaltyWeight*float64(max(0, capacityPenaltyPivot-t.Capacity))
		out = append(out, TeamScore{Team: t.Name, Score: score, Matched: matched})
	}
	return out
}

// Assign picks the owning team. The highest score wins; on ties the team
// that comes first in the registry wins. A winning score <= 0 falls back to
// the fallback team.
func (r *Router) Assign(component string, labels []string) TeamAssignment {
	scores := r.Scores(component, labels)

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Score > best.Score {
			best = s
		}
	}

	if best.Score <= 0 {
		team, _ := r.registry.Get(r.fallbackTeam)
		return TeamAssignment{
			Team:          team.Name,
			Assignee:      team.Lead,
			Reasoning:     fmt.Sprintf("No strong skill match found; defaulting to %s team for triage.", team.Name),
			MatchedSkills: []string{},
			Score:         0,
			Fallback:      true,
		}
	}

	team, _ := r.registry.Get(best.Team)
	return TeamAssignment{
		Team:          team.Name,
		Assignee:      team.Lead,
		Reasoning:     fmt.Sprintf("Matched skills: %s. Team capacity: %d.", strings.Join(best.Matched, ", "), team.Capacity),
		MatchedSkills: best.Matched,
		Score:         best.Score,
	}
}

// Route assigns a team and builds the outbound payload for it.
func (r *Router) Route(parsed *ParsedTicket, cls *Classification) (TeamAssignment, OutboundPayload) {
	a := r.Assign(parsed.Component, cls.Labels)
	return a, BuildPayload(r.projectKey, parsed, cls, a)
}
