package triage

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/linnemanlabs/sentinel/internal/skills"
)

func mustRegistry(t *testing.T, teams ...skills.Team) *skills.Registry {
	t.Helper()
	reg, err := skills.New(teams)
	if err != nil {
		t.Fatalf("skills.New: %v", err)
	}
	return reg
}

func TestNewRouter_UnknownFallback(t *testing.T) {
	t.Parallel()

	_, err := NewRouter(skills.Default(), "nobody", "ENG")
	if err == nil {
		t.Fatal("expected error for fallback team missing from registry")
	}
}

func TestNewRouter_Defaults(t *testing.T) {
	t.Parallel()

	r, err := NewRouter(skills.Default(), "", "")
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	_, p := r.Route(validTicket(), paymentsClassification())
	if p.Fields.Project.Key != DefaultProjectKey {
		t.Errorf("project key = %q, want %q", p.Fields.Project.Key, DefaultProjectKey)
	}
	a := r.Assign("", []string{"nothing-matches"})
	if a.Team != DefaultFallbackTeam {
		t.Errorf("fallback team = %q, want %q", a.Team, DefaultFallbackTeam)
	}
}

func TestAssign_DefaultRegistry(t *testing.T) {
	t.Parallel()

	r := testRouter(t)

	tests := []struct {
		name      string
		component string
		labels    []string
		wantTeam  string
		wantLead  string
		wantSkill []string
		wantScore float64
		fallback  bool
	}{
		{
			name:      "payments beats frontend on checkout",
			component: "checkout",
			labels:    []string{"payments", "checkout"},
			wantTeam:  "payments",
			wantLead:  "alice_payments",
			wantSkill: []string{"checkout", "payments"},
			wantScore: 2,
		},
		{
			name:      "component is case-folded",
			component: "Safari",
			labels:    []string{"ui"},
			wantTeam:  "frontend",
			wantLead:  "bob_frontend",
			wantSkill: []string{"safari", "ui"},
			wantScore: 2,
		},
		{
			name:      "mixed-case labels count each skill once",
			component: "Payments",
			labels:    []string{"Payments", "Stripe", "stripe"},
			wantTeam:  "payments",
			wantLead:  "alice_payments",
			wantSkill: []string{"payments", "stripe"},
			wantScore: 2,
		},
		{
			name:      "label repeating the component counts once",
			component: "billing",
			labels:    []string{"billing", " BILLING "},
			wantTeam:  "payments",
			wantLead:  "alice_payments",
			wantSkill: []string{"billing"},
			wantScore: 1,
		},
		{
			name:      "security labels",
			labels:    []string{"xss", "vulnerability"},
			wantTeam:  "security",
			wantLead:  "eve_johnson",
			wantSkill: []string{"vulnerability", "xss"},
			wantScore: 2,
		},
		{
			name:      "data team carries capacity penalty",
			labels:    []string{"csv", "export"},
			wantTeam:  "data",
			wantLead:  "dave_data",
			wantSkill: []string{"csv", "export"},
			wantScore: 1.9,
		},
		{
			name:      "no match falls back to platform",
			component: "warehouse",
			labels:    []string{"forklift"},
			wantTeam:  "platform",
			wantLead:  "carol_platform",
			wantSkill: []string{},
			wantScore: 0,
			fallback:  true,
		},
		{
			name:      "no signals at all falls back",
			wantTeam:  "platform",
			wantLead:  "carol_platform",
			wantSkill: []string{},
			fallback:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := r.Assign(tt.component, tt.labels)

			if a.Team != tt.wantTeam {
				t.Errorf("team = %q, want %q", a.Team, tt.wantTeam)
			}
			if a.Assignee != tt.wantLead {
				t.Errorf("assignee = %q, want %q", a.Assignee, tt.wantLead)
			}
			if diff := cmp.Diff(tt.wantSkill, a.MatchedSkills); diff != "" {
				t.Errorf("matched skills (-want +got):\n%s", diff)
			}
			if diff := a.Score - tt.wantScore; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("score = %v, want %v", a.Score, tt.wantScore)
			}
			if a.Fallback != tt.fallback {
				t.Errorf("fallback = %v, want %v", a.Fallback, tt.fallback)
			}
		})
	}
}

func TestAssign_Reasoning(t *testing.T) {
	t.Parallel()

	r := testRouter(t)

	a := r.Assign("checkout", []string{"payments"})
	if a.Reasoning != "Matched skills: checkout, payments. Team capacity: 5." {
		t.Errorf("reasoning = %q", a.Reasoning)
	}

	fb := r.Assign("", nil)
	if fb.Reasoning != "No strong skill match found; defaulting to platform team for triage." {
		t.Errorf("fallback reasoning = %q", fb.Reasoning)
	}
}

func TestAssign_TieBreakByRank(t *testing.T) {
	t.Parallel()

	// definition order puts beta first, ranks put alpha first
	reg := mustRegistry(t,
		skills.Team{Name: "beta", Lead: "b", Skills: []string{"shared"}, Capacity: 5, Rank: 2},
		skills.Team{Name: "alpha", Lead: "a", Skills: []string{"shared"}, Capacity: 5, Rank: 1},
		skills.Team{Name: "ops", Lead: "o", Skills: []string{"ops"}, Capacity: 5},
	)
	r, err := NewRouter(reg, "ops", "ENG")
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	for range 10 {
		if got := r.Assign("", []string{"shared"}).Team; got != "alpha" {
			t.Fatalf("team = %q, want alpha", got)
		}
	}
}

func TestAssign_TieBreakByDefinitionOrder(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t,
		skills.Team{Name: "first", Lead: "f", Skills: []string{"shared"}, Capacity: 8},
		skills.Team{Name: "second", Lead: "s", Skills: []string{"shared"}, Capacity: 8},
	)
	r, err := NewRouter(reg, "second", "ENG")
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	if got := r.Assign("", []string{"shared"}).Team; got != "first" {
		t.Errorf("team = %q, want first", got)
	}
}

func TestAssign_CapacityPenaltyBreaksTie(t *testing.T) {
	t.Parallel()

	reg := mustRegistry(t,
		skills.Team{Name: "small", Lead: "s", Skills: []string{"shared"}, Capacity: 2, Rank: 1},
		skills.Team{Name: "large", Lead: "l", Skills: []string{"shared"}, Capacity: 5, Rank: 2},
	)
	r, err := NewRouter(reg, "small", "ENG")
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	scores := r.Scores("", []string{"shared"})
	if len(scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(scores))
	}
	if diff := scores[0].Score - 0.7; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("small score = %v, want 0.7", scores[0].Score)
	}
	if scores[1].Score != 1 {
		t.Errorf("large score = %v, want 1", scores[1].Score)
	}
	if got := r.Assign("", []string{"shared"}).Team; got != "large" {
		t.Errorf("team = %q, want large", got)
	}
}

func TestSignals(t *testing.T) {
	t.Parallel()

	got := Signals("  Checkout ", []string{"payments", "payments", "ui"})
	want := map[string]struct{}{"checkout": {}, "payments": {}, "ui": {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("signals (-want +got):\n%s", diff)
	}

	got = Signals("Payments", []string{"Payments", "Stripe", "stripe", " "})
	want = map[string]struct{}{"payments": {}, "stripe": {}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("case-folded signals (-want +got):\n%s", diff)
	}

	labels := make([]string, 1, 4)
	labels[0] = "ui"
	Signals("css", labels)
	if got := labels[:cap(labels)][1]; got != "" {
		t.Errorf("Signals wrote %q past the caller's labels", got)
	}

	if got := Signals("", nil); len(got) != 0 {
		t.Errorf("signals = %v, want empty", got)
	}
}

func TestBuildPayload(t *testing.T) {
	t.Parallel()

	r := testRouter(t)
	parsed := validTicket()
	cls := paymentsClassification()

	a, p := r.Route(parsed, cls)

	want := OutboundPayload{Fields: IssueFields{
		Project: ProjectRef{Key: "ENG"},
		Summary: parsed.Title,
		Description: Doc{
			Type:    "doc",
			Version: 1,
			Content: []DocNode{{
				Type:    "paragraph",
				Content: []DocNode{{Type: "text", Text: parsed.Description}},
			}},
		},
		IssueType:  NameRef{Name: "Bug"},
		Priority:   NameRef{Name: "P1"},
		Labels:     []string{"payments", "checkout"},
		Assignee:   AccountRef{AccountID: a.Assignee},
		Components: []NameRef{{Name: "checkout"}},
	}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}

	// labels are copied, not aliased
	cls.Labels[0] = "mutated"
	if p.Fields.Labels[0] != "payments" {
		t.Error("payload labels alias the classification")
	}
}

func TestBuildPayload_EmptyCollections(t *testing.T) {
	t.Parallel()

	parsed := validTicket()
	parsed.Component = ""
	cls := paymentsClassification()
	cls.Labels = nil
	cls.IssueType = IssueFeatureRequest

	p := BuildPayload("OPS", parsed, cls, TeamAssignment{Team: "platform", Assignee: "carol_platform"})

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"labels":[]`, `"components":[]`, `"accountId":"carol_platform"`, `"name":"Feature Request"`, `"key":"OPS"`} {
		if !strings.Contains(s, want) {
			t.Errorf("payload JSON missing %s: %s", want, s)
		}
	}
}

func TestOutboundPayload_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	_, p := testRouter(t).Route(validTicket(), paymentsClassification())

	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got OutboundPayload
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("round trip (-want +got):\n%s", diff)
	}
}
