package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/sentinel/internal/cfg"
	"github.com/linnemanlabs/sentinel/internal/similarity"
	"github.com/linnemanlabs/sentinel/internal/similarity/memindex"
	"github.com/linnemanlabs/sentinel/internal/triage"
)

type cannedProvider struct{ text string }

func (p cannedProvider) Send(context.Context, *triage.LLMRequest) (*triage.LLMResponse, error) {
	return &triage.LLMResponse{
		Text:       p.text,
		StopReason: triage.StopEnd,
		Usage:      triage.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

func testConfig() *cfg.Config {
	return &cfg.Config{
		ClaudeAPIKey:        "test-key",
		ClaudeModel:         "claude-test",
		ClassifierProvider:  cfg.ProviderClaude,
		SimilarityThreshold: triage.DefaultSimilarityThreshold,
		DedupTopK:           triage.DefaultTopK,
		FallbackTeam:        "platform",
		JiraProjectKey:      "ENG",
	}
}

func seededIndex(t *testing.T) *memindex.Index {
	t.Helper()
	idx := memindex.New()
	if err := SeedIndex(context.Background(), testConfig(), idx, nil); err != nil {
		t.Fatalf("SeedIndex: %v", err)
	}
	return idx
}

func TestLoadRegistry(t *testing.T) {
	t.Parallel()

	reg, err := LoadRegistry(&cfg.Config{})
	if err != nil {
		t.Fatalf("LoadRegistry(default): %v", err)
	}
	if reg.Len() == 0 {
		t.Fatal("default registry is empty")
	}

	path := filepath.Join(t.TempDir(), "teams.yaml")
	if err := os.WriteFile(path, []byte("teams: [}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistry(&cfg.Config{SkillsFile: path}); err == nil {
		t.Fatal("expected error for malformed skills file")
	}
}

func TestProviders(t *testing.T) {
	t.Parallel()

	c := testConfig()
	ex, cl, err := Providers(context.Background(), c)
	if err != nil {
		t.Fatalf("Providers(claude): %v", err)
	}
	if ex != cl {
		t.Error("claude classifier should share the extraction client")
	}

	c.ClassifierProvider = cfg.ProviderGemini
	if _, _, err := Providers(context.Background(), c); err == nil {
		t.Error("expected error for gemini without api key")
	}

	c.ClassifierProvider = "openai"
	if _, _, err := Providers(context.Background(), c); err == nil || !strings.Contains(err.Error(), "openai") {
		t.Errorf("err = %v, want unknown provider error", err)
	}
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Build(context.Background(), testConfig(), Deps{}); err == nil {
		t.Error("expected error without index")
	}

	c := testConfig()
	c.FallbackTeam = "nobody"
	if _, err := Build(context.Background(), c, Deps{Index: memindex.New()}); err == nil {
		t.Error("expected error for unknown fallback team")
	}
}

func TestBuild_EndToEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		extract  string
		classify string
		decision triage.Decision
		team     string
	}{
		{
			name:     "new payments ticket",
			extract:  `{"title":"Invoice PDF shows wrong currency symbol","description":"EUR customers get a dollar sign on generated PDFs.","component":"billing","is_valid":true}`,
			classify: `{"severity":"medium","priority":"P2","issue_type":"bug","labels":["billing","invoices"],"confidence":0.9}`,
			decision: triage.DecisionCreateTicket,
			team:     "payments",
		},
		{
			name: "duplicate of seeded ticket",
			extract: `{"title":"SSO login loops back to the sign-in page","description":"Users signing in with Okta SSO are redirected back to the login page after authenticating.",` +
				`"component":"auth","is_valid":true}`,
			classify: `{"severity":"critical","priority":"P0","issue_type":"bug","labels":["sso"],"confidence":0.9}`,
			decision: triage.DecisionDuplicate,
		},
		{
			name:     "vague report",
			extract:  `{"title":"","description":"it is broken","is_valid":false,"clarification_reason":"no details"}`,
			decision: triage.DecisionNeedsClarification,
		},
	}

	idx := seededIndex(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := prometheus.NewRegistry()
			m := triage.NewMetrics(reg)
			eng, err := Build(context.Background(), testConfig(), Deps{
				Metrics:  m,
				Index:    idx,
				Extract:  cannedProvider{tt.extract},
				Classify: cannedProvider{tt.classify},
			})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}

			rec := eng.Run(context.Background(), "t-1", triage.Input{Text: "some report", Type: triage.InputText})
			if rec.Decision != tt.decision {
				t.Fatalf("decision = %q, want %q (error %q, trace %v)", rec.Decision, tt.decision, rec.Error, rec.Trace)
			}
			if tt.team != "" && (rec.Assignment == nil || rec.Assignment.Team != tt.team) {
				t.Errorf("assignment = %+v, want team %q", rec.Assignment, tt.team)
			}
			if got := testutil.ToFloat64(m.LLMCallsTotal.WithLabelValues("intake", "success")); got != 1 {
				t.Errorf("intake llm calls = %v, want 1", got)
			}
		})
	}
}

func TestSeedIndex_BadFile(t *testing.T) {
	t.Parallel()

	c := testConfig()
	c.SeedFile = filepath.Join(t.TempDir(), "missing.json")
	if err := SeedIndex(context.Background(), c, memindex.New(), nil); err == nil {
		t.Fatal("expected error for missing seed file")
	}
}

func TestSeedIndex_SkipsPopulated(t *testing.T) {
	t.Parallel()

	idx := seededIndex(t)
	before, _ := idx.Count(context.Background())
	if err := SeedIndex(context.Background(), testConfig(), idx, nil); err != nil {
		t.Fatal(err)
	}
	after, _ := idx.Count(context.Background())
	if before != after || after != len(similarity.DefaultSeed()) {
		t.Errorf("count before=%d after=%d, want %d", before, after, len(similarity.DefaultSeed()))
	}
}
