package cfg

import (
	"flag"
	"math"
	"strings"
	"testing"
)

// validBase returns a Config with all required fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:          60,
		ShutdownBudgetSeconds: 90,
		APIPort:               8080,
		APIToken:              "test-token-123",
		ClaudeAPIKey:          "sk-test-key",
		ClaudeModel:           "claude-haiku-4-5",
		GeminiAPIKey:          "gm-test-key",
		GeminiModel:           "gemini-2.5-flash",
		ClassifierProvider:    ProviderGemini,
		SimilarityThreshold:   0.82,
		DedupTopK:             3,
		FallbackTeam:          "platform",
		JiraProjectKey:        "ENG",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.SimilarityThreshold != 0.82 {
		t.Errorf("SimilarityThreshold = %v, want 0.82", c.SimilarityThreshold)
	}
	if c.DedupTopK != 3 {
		t.Errorf("DedupTopK = %d, want 3", c.DedupTopK)
	}
	if c.FallbackTeam != "platform" {
		t.Errorf("FallbackTeam = %q, want platform", c.FallbackTeam)
	}
	if c.ClassifierProvider != ProviderGemini {
		t.Errorf("ClassifierProvider = %q, want gemini", c.ClassifierProvider)
	}
	if c.JiraProjectKey != "ENG" {
		t.Errorf("JiraProjectKey = %q, want ENG", c.JiraProjectKey)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-http-port", "9090",
		"-similarity-threshold", "0.9",
		"-dedup-top-k", "5",
		"-fallback-team", "data",
		"-classifier-provider", "claude",
		"-reseed-schedule", "0 3 * * *",
		"-sqlite-path", "/var/lib/sentinel/triage.db",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.APIPort)
	}
	if c.SimilarityThreshold != 0.9 {
		t.Errorf("SimilarityThreshold = %v, want 0.9", c.SimilarityThreshold)
	}
	if c.DedupTopK != 5 {
		t.Errorf("DedupTopK = %d, want 5", c.DedupTopK)
	}
	if c.FallbackTeam != "data" {
		t.Errorf("FallbackTeam = %q", c.FallbackTeam)
	}
	if c.ClassifierProvider != ProviderClaude {
		t.Errorf("ClassifierProvider = %q", c.ClassifierProvider)
	}
	if c.ReseedSchedule != "0 3 * * *" {
		t.Errorf("ReseedSchedule = %q", c.ReseedSchedule)
	}
	if c.SQLitePath != "/var/lib/sentinel/triage.db" {
		t.Errorf("SQLitePath = %q", c.SQLitePath)
	}
}

func TestRegisterPipelineFlags_OmitsServerFlags(t *testing.T) {
	t.Parallel()
	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterPipelineFlags(fs)
	for _, name := range []string{"http-port", "api-token", "drain-seconds"} {
		if fs.Lookup(name) != nil {
			t.Errorf("pipeline flags registered %q", name)
		}
	}
	if fs.Lookup("similarity-threshold") == nil {
		t.Error("pipeline flags missing similarity-threshold")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid base", func(*Config) {}, ""},
		{"claude classifier needs no gemini key", func(c *Config) { c.ClassifierProvider = ProviderClaude; c.GeminiAPIKey = "" }, ""},
		{"threshold exactly 1", func(c *Config) { c.SimilarityThreshold = 1 }, ""},
		{"valid reseed schedule", func(c *Config) { c.ReseedSchedule = "*/30 * * * *" }, ""},
		{"full jira", func(c *Config) {
			c.JiraURL, c.JiraEmail, c.JiraAPIToken = "https://acme.atlassian.net", "bot@acme.io", "tok"
		}, ""},

		{"drain zero", func(c *Config) { c.DrainSeconds = 0 }, "DRAIN_SECONDS"},
		{"drain too high", func(c *Config) { c.DrainSeconds = 301 }, "DRAIN_SECONDS"},
		{"budget not above drain", func(c *Config) { c.ShutdownBudgetSeconds = 60 }, "must be greater than DRAIN_SECONDS"},
		{"port zero", func(c *Config) { c.APIPort = 0 }, "HTTP_PORT"},
		{"port too high", func(c *Config) { c.APIPort = 65536 }, "HTTP_PORT"},
		{"missing api token", func(c *Config) { c.APIToken = "" }, "API_TOKEN is required"},
		{"blank api token list", func(c *Config) { c.APIToken = " , " }, "API_TOKEN is required"},
		{"missing claude key", func(c *Config) { c.ClaudeAPIKey = "" }, "CLAUDE_API_KEY"},
		{"missing claude model", func(c *Config) { c.ClaudeModel = "" }, "CLAUDE_MODEL"},
		{"gemini without key", func(c *Config) { c.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"unknown provider", func(c *Config) { c.ClassifierProvider = "openai" }, "CLASSIFIER_PROVIDER"},
		{"threshold zero", func(c *Config) { c.SimilarityThreshold = 0 }, "SIMILARITY_THRESHOLD"},
		{"threshold above one", func(c *Config) { c.SimilarityThreshold = 1.01 }, "SIMILARITY_THRESHOLD"},
		{"threshold NaN", func(c *Config) { c.SimilarityThreshold = math.NaN() }, "SIMILARITY_THRESHOLD"},
		{"top-k zero", func(c *Config) { c.DedupTopK = 0 }, "DEDUP_TOP_K"},
		{"blank fallback", func(c *Config) { c.FallbackTeam = "  " }, "FALLBACK_TEAM"},
		{"partial jira", func(c *Config) { c.JiraURL = "https://acme.atlassian.net" }, "must be set together"},
		{"bad jira url", func(c *Config) {
			c.JiraURL, c.JiraEmail, c.JiraAPIToken = "acme", "bot@acme.io", "tok"
		}, "invalid JIRA_URL"},
		{"bad reseed schedule", func(c *Config) { c.ReseedSchedule = "nightly" }, "RESEED_SCHEDULE"},
		{"both stores", func(c *Config) { c.DatabaseURL = "postgres://x"; c.SQLitePath = "x.db" }, "mutually exclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validBase()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllErrors(t *testing.T) {
	t.Parallel()
	var c Config
	err := c.Validate()
	if err == nil {
		t.Fatal("expected errors for zero config")
	}
	for _, want := range []string{"DRAIN_SECONDS", "HTTP_PORT", "API_TOKEN", "CLAUDE_API_KEY", "CLASSIFIER_PROVIDER", "SIMILARITY_THRESHOLD"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q", want)
		}
	}
}

func TestJiraConfigured(t *testing.T) {
	t.Parallel()
	c := validBase()
	if c.JiraConfigured() {
		t.Error("JiraConfigured = true with no credentials")
	}
	c.JiraURL, c.JiraEmail, c.JiraAPIToken = "https://a", "e", "t"
	if !c.JiraConfigured() {
		t.Error("JiraConfigured = false with all credentials")
	}
}
