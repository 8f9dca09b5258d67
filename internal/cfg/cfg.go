// Package cfg holds the application-level configuration shared by the
// server and the triagectl CLI.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"

	"github.com/linnemanlabs/sentinel/internal/similarity"
	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Classifier backends.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Config is the application configuration. Each field is bound to a flag by
// RegisterFlags and can be overridden from the environment by main.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string

	ClaudeAPIKey       string
	ClaudeModel        string
	GeminiAPIKey       string
	GeminiModel        string
	ClassifierProvider string

	SimilarityThreshold float64
	DedupTopK           int
	FallbackTeam        string
	SkillsFile          string
	SeedFile            string
	ReseedSchedule      string

	DatabaseURL string
	SQLitePath  string

	JiraURL        string
	JiraEmail      string
	JiraAPIToken   string
	JiraProjectKey string

	SlackWebhookURL string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	c.RegisterPipelineFlags(fs)
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "comma-separated bearer tokens accepted by the API")
	fs.StringVar(&c.ReseedSchedule, "reseed-schedule", "", "cron schedule (minute hour dom month dow) for reloading the seed file; empty disables")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL for the store and similarity index")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite database path for the store when no database-url is set")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for notifications")
}

// RegisterPipelineFlags binds only the fields needed to build and run the
// pipeline, for tools that do not serve HTTP.
func (c *Config) RegisterPipelineFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-haiku-4-5", "Claude model used for extraction")
	fs.StringVar(&c.GeminiAPIKey, "gemini-api-key", "", "API key for the Gemini LLM provider")
	fs.StringVar(&c.GeminiModel, "gemini-model", "gemini-2.5-flash", "Gemini model used for classification")
	fs.StringVar(&c.ClassifierProvider, "classifier-provider", ProviderGemini, "LLM backend for classification (claude|gemini)")
	fs.Float64Var(&c.SimilarityThreshold, "similarity-threshold", triage.DefaultSimilarityThreshold, "minimum similarity treated as a duplicate (0..1]")
	fs.IntVar(&c.DedupTopK, "dedup-top-k", triage.DefaultTopK, "number of similar tickets fetched per dedup search (1..50)")
	fs.StringVar(&c.FallbackTeam, "fallback-team", "platform", "team assigned when no skills match")
	fs.StringVar(&c.SkillsFile, "skills-file", "", "YAML team skills file (empty = built-in registry)")
	fs.StringVar(&c.SeedFile, "seed-file", "", "JSON seed file of prior tickets (empty = built-in corpus)")
	fs.StringVar(&c.JiraURL, "jira-url", "", "Jira Cloud base URL, e.g. https://acme.atlassian.net")
	fs.StringVar(&c.JiraEmail, "jira-email", "", "Jira account email for basic auth")
	fs.StringVar(&c.JiraAPIToken, "jira-api-token", "", "Jira API token for basic auth")
	fs.StringVar(&c.JiraProjectKey, "jira-project-key", "ENG", "Jira project key for created issues")
}

// JiraConfigured reports whether all Jira credentials are set.
func (c *Config) JiraConfigured() bool {
	return c.JiraURL != "" && c.JiraEmail != "" && c.JiraAPIToken != ""
}

// ValidatePipeline checks the fields registered by RegisterPipelineFlags.
func (c *Config) ValidatePipeline() error {
	var errs []error

	// Claude always backs extraction
	if c.ClaudeAPIKey == "" {
		errs = append(errs, errors.New("CLAUDE_API_KEY is required"))
	}
	if c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required"))
	}

	switch c.ClassifierProvider {
	case ProviderClaude:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when CLASSIFIER_PROVIDER is gemini"))
		}
		if c.GeminiModel == "" {
			errs = append(errs, errors.New("GEMINI_MODEL is required when CLASSIFIER_PROVIDER is gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid CLASSIFIER_PROVIDER %q (must be claude or gemini)", c.ClassifierProvider))
	}

	if !(c.SimilarityThreshold > 0 && c.SimilarityThreshold <= 1) {
		errs = append(errs, fmt.Errorf("invalid SIMILARITY_THRESHOLD %v (must be in (0,1])", c.SimilarityThreshold))
	}
	if c.DedupTopK < 1 || c.DedupTopK > 50 {
		errs = append(errs, fmt.Errorf("invalid DEDUP_TOP_K %d (must be 1..50)", c.DedupTopK))
	}
	if strings.TrimSpace(c.FallbackTeam) == "" {
		errs = append(errs, errors.New("FALLBACK_TEAM is required"))
	}

	// Jira credentials are all-or-nothing
	set := 0
	for _, v := range []string{c.JiraURL, c.JiraEmail, c.JiraAPIToken} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, errors.New("JIRA_URL, JIRA_EMAIL and JIRA_API_TOKEN must be set together"))
	}
	if c.JiraURL != "" {
		if u, err := url.Parse(c.JiraURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid JIRA_URL %q", c.JiraURL))
		}
	}
	if c.JiraProjectKey == "" {
		errs = append(errs, errors.New("JIRA_PROJECT_KEY is required"))
	}

	return errors.Join(errs...)
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	errs := []error{c.ValidatePipeline()}

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if strings.TrimSpace(strings.ReplaceAll(c.APIToken, ",", "")) == "" {
		errs = append(errs, errors.New("API_TOKEN is required"))
	}

	if c.ReseedSchedule != "" {
		if _, err := similarity.ParseSchedule(c.ReseedSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid RESEED_SCHEDULE %q: %w", c.ReseedSchedule, err))
		}
	}

	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	return errors.Join(errs...)
}
