// Package pipeline assembles the triage engine and its collaborators from
// application configuration. Both the server and triagectl build through it.
package pipeline

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/agent"
	"github.com/linnemanlabs/sentinel/internal/cfg"
	"github.com/linnemanlabs/sentinel/internal/llm/claude"
	"github.com/linnemanlabs/sentinel/internal/llm/gemini"
	"github.com/linnemanlabs/sentinel/internal/similarity"
	"github.com/linnemanlabs/sentinel/internal/skills"
	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Deps are the pieces the caller owns. Metrics may be nil.
type Deps struct {
	Logger  log.Logger
	Metrics *triage.Metrics
	Index   triage.Searcher

	// Extract and Classify override the providers built from config.
	Extract  triage.Provider
	Classify triage.Provider
}

// LoadRegistry returns the skills registry named by c.SkillsFile, or the
// built-in one when it is empty.
func LoadRegistry(c *cfg.Config) (*skills.Registry, error) {
	if c.SkillsFile == "" {
		return skills.Default(), nil
	}
	reg, err := skills.Load(c.SkillsFile)
	if err != nil {
		return nil, fmt.Errorf("load skills file: %w", err)
	}
	return reg, nil
}

// Providers builds the extraction and classification LLM backends. Claude
// always extracts; classification uses c.ClassifierProvider.
func Providers(ctx context.Context, c *cfg.Config) (extract, classify triage.Provider, err error) {
	cl := claude.New(c.ClaudeAPIKey, c.ClaudeModel)
	switch c.ClassifierProvider {
	case cfg.ProviderClaude:
		return cl, cl, nil
	case cfg.ProviderGemini, "":
		gm, err := gemini.New(ctx, c.GeminiAPIKey, c.GeminiModel)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini provider: %w", err)
		}
		return cl, gm, nil
	default:
		return nil, nil, fmt.Errorf("unknown classifier provider %q", c.ClassifierProvider)
	}
}

// Build wires the agents, router and stages into an Engine.
func Build(ctx context.Context, c *cfg.Config, d Deps) (*triage.Engine, error) {
	L := d.Logger
	if L == nil {
		L = log.Nop()
	}
	if d.Index == nil {
		return nil, fmt.Errorf("similarity index is required")
	}

	reg, err := LoadRegistry(c)
	if err != nil {
		return nil, err
	}
	router, err := triage.NewRouter(reg, c.FallbackTeam, c.JiraProjectKey)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	exP, clP := d.Extract, d.Classify
	if exP == nil || clP == nil {
		e, k, err := Providers(ctx, c)
		if err != nil {
			return nil, err
		}
		if exP == nil {
			exP = e
		}
		if clP == nil {
			clP = k
		}
	}

	var obs agent.Observer
	var hooks triage.EngineHooks
	if d.Metrics != nil {
		obs = d.Metrics
		hooks = d.Metrics.Hooks()
	}

	stages := triage.NewStages(
		agent.NewExtractor(exP, obs),
		agent.NewClassifier(clP, obs),
		d.Index,
		router,
		c.SimilarityThreshold,
		c.DedupTopK,
	)

	L.Info(ctx, "triage pipeline ready",
		"teams", reg.Len(),
		"fallback_team", c.FallbackTeam,
		"classifier_provider", c.ClassifierProvider,
		"similarity_threshold", c.SimilarityThreshold,
		"dedup_top_k", c.DedupTopK,
	)
	return triage.NewEngine(stages, L, hooks), nil
}

// SeedIndex loads c.SeedFile (or the built-in corpus) into idx when it is
// not already populated.
func SeedIndex(ctx context.Context, c *cfg.Config, idx similarity.Index, logger log.Logger) error {
	tickets, err := similarity.LoadSeedFile(c.SeedFile)
	if err != nil {
		return err
	}
	if _, err := similarity.Seed(ctx, idx, tickets, logger); err != nil {
		return fmt.Errorf("seed similarity index: %w", err)
	}
	return nil
}
