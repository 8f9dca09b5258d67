// Package gemini adapts the Google Gen AI SDK to triage.Provider.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

// Client implements triage.Provider for Gemini models.
type Client struct {
	sdk   *genai.Client
	model string
}

// Option tweaks the SDK client config.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) { c.HTTPOptions.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *genai.ClientConfig) { c.HTTPClient = hc }
}

// New creates a Gemini API client for model.
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, o := range opts {
		o(cfg)
	}
	sdk, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{sdk: sdk, model: model}, nil
}

// Send performs one GenerateContent call.
func (c *Client) Send(ctx context.Context, req *triage.LLMRequest) (*triage.LLMResponse, error) {
	contents, config := toSDKRequest(req)
	resp, err := c.sdk.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	out, err := fromSDKResponse(resp)
	if err != nil {
		return nil, err
	}
	if out.Model == "" {
		out.Model = c.model
	}
	return out, nil
}

func toSDKRequest(req *triage.LLMRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == triage.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(req.MaxTokens), //nolint:gosec // token budgets are small
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return contents, config
}

func fromSDKResponse(resp *genai.GenerateContentResponse) (*triage.LLMResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no candidates")
	}
	cand := resp.Candidates[0]

	var text strings.Builder
	for _, p := range cand.Content.Parts {
		if p != nil && !p.Thought {
			text.WriteString(p.Text)
		}
	}

	out := &triage.LLMResponse{
		Text:       text.String(),
		StopReason: stopReason(cand.FinishReason),
		Model:      resp.ModelVersion,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = triage.Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
		}
	}
	return out, nil
}

func stopReason(fr genai.FinishReason) triage.StopReason {
	switch fr {
	case genai.FinishReasonStop, "":
		return triage.StopEnd
	case genai.FinishReasonMaxTokens:
		return triage.StopMaxTokens
	default:
		return triage.StopReason(strings.ToLower(string(fr)))
	}
}
