// Package agent implements the LLM-backed extraction and classification
// collaborators of the triage pipeline.
package agent

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sentinel/internal/agent")

// Agent names used for metrics and span attributes.
const (
	NameIntake  = "intake"
	NameLabeler = "labeler"
)

//go:embed prompts/intake_system.md
var intakePrompt string

//go:embed prompts/labeler_system.md
var labelerPrompt string

// Observer receives per-call accounting. *triage.Metrics satisfies it.
type Observer interface {
	ObserveLLMCall(agent string, inputTokens, outputTokens int, duration float64, failed bool)
}

type nopObserver struct{}

func (nopObserver) ObserveLLMCall(string, int, int, float64, bool) {}

// caller wraps a provider with tracing, logging and accounting.
type caller struct {
	name      string
	provider  triage.Provider
	system    string
	maxTokens int
	observer  Observer
}

func (c *caller) call(ctx context.Context, user string) (string, error) {
	ctx, span := tracer.Start(ctx, "agent."+c.name)
	defer span.End()

	start := time.Now()
	resp, err := c.provider.Send(ctx, &triage.LLMRequest{
		MaxTokens: c.maxTokens,
		System:    c.system,
		Messages:  []triage.Message{{Role: triage.RoleUser, Text: user}},
	})
	dur := time.Since(start).Seconds()

	if err != nil {
		c.observer.ObserveLLMCall(c.name, 0, 0, dur, true)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%s llm call: %w", c.name, err)
	}

	c.observer.ObserveLLMCall(c.name, resp.Usage.InputTokens, resp.Usage.OutputTokens, dur, false)
	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
		attribute.String("gen_ai.response.finish_reason", string(resp.StopReason)),
	)
	log.FromContext(ctx).Info(ctx, "llm call complete",
		"agent", c.name,
		"model", resp.Model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_s", dur,
	)

	if resp.StopReason == triage.StopMaxTokens {
		return "", fmt.Errorf("%s: response truncated at %d tokens", c.name, c.maxTokens)
	}
	return resp.Text, nil
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		} else {
			text = text[3:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// decodeObject decodes exactly one JSON object from text into v.
func decodeObject(text string, v any) error {
	dec := json.NewDecoder(strings.NewReader(stripCodeFences(text)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("decode model output: trailing data after JSON object")
	}
	return nil
}

// ticketText renders a parsed ticket as the labeler's input.
func ticketText(p *triage.ParsedTicket) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Title: %s\nDescription: %s", p.Title, p.Description)
	if p.Component != "" {
		fmt.Fprintf(&b, "\nComponent: %s", p.Component)
	}
	if p.StepsToReproduce != "" {
		fmt.Fprintf(&b, "\nSteps to reproduce: %s", p.StepsToReproduce)
	}
	if p.Environment != "" {
		fmt.Fprintf(&b, "\nEnvironment: %s", p.Environment)
	}
	return b.String()
}
