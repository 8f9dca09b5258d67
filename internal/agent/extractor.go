package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

const extractorMaxTokens = 1024

// Extractor turns report text into a ParsedTicket using an LLM.
type Extractor struct {
	c *caller
}

// NewExtractor returns an Extractor over p. A nil observer is allowed.
func NewExtractor(p triage.Provider, obs Observer) *Extractor {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Extractor{c: &caller{
		name:      NameIntake,
		provider:  p,
		system:    intakePrompt,
		maxTokens: extractorMaxTokens,
		observer:  obs,
	}}
}

// parsedWire mirrors triage.ParsedTicket with presence tracking for the
// required fields.
type parsedWire struct {
	Title               *string `json:"title"`
	Description         *string `json:"description"`
	Component           string  `json:"component"`
	StepsToReproduce    string  `json:"steps_to_reproduce"`
	Environment         string  `json:"environment"`
	ReporterContext     string  `json:"reporter_context"`
	IsValid             *bool   `json:"is_valid"`
	ClarificationReason string  `json:"clarification_reason"`
}

// Extract implements triage.Extractor.
func (e *Extractor) Extract(ctx context.Context, text string) (*triage.ParsedTicket, error) {
	out, err := e.c.call(ctx, "Parse this bug report:\n\n"+text)
	if err != nil {
		return nil, err
	}

	var w parsedWire
	if err := decodeObject(out, &w); err != nil {
		return nil, err
	}
	switch {
	case w.IsValid == nil:
		return nil, errors.New("model output missing is_valid")
	case *w.IsValid && (w.Title == nil || *w.Title == ""):
		return nil, errors.New("model output missing title")
	case *w.IsValid && w.Description == nil:
		return nil, errors.New("model output missing description")
	}

	p := &triage.ParsedTicket{
		Component:           w.Component,
		StepsToReproduce:    w.StepsToReproduce,
		Environment:         w.Environment,
		ReporterContext:     w.ReporterContext,
		IsValid:             *w.IsValid,
		ClarificationReason: w.ClarificationReason,
	}
	if w.Title != nil {
		p.Title = *w.Title
	}
	if w.Description != nil {
		p.Description = *w.Description
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}
	return p, nil
}
