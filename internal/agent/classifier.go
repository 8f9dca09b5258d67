package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

const classifierMaxTokens = 512

// Classifier labels a parsed ticket using an LLM.
type Classifier struct {
	c *caller
}

// NewClassifier returns a Classifier over p. A nil observer is allowed.
func NewClassifier(p triage.Provider, obs Observer) *Classifier {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Classifier{c: &caller{
		name:      NameLabeler,
		provider:  p,
		system:    labelerPrompt,
		maxTokens: classifierMaxTokens,
		observer:  obs,
	}}
}

type classificationWire struct {
	Severity   triage.Severity  `json:"severity"`
	Priority   triage.Priority  `json:"priority"`
	IssueType  triage.IssueType `json:"issue_type"`
	Labels     []string         `json:"labels"`
	Confidence *float64         `json:"confidence"`
}

// Classify implements triage.Classifier.
func (c *Classifier) Classify(ctx context.Context, ticket *triage.ParsedTicket) (*triage.Classification, error) {
	out, err := c.c.call(ctx, ticketText(ticket))
	if err != nil {
		return nil, err
	}

	var w classificationWire
	if err := decodeObject(out, &w); err != nil {
		return nil, err
	}
	if w.Confidence == nil {
		return nil, errors.New("model output missing confidence")
	}

	cls := &triage.Classification{
		Severity:   w.Severity,
		Priority:   w.Priority,
		IssueType:  w.IssueType,
		Labels:     w.Labels,
		Confidence: *w.Confidence,
	}
	if cls.Labels == nil {
		cls.Labels = []string{}
	}
	if err := cls.Validate(); err != nil {
		return nil, fmt.Errorf("model output: %w", err)
	}
	return cls, nil
}
