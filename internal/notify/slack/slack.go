// Package slack sends triage notifications to Slack via incoming webhooks.
package slack

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

const (
	maxTraceLen = 2900
	maxTitleLen = 110
	httpTimeout = 10 * time.Second
)

// Notifier sends triage results to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Send posts a triage result to the configured Slack webhook.
func (n *Notifier) Send(ctx context.Context, result *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}
	msg := buildMessage(result)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	n.logger.Info(ctx, "slack notification sent", "triage_id", result.ID, "decision", result.Decision)
	return nil
}

func buildMessage(r *triage.Result) *slack.WebhookMessage {
	blocks := []slack.Block{
		headerBlock(r),
		slack.NewDividerBlock(),
		fieldsBlock(r),
		slack.NewDividerBlock(),
		traceBlock(r),
		slack.NewDividerBlock(),
		contextBlock(r),
	}
	return &slack.WebhookMessage{
		Text:   fallbackText(r),
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func fallbackText(r *triage.Result) string {
	return fmt.Sprintf("Triage %s: %s", r.ID, decisionTitle(r))
}

func headerBlock(r *triage.Result) *slack.HeaderBlock {
	text := fmt.Sprintf("%s %s: %s", decisionEmoji(r), decisionTitle(r), truncate(ticketTitle(r), maxTitleLen))
	return slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, text, true, false))
}

func fieldsBlock(r *triage.Result) *slack.SectionBlock {
	field := func(label, value string) *slack.TextBlockObject {
		return slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*%s:* %s", label, value), false, false)
	}

	fields := []*slack.TextBlockObject{
		field("Decision", string(r.Decision)),
		field("Duration", fmt.Sprintf("%.1fs", r.Duration)),
	}
	rec := r.Record
	if rec != nil && rec.Classification != nil {
		c := rec.Classification
		fields = append(fields,
			field("Severity", string(c.Severity)),
			field("Priority", string(c.Priority)),
			field("Type", c.IssueType.DisplayName()),
		)
	}
	if rec != nil && rec.Assignment != nil {
		fields = append(fields, field("Team", fmt.Sprintf("%s (%s)", rec.Assignment.Team, rec.Assignment.Assignee)))
	}
	if rec != nil && rec.Dedup != nil && rec.Dedup.IsDuplicate {
		fields = append(fields, field("Duplicate of", fmt.Sprintf("%s %s", rec.Dedup.MatchID, rec.Dedup.MatchTitle)))
	}
	if r.IssueKey != "" {
		fields = append(fields, field("Issue", fmt.Sprintf("<%s|%s>", r.IssueURL, r.IssueKey)))
	}
	return slack.NewSectionBlock(nil, fields, nil)
}

func traceBlock(r *triage.Result) *slack.SectionBlock {
	var lines []string
	if r.Record != nil {
		lines = r.Record.Trace
		if r.Record.Error != "" {
			lines = append(lines[:len(lines):len(lines)], "Error: "+r.Record.Error)
		}
	}
	text := truncate(strings.Join(lines, "\n"), maxTraceLen)
	if text == "" {
		text = "_No trace available._"
	} else {
		text = "```" + text + "```"
	}
	return slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, "*Pipeline trace*\n"+text, false, false),
		nil, nil,
	)
}

func contextBlock(r *triage.Result) *slack.ContextBlock {
	ts := r.CompletedAt
	if ts.IsZero() {
		ts = r.CreatedAt
	}
	text := fmt.Sprintf("sentinel • triage %s • %s", r.ID, ts.UTC().Format("2006-01-02 15:04 UTC"))
	return slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
}

func ticketTitle(r *triage.Result) string {
	if r.Record != nil && r.Record.Parsed != nil && r.Record.Parsed.Title != "" {
		return r.Record.Parsed.Title
	}
	return "untitled report"
}

func decisionTitle(r *triage.Result) string {
	switch r.Decision {
	case triage.DecisionCreateTicket:
		return "Ticket Ready"
	case triage.DecisionDuplicate:
		return "Duplicate"
	case triage.DecisionNeedsClarification:
		return "Needs Clarification"
	default:
		return "Triage Failed"
	}
}

func decisionEmoji(r *triage.Result) string {
	switch r.Decision {
	case triage.DecisionCreateTicket:
		return "\U0001f7e2" // green circle
	case triage.DecisionDuplicate, triage.DecisionNeedsClarification:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f534" // red circle
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
