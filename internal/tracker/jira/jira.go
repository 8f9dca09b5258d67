// Package jira creates issues through the Jira Cloud REST API v3.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

const httpTimeout = 15 * time.Second

// ErrNotConfigured is returned by New when a credential is missing.
var ErrNotConfigured = errors.New("jira: base url, email and api token are required")

// Client posts outbound payloads to Jira.
type Client struct {
	baseURL string
	email   string
	token   string
	http    *http.Client
}

// New returns a client for the Jira instance at baseURL using basic auth
// with an account email and API token.
func New(baseURL, email, token string) (*Client, error) {
	if baseURL == "" || email == "" || token == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		email:   email,
		token:   token,
		http: &http.Client{
			Timeout:   httpTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type createResponse struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// CreateIssue implements triage.Tracker.
func (c *Client) CreateIssue(ctx context.Context, payload *triage.OutboundPayload) (*triage.IssueRef, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jira: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/api/3/issue", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("jira: create request: %w", err)
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req) //nolint:gosec // baseURL is from trusted config
	if err != nil {
		return nil, fmt.Errorf("jira: failed to connect: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("jira: read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("jira: API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var out createResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("jira: decode response: %w", err)
	}
	if out.Key == "" {
		return nil, errors.New("jira: response has no issue key")
	}
	return &triage.IssueRef{Key: out.Key, URL: c.baseURL + "/browse/" + out.Key}, nil
}
