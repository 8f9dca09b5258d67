package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

func TestToSDKParams(t *testing.T) {
	t.Parallel()

	req := &triage.LLMRequest{
		MaxTokens: 1024,
		System:    "you parse bug reports",
		Messages: []triage.Message{
			{Role: triage.RoleUser, Text: "Parse this bug report:\n\ncheckout broken"},
			{Role: triage.RoleAssistant, Text: "{}"},
		},
	}
	params := toSDKParams("claude-haiku-4-5", req)

	if params.Model != "claude-haiku-4-5" {
		t.Errorf("Model = %q", params.Model)
	}
	if params.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d, want 1024", params.MaxTokens)
	}
	if len(params.System) != 1 || params.System[0].Text != "you parse bug reports" {
		t.Errorf("System = %+v", params.System)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anthropic.MessageParamRoleUser {
		t.Errorf("role[0] = %q, want user", params.Messages[0].Role)
	}
	if params.Messages[1].Role != anthropic.MessageParamRoleAssistant {
		t.Errorf("role[1] = %q, want assistant", params.Messages[1].Role)
	}
	if tb := params.Messages[0].Content[0].OfText; tb == nil || tb.Text != req.Messages[0].Text {
		t.Errorf("content[0] = %+v", params.Messages[0].Content[0])
	}
}

func TestToSDKParams_NoSystem(t *testing.T) {
	t.Parallel()
	params := toSDKParams("m", &triage.LLMRequest{MaxTokens: 10})
	if len(params.System) != 0 {
		t.Errorf("System = %+v, want empty", params.System)
	}
}

func TestFromSDKResponse_TextContent(t *testing.T) {
	t.Parallel()

	msg := &anthropic.Message{
		Model: "claude-haiku-4-5",
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: `{"title":`},
			{Type: "text", Text: `"x"}`},
		},
		StopReason: anthropic.StopReasonEndTurn,
		Usage:      anthropic.Usage{InputTokens: 100, OutputTokens: 50},
	}

	got := fromSDKResponse(msg)

	if got.Text != `{"title":"x"}` {
		t.Errorf("Text = %q", got.Text)
	}
	if got.StopReason != triage.StopEnd {
		t.Errorf("StopReason = %q, want %q", got.StopReason, triage.StopEnd)
	}
	if got.Usage.InputTokens != 100 || got.Usage.OutputTokens != 50 {
		t.Errorf("Usage = %+v", got.Usage)
	}
	if got.Model != "claude-haiku-4-5" {
		t.Errorf("Model = %q", got.Model)
	}
}

func TestFromSDKResponse_StopReasons(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sdk  anthropic.StopReason
		want triage.StopReason
	}{
		{"end_turn", anthropic.StopReasonEndTurn, triage.StopEnd},
		{"max_tokens", anthropic.StopReasonMaxTokens, triage.StopMaxTokens},
		{"other", anthropic.StopReason("refusal"), triage.StopReason("refusal")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := fromSDKResponse(&anthropic.Message{StopReason: tt.sdk})
			if got.StopReason != tt.want {
				t.Errorf("StopReason = %q, want %q", got.StopReason, tt.want)
			}
		})
	}
}

func TestSend_AgainstFakeAPI(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-haiku-4-5",
			"content": [{"type": "text", "text": "hello"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`)
	}))
	t.Cleanup(srv.Close)

	c := New("test-key", "claude-haiku-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	got, err := c.Send(context.Background(), &triage.LLMRequest{
		MaxTokens: 64,
		System:    "sys",
		Messages:  []triage.Message{{Role: triage.RoleUser, Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Text != "hello" || got.Usage.InputTokens != 12 || got.Usage.OutputTokens != 3 {
		t.Errorf("response = %+v", got)
	}
	if gotBody["model"] != "claude-haiku-4-5" {
		t.Errorf("request model = %v", gotBody["model"])
	}
	if gotBody["max_tokens"] != float64(64) {
		t.Errorf("request max_tokens = %v", gotBody["max_tokens"])
	}
}

func TestSend_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`)
	}))
	t.Cleanup(srv.Close)

	c := New("k", "m", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	if _, err := c.Send(context.Background(), &triage.LLMRequest{MaxTokens: 1}); err == nil {
		t.Fatal("expected error")
	}
}
