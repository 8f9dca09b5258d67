package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/linnemanlabs/sentinel/internal/triage"
)

func TestToSDKRequest(t *testing.T) {
	t.Parallel()

	contents, config := toSDKRequest(&triage.LLMRequest{
		MaxTokens: 512,
		System:    "label tickets",
		Messages: []triage.Message{
			{Role: triage.RoleUser, Text: "Title: x"},
			{Role: triage.RoleAssistant, Text: "{}"},
		},
	})

	if len(contents) != 2 {
		t.Fatalf("contents = %d, want 2", len(contents))
	}
	if contents[0].Role != string(genai.RoleUser) || contents[0].Parts[0].Text != "Title: x" {
		t.Errorf("contents[0] = %+v", contents[0])
	}
	if contents[1].Role != string(genai.RoleModel) {
		t.Errorf("contents[1].Role = %q, want model", contents[1].Role)
	}
	if config.MaxOutputTokens != 512 {
		t.Errorf("MaxOutputTokens = %d", config.MaxOutputTokens)
	}
	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "label tickets" {
		t.Errorf("SystemInstruction = %+v", config.SystemInstruction)
	}
}

func TestFromSDKResponse(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		ModelVersion: "gemini-2.5-flash",
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "thinking...", Thought: true},
				{Text: `{"severity":`},
				{Text: `"high"}`},
			}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     40,
			CandidatesTokenCount: 9,
		},
	}

	got, err := fromSDKResponse(resp)
	if err != nil {
		t.Fatalf("fromSDKResponse: %v", err)
	}
	if got.Text != `{"severity":"high"}` {
		t.Errorf("Text = %q", got.Text)
	}
	if got.StopReason != triage.StopEnd {
		t.Errorf("StopReason = %q", got.StopReason)
	}
	if got.Usage != (triage.Usage{InputTokens: 40, OutputTokens: 9}) {
		t.Errorf("Usage = %+v", got.Usage)
	}
	if got.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", got.Model)
	}
}

func TestFromSDKResponse_NoCandidates(t *testing.T) {
	t.Parallel()
	for _, resp := range []*genai.GenerateContentResponse{
		nil,
		{},
		{Candidates: []*genai.Candidate{{}}},
	} {
		if _, err := fromSDKResponse(resp); err == nil {
			t.Errorf("fromSDKResponse(%+v): expected error", resp)
		}
	}
}

func TestStopReason(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   genai.FinishReason
		want triage.StopReason
	}{
		{genai.FinishReasonStop, triage.StopEnd},
		{"", triage.StopEnd},
		{genai.FinishReasonMaxTokens, triage.StopMaxTokens},
		{genai.FinishReasonSafety, triage.StopReason("safety")},
	}
	for _, tt := range tests {
		if got := stopReason(tt.in); got != tt.want {
			t.Errorf("stopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), "", "gemini-2.5-flash"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSend_AgainstFakeAPI(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "ok"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 1}
		}`)
	}))
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), "test-key", "gemini-2.5-flash", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Send(context.Background(), &triage.LLMRequest{
		MaxTokens: 100,
		System:    "sys",
		Messages:  []triage.Message{{Role: triage.RoleUser, Text: "hi"}},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Text != "ok" || got.Usage.InputTokens != 7 {
		t.Errorf("response = %+v", got)
	}
	if got.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q, want fallback to configured model", got.Model)
	}
	if !strings.Contains(gotPath, "gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q", gotPath)
	}
	if _, ok := gotBody["systemInstruction"]; !ok {
		t.Errorf("request missing systemInstruction: %v", gotBody)
	}
}
