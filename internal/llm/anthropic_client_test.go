package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
)

func TestAnthropicClientCompleteSuccess(t *testing.T) {
	t.Parallel()

	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.URL.Path; got != "/messages" {
			t.Fatalf("unexpected path: %s", got)
		}
		if got := r.Header.Get(anthropicRequestHeaderKey); got != "sk-ant-test" {
			t.Fatalf("expected api key header, got %q", got)
		}
		if got := r.Header.Get(anthropicVersionHeaderKey); got == "" {
			t.Fatalf("expected anthropic version header")
		}

		var payload anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.Model != "claude-test" {
			t.Fatalf("unexpected model: %v", payload.Model)
		}
		if payload.System != "system rules" {
			t.Fatalf("unexpected system prompt: %v", payload.System)
		}
		if payload.MaxTokens != defaultAnthropicMaxTokens {
			t.Fatalf("expected default max tokens, got %d", payload.MaxTokens)
		}
		if len(payload.Messages) != 1 || payload.Messages[0].Role != RoleUser {
			t.Fatalf("system turn must be lifted out of messages: %+v", payload.Messages)
		}
		if len(payload.StopSequences) != 1 || payload.StopSequences[0] != "<END_INPUT>" {
			t.Fatalf("unexpected stop sequences %v", payload.StopSequences)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Thought: t\nTool: Name2SMILES\nTool Input: aspirin\n"}],"stop_reason":"stop_sequence","usage":{"input_tokens":10,"output_tokens":5}}`))
	}))

	client, err := NewAnthropicClient("claude-test", Config{APIKey: "sk-ant-test", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "system rules"},
			{Role: RoleUser, Content: "Question: aspirin?"},
		},
		StopSequences: []string{"<END_INPUT>"},
		NumReturn:     3,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("anthropic returns a single choice, got %d", len(resp.Choices))
	}
	if resp.Text() != "Thought: t\nTool: Name2SMILES\nTool Input: aspirin" {
		t.Fatalf("unexpected text %q", resp.Text())
	}
	if resp.StopReason != "stop_sequence" || resp.Usage.InputTokens != 10 {
		t.Fatalf("unexpected response metadata %+v", resp)
	}
}

func TestAnthropicClientPrefill(t *testing.T) {
	t.Parallel()

	server := newIPv4TestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if payload.System != "" {
			t.Fatalf("no system prompt expected, got %q", payload.System)
		}
		last := payload.Messages[len(payload.Messages)-1]
		if last.Role != RoleAssistant || last.Content != "Certainly." {
			t.Fatalf("expected prefill turn, got %+v", last)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":" The answer is 42.\n\n"}],"stop_reason":"end_turn"}`))
	}))

	client, _ := NewAnthropicClient("claude-test", Config{APIKey: "k", BaseURL: server.URL, MaxTokens: 512})
	resp, err := client.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "rephrase"}},
		Prefix:   "Certainly.\n",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if resp.Text() != "Certainly. The answer is 42." {
		t.Fatalf("unexpected text %q", resp.Text())
	}
}
