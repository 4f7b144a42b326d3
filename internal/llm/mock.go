package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays canned completions in order. It backs the agent and
// CLI tests.
type ScriptedClient struct {
	ModelName string
	Replies   []string
	// Errors, when set for an index, is returned instead of the reply.
	Errors map[int]error

	mu       sync.Mutex
	requests []CompletionRequest
}

// NewScriptedClient returns a client that answers with replies in order.
func NewScriptedClient(replies ...string) *ScriptedClient {
	return &ScriptedClient{ModelName: "scripted", Replies: replies}
}

// Complete returns the next scripted reply, prefixed like a real backend.
func (m *ScriptedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := len(m.requests)
	m.requests = append(m.requests, cloneRequest(req))
	if err, ok := m.Errors[idx]; ok && err != nil {
		return nil, err
	}
	if idx >= len(m.Replies) {
		return nil, fmt.Errorf("scripted client exhausted after %d replies", len(m.Replies))
	}
	_, prefix, err := withPrefill(req.Messages, req.Prefix)
	if err != nil {
		return nil, err
	}
	return &CompletionResponse{
		Choices:    []string{finishChoice(prefix, m.Replies[idx])},
		StopReason: "end_turn",
	}, nil
}

func (m *ScriptedClient) Model() string {
	if m.ModelName == "" {
		return "scripted"
	}
	return m.ModelName
}

// Requests returns copies of every request received so far.
func (m *ScriptedClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func cloneRequest(req CompletionRequest) CompletionRequest {
	req.Messages = append([]Message(nil), req.Messages...)
	req.StopSequences = append([]string(nil), req.StopSequences...)
	return req
}
