package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chemagent/internal/llm"
	"chemagent/internal/logging"
)

// RephrasingAgent rewrites a tool agent transcript into a final answer.
type RephrasingAgent struct {
	client llm.Client
	logger logging.Logger
}

// NewRephrasingAgent returns an agent that asks client for the rewrite.
func NewRephrasingAgent(client llm.Client, logger logging.Logger) *RephrasingAgent {
	return &RephrasingAgent{client: client, logger: logging.OrNop(logger)}
}

// Run builds a draft from conversation and asks the model for the final
// answer. An empty format adds no format requirement.
func (r *RephrasingAgent) Run(ctx context.Context, request, format string, conversation []llm.Message) (string, error) {
	return r.RunWithDraft(ctx, request, format, BuildDraft(conversation))
}

// RunWithDraft rephrases a caller-supplied draft.
func (r *RephrasingAgent) RunWithDraft(ctx context.Context, request, format, draft string) (string, error) {
	if r == nil || r.client == nil {
		return "", errors.New("agent: rephrasing model is not configured")
	}
	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: buildRephrasePrompt(request, draft, format)}},
		Prefix:    rephrasePrefix,
		NumReturn: 1,
	})
	if err != nil {
		return "", fmt.Errorf("rephrase: %w", err)
	}
	text := resp.Text()
	if !strings.HasPrefix(text, rephrasePrefix) {
		r.logger.Warn("Rephrased output does not start with the requested prefix.")
		return strings.TrimSpace(text), nil
	}
	return strings.TrimSpace(text[len(rephrasePrefix):]), nil
}

// BuildDraft renders the turns after the system prompt and the question as
// numbered steps. Assistant turns open a step; every other turn follows it.
func BuildDraft(conversation []llm.Message) string {
	var b strings.Builder
	b.WriteString("===== Draft Start =====\n")
	step := 1
	for i, turn := range conversation {
		if i < 2 {
			continue
		}
		if turn.Role == llm.RoleAssistant {
			fmt.Fprintf(&b, "--- Step %d ---\n%s\n", step, turn.Content)
			step++
			continue
		}
		b.WriteString(turn.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("\n===== Draft End =====")
	return b.String()
}
