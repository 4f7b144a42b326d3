package builtin

import (
	"context"
	"fmt"
	"strings"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/llm"
	"chemagent/internal/tools"
)

const (
	aiExpertDescription  = "An AI expert that can answer any questions. When there are no other tools that can meet your need, this tool can be used as the last resort. Input your question, returns the answer."
	aiExpertSystemPrompt = "You are an expert chemist. Your task is to answer the following question to your best ability. You can think step by step, and your answer should contain all the information necessary to answer the question."
)

// AiExpert forwards a question to a language model.
type AiExpert struct {
	client llm.Client
}

// NewAiExpert returns the tool backed by client.
func NewAiExpert(client llm.Client) *AiExpert {
	return &AiExpert{client: client}
}

func (a *AiExpert) Name() string        { return tools.AiExpert }
func (a *AiExpert) Description() string { return aiExpertDescription }

// Invoke asks the model; a model failure ends the run.
func (a *AiExpert) Invoke(ctx context.Context, input, _ string) (string, error) {
	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: aiExpertSystemPrompt},
			{Role: llm.RoleUser, Content: "Question: " + input},
		},
		NumReturn: 1,
	})
	if err != nil {
		return "", chemerrors.Fatal(tools.AiExpert, fmt.Sprintf("model %s failed: %v", a.client.Model(), err), err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
