package agent

import (
	"context"
	"strings"
	"testing"

	"chemagent/internal/llm"
	"chemagent/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDraft(t *testing.T) {
	conversation := []llm.Message{
		{Role: llm.RoleSystem, Content: "system"},
		{Role: llm.RoleUser, Content: "Question: q\n\n"},
		{Role: llm.RoleAssistant, Content: "Tool: SMILES2Weight\nTool Input: CCO\n<END_INPUT>"},
		{Role: llm.RoleUser, Content: "Tool Output: 46.04"},
		{Role: llm.RoleAssistant, Content: "Answer: 46.04"},
	}
	want := "===== Draft Start =====\n" +
		"--- Step 1 ---\nTool: SMILES2Weight\nTool Input: CCO\n<END_INPUT>\n" +
		"Tool Output: 46.04\n\n" +
		"--- Step 2 ---\nAnswer: 46.04\n" +
		"\n===== Draft End ====="
	assert.Equal(t, want, BuildDraft(conversation))
	assert.Equal(t, "===== Draft Start =====\n\n===== Draft End =====", BuildDraft(conversation[:2]))
}

func TestRephrasingAgentUsesPrefill(t *testing.T) {
	model := llm.NewScriptedClient("  Ethanol has a molecular weight of 46.04 g/mol.  ")
	r := NewRephrasingAgent(model, nil)

	out, err := r.RunWithDraft(context.Background(), "Weight of ethanol?", "one sentence", "draft text")
	require.NoError(t, err)
	assert.Equal(t, "Ethanol has a molecular weight of 46.04 g/mol.", out)

	reqs := model.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, rephrasePrefix, reqs[0].Prefix)
	require.Len(t, reqs[0].Messages, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, "Question: Weight of ethanol?\n\nSolution draft:\ndraft text\n\nFormat requirement: one sentence")

	model = llm.NewScriptedClient("answer")
	_, err = NewRephrasingAgent(model, nil).RunWithDraft(context.Background(), "q", "", "d")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(model.Requests()[0].Messages[0].Content, "Solution draft:\nd\n\n"))
}

func TestResolveModels(t *testing.T) {
	rec := &logging.Recorder{}
	got := ResolveModels("", Models{Rephrasing: "claude-3-5-sonnet"}, rec)
	assert.Equal(t, Models{ToolAgent: DefaultModel, Tools: DefaultModel, Rephrasing: "claude-3-5-sonnet"}, got)
	assert.Equal(t, []string{
		"INFO: Using model gpt-4o-2024-08-06 for tool agent.",
		"INFO: Using model gpt-4o-2024-08-06 for tools.",
	}, rec.Lines)
}

func TestChemAgentRun(t *testing.T) {
	toolModel := llm.NewScriptedClient(
		"Thought: check weight\nTool: SMILES2Weight\nTool Input: CCO",
		"Answer: 46.04",
	)
	ta, err := NewToolAgent(toolModel, newTestRegistry(t, weightTool(new([]toolCall))))
	require.NoError(t, err)

	rec := &logging.Recorder{}
	plain, err := NewChemAgent(ta, nil, rec)
	require.NoError(t, err)

	answer, res, err := plain.Run(context.Background(), "  What is the weight of ethanol?\n", ChemRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "46.04", answer)
	assert.Equal(t, "Question: What is the weight of ethanol?\n\n", res.Conversation[1].Content)
	assert.Contains(t, rec.Lines, "INFO: Final Answer: 46.04")

	_, _, err = plain.Run(context.Background(), "q", ChemRunOptions{Rephrase: true})
	require.Error(t, err)
}

func TestAnswerOfRequiresTerminalAnswer(t *testing.T) {
	answer, err := answerOf([]ToolUseStep{{Tool: "SMILES2Weight", Output: "46"}, {Tool: AnswerTool, Output: "46.04"}})
	require.NoError(t, err)
	assert.Equal(t, "46.04", answer)

	_, err = answerOf([]ToolUseStep{{Tool: "SMILES2Weight", Output: "46"}})
	require.Error(t, err)
	assert.Equal(t, `agent: last chain step is "SMILES2Weight", not "Answer"`, err.Error())

	if _, err := answerOf(nil); err == nil {
		t.Fatalf("empty chain must be rejected")
	}
}

func TestChemAgentRephrases(t *testing.T) {
	toolModel := llm.NewScriptedClient("Answer: 46.04")
	ta, err := NewToolAgent(toolModel, newTestRegistry(t, weightTool(new([]toolCall))))
	require.NoError(t, err)
	rephraseModel := llm.NewScriptedClient("The weight is 46.04 g/mol.")

	c, err := NewChemAgent(ta, NewRephrasingAgent(rephraseModel, nil), nil)
	require.NoError(t, err)

	answer, _, err := c.Run(context.Background(), "Weight?", ChemRunOptions{Rephrase: true, Format: "a sentence"})
	require.NoError(t, err)
	assert.Equal(t, "The weight is 46.04 g/mol.", answer)

	prompt := rephraseModel.Requests()[0].Messages[0].Content
	assert.Contains(t, prompt, "--- Step 1 ---\nAnswer: 46.04\n")
	assert.Contains(t, prompt, "Format requirement: a sentence")
}
