package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chemagent/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoExecutor struct{}

func (echoExecutor) Execute(_ context.Context, _, code string, _ time.Duration) (string, error) {
	return code, nil
}

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chemagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  file: \"\"\n"+body), 0o600))
	return path
}

func newTestCLI(client *llm.ScriptedClient) (*cli, *bytes.Buffer) {
	stderr := &bytes.Buffer{}
	state := &cli{
		stderr:   stderr,
		executor: echoExecutor{},
		clients: func(string) (llm.Client, error) {
			return client, nil
		},
	}
	return state, stderr
}

func execute(t *testing.T, state *cli, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommandWith(state)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunJSON(t *testing.T) {
	client := llm.NewScriptedClient(
		"Thought: Run some Python.\nTool: PythonREPL\nTool Input: print(1 + 1)",
		"Thought: The kernel echoed the code.\nAnswer: print(1 + 1)",
	)
	state, _ := newTestCLI(client)
	path := writeTestConfig(t, "tools:\n  include: [PythonREPL]\n")

	out, err := execute(t, state, "--config", path, "run", "--json", "--conversation", "conv-7", "  echo please  ")
	require.NoError(t, err)

	var report runReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "echo please", report.Question)
	assert.Equal(t, "print(1 + 1)", report.Answer)
	assert.Equal(t, "conv-7", report.ConversationID)
	require.Len(t, report.Chain, 2)
	assert.Equal(t, "PythonREPL", report.Chain[0].Tool)
	assert.Equal(t, "Answer", report.Chain[1].Tool)
	assert.Len(t, client.Requests(), 2)
}

func TestRunTranscriptAndFlags(t *testing.T) {
	client := llm.NewScriptedClient("Thought: Known.\nAnswer: 42")
	state, stderr := newTestCLI(client)
	path := writeTestConfig(t, "")

	out, err := execute(t, state, "--config", path, "--max-iterations", "5", "--include-tools", "PythonREPL",
		"run", "--plain", "What is six times seven?")
	require.NoError(t, err)
	assert.Contains(t, out, "42")
	assert.Contains(t, stderr.String(), "--- Step 1 ---")
	assert.Contains(t, stderr.String(), "Final Answer: 42")

	assert.Equal(t, 5, state.cfg.Agent.MaxIterations)
	assert.Equal(t, []string{"PythonREPL"}, state.cfg.Tools.Include)
	system := client.Requests()[0].Messages[0].Content
	assert.Contains(t, system, "{PythonREPL}")
}

func TestRunRequiresQuestion(t *testing.T) {
	state, _ := newTestCLI(llm.NewScriptedClient())
	_, err := execute(t, state, "--config", writeTestConfig(t, ""), "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a question is required")
}

func TestRunWithDemonstration(t *testing.T) {
	demo := []llm.Message{
		{Role: llm.RoleUser, Content: "Question: What is water?\n\n"},
		{Role: llm.RoleAssistant, Content: "Thought: Known.\nAnswer: H2O"},
	}
	data, err := json.Marshal(demo)
	require.NoError(t, err)
	demoPath := filepath.Join(t.TempDir(), "demo.json")
	require.NoError(t, os.WriteFile(demoPath, data, 0o600))

	client := llm.NewScriptedClient("Thought: Known.\nAnswer: NaCl")
	state, _ := newTestCLI(client)
	_, err = execute(t, state, "--config", writeTestConfig(t, ""), "run", "-q", "--plain", "--demo", demoPath, "What is salt?")
	require.NoError(t, err)

	msgs := client.Requests()[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "Question: What is water?\n\n", msgs[1].Content)
	assert.Equal(t, "Question: What is salt?\n\n", msgs[3].Content)
}

func TestToolsCommandListsEquippedTools(t *testing.T) {
	state, _ := newTestCLI(llm.NewScriptedClient())
	out, err := execute(t, state, "--config", writeTestConfig(t, ""), "tools", "--exclude-tools", "WikipediaSearch")
	require.NoError(t, err)
	assert.Contains(t, out, "PythonREPL")
	assert.Contains(t, out, "AiExpert")
	assert.NotContains(t, out, "\nWikipediaSearch\n")
	assert.Contains(t, out, "missing:")
}

func TestConfigCommandRedactsKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-abcdefghijklmnop")
	state, _ := newTestCLI(llm.NewScriptedClient())
	out, err := execute(t, state, "--config", writeTestConfig(t, ""), "config", "--sources")
	require.NoError(t, err)
	assert.Contains(t, out, "sk-a****mnop")
	assert.NotContains(t, out, "sk-abcdefghijklmnop")
	assert.Contains(t, out, "# openai_api_key: environment")
}

func TestVersionSkipsConfig(t *testing.T) {
	state, _ := newTestCLI(nil)
	out, err := execute(t, state, "--config", "/does/not/exist.yaml", "version")
	require.NoError(t, err)
	assert.Equal(t, "chemagent dev\n", out)
}
