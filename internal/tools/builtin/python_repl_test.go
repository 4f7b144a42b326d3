package builtin

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/kernel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	out     string
	err     error
	convID  string
	code    string
	timeout time.Duration
}

func (f *fakeExecutor) Execute(_ context.Context, conversationID, code string, timeout time.Duration) (string, error) {
	f.convID, f.code, f.timeout = conversationID, code, timeout
	return f.out, f.err
}

func TestSanitizePythonInput(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```python\nprint(1)\n```", "print(1)"},
		{"  \"print('hi')\"  ", "print('hi')"},
		{"PYTHON print(2)", "print(2)"},
		{"`x = 1`", "x = 1"},
		{"'import os'", "import os"},
		{"print(3)", "print(3)"},
	}
	for _, tc := range cases {
		if got := SanitizePythonInput(tc.in); got != tc.want {
			t.Fatalf("SanitizePythonInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPythonREPLPassesConversationAndSanitizedCode(t *testing.T) {
	exec := &fakeExecutor{out: "2\n"}
	repl := NewPythonREPL(exec, PythonREPLOptions{Timeout: 5 * time.Second})

	out, err := repl.Invoke(context.Background(), "```python\nprint(1+1)\n```", "conv-42")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
	assert.Equal(t, "conv-42", exec.convID)
	assert.Equal(t, "print(1+1)", exec.code)
	assert.Equal(t, 5*time.Second, exec.timeout)
}

func TestPythonREPLExecutorFailureIsFatal(t *testing.T) {
	exec := &fakeExecutor{err: &chemerrors.ConnectionError{Endpoint: "http://gw", Attempts: 5, Err: errors.New("refused")}}
	repl := NewPythonREPL(exec, PythonREPLOptions{})

	_, err := repl.Invoke(context.Background(), "print(1)", "")
	require.Error(t, err)
	assert.False(t, chemerrors.IsRecoverableToolError(err))
	assert.Contains(t, err.Error(), "An error occurred while running the python code")
}

func TestPythonREPLCheckOutput(t *testing.T) {
	repl := NewPythonREPL(&fakeExecutor{}, PythonREPLOptions{})

	assert.NoError(t, repl.CheckOutput("x = 1", kernel.NoOutputSentinel+"\n"), "silent assignment is a normal result")
	assert.NoError(t, repl.CheckOutput("import numpy as np", kernel.NoOutputSentinel))

	err := repl.CheckOutput("print(x)", kernel.NoOutputSentinel+"\n")
	require.Error(t, err)
	assert.False(t, chemerrors.IsRecoverableToolError(err))
	assert.Equal(t, "Python code executed successfully with no output. Need a check. Tool Input: \n=== Code Start ===\nprint(x)\n=== Code End ===", chemerrors.ObservationMessage(err))

	figure := "<Figure size 640x480 with 1 Axes>" + strings.Repeat("A", 200)
	err = repl.CheckOutput("plot()", figure)
	require.Error(t, err)
	assert.True(t, chemerrors.IsRecoverableToolError(err))
	assert.Equal(t, "[Figure not shown]", chemerrors.ObservationMessage(err))

	assert.NoError(t, repl.CheckOutput("plot()", "<Figure size 640x480 with 1 Axes>"))
	assert.NoError(t, repl.CheckOutput("print(1)", "1"))
}
