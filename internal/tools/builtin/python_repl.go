package builtin

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/kernel"
	"chemagent/internal/logging"
	"chemagent/internal/tools"
)

const pythonREPLDescription = "A Python shell that can execute python commands. Input should be a valid python command. You can input `!pip install ...` to install packages if needed."

// figureOutputLimit is the length above which a bare matplotlib figure repr
// is hidden from the model.
const figureOutputLimit = 200

var (
	leadingCodeNoise  = regexp.MustCompile("^(\\s|`)*(?i:python)?\\s*")
	trailingCodeNoise = regexp.MustCompile("(\\s|`)*$")
)

// SanitizePythonInput removes surrounding whitespace, code fences, a leading
// "python" word and stray quotes from model-written code.
func SanitizePythonInput(query string) string {
	query = strings.TrimSpace(query)
	query = leadingCodeNoise.ReplaceAllString(query, "")
	query = strings.TrimLeft(query, `"`)
	query = strings.TrimLeft(query, "'")
	query = strings.TrimLeftFunc(query, unicode.IsSpace)
	query = trailingCodeNoise.ReplaceAllString(query, "")
	query = strings.TrimRight(query, `"`)
	query = strings.TrimRight(query, "'")
	return strings.TrimRightFunc(query, unicode.IsSpace)
}

// PythonREPL runs code in the conversation's kernel session.
type PythonREPL struct {
	executor kernel.Executor
	timeout  time.Duration
	sanitize bool
	logger   logging.Logger
}

// PythonREPLOptions tunes NewPythonREPL.
type PythonREPLOptions struct {
	// Timeout bounds one execution; zero uses the executor default.
	Timeout         time.Duration
	DisableSanitize bool
	Logger          logging.Logger
}

// NewPythonREPL builds the tool on top of a local manager or a remote client.
func NewPythonREPL(executor kernel.Executor, opts PythonREPLOptions) *PythonREPL {
	return &PythonREPL{
		executor: executor,
		timeout:  opts.Timeout,
		sanitize: !opts.DisableSanitize,
		logger:   logging.OrNop(opts.Logger),
	}
}

func (p *PythonREPL) Name() string        { return tools.PythonREPL }
func (p *PythonREPL) Description() string { return pythonREPLDescription }

// Invoke executes input in the kernel bound to sessionID. Executor failures
// are fatal.
func (p *PythonREPL) Invoke(ctx context.Context, input, sessionID string) (string, error) {
	code := input
	if p.sanitize {
		code = SanitizePythonInput(input)
	}
	out, err := p.executor.Execute(ctx, sessionID, code, p.timeout)
	if err != nil {
		return "", chemerrors.Fatal(tools.PythonREPL, fmt.Sprintf("An error occurred while running the python code: %v", err), err)
	}
	return out, nil
}

// CheckOutput escalates code that asked for output but printed nothing, and
// hides raw figure reprs. A silent cell without print is a normal result.
func (p *PythonREPL) CheckOutput(input, output string) error {
	trimmed := strings.TrimSpace(output)
	switch {
	case trimmed == kernel.NoOutputSentinel && requestsOutput(input):
		msg := fmt.Sprintf("Python code executed successfully with no output. Need a check. Tool Input: \n=== Code Start ===\n%s\n=== Code End ===", input)
		return chemerrors.Fatal(tools.PythonREPL, msg, nil)
	case strings.HasPrefix(trimmed, "<Figure size") && len(trimmed) > figureOutputLimit:
		p.logger.Debug("Hiding figure output of %d bytes", len(trimmed))
		return chemerrors.Recoverable(tools.PythonREPL, "[Figure not shown]")
	}
	return nil
}

// requestsOutput mirrors the print heuristic the session manager applies
// before replacing a kernel.
func requestsOutput(code string) bool {
	return strings.Contains(code, "print")
}
