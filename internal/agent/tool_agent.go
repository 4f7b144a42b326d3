package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/llm"
	"chemagent/internal/logging"
	"chemagent/internal/observability"
	"chemagent/internal/parser"
	tokenutil "chemagent/internal/token"
	"chemagent/internal/toolregistry"
	"chemagent/internal/utils/id"
)

// AnswerTool is the Tool value of the terminal step of every chain.
const AnswerTool = "Answer"

const (
	DefaultMaxIterations      = 40
	DefaultMaxErrorIterations = 3
)

// ErrShortDemonstration is returned when a demonstration has fewer than two turns.
var ErrShortDemonstration = errors.New("agent: a demonstration needs at least two turns")

// ToolUseStep records one decision of the model and what came of it.
type ToolUseStep struct {
	Thought   string `json:"thought"`
	Tool      string `json:"tool"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	Success   bool   `json:"success"`
	RawOutput string `json:"raw_output"`
}

// RunOptions tune a single ToolAgent.Run call.
type RunOptions struct {
	// Demonstration turns are placed between the system prompt and the
	// question. They are never modified and are left out of RunResult.Conversation.
	Demonstration []llm.Message
	// ConversationID is handed to tools so code runs in the same kernel
	// across calls.
	ConversationID string
	// Transcript receives a human-readable log of the run when set.
	Transcript io.Writer
}

// RunResult is everything a finished run produced.
type RunResult struct {
	Chain            []ToolUseStep
	Conversation     []llm.Message
	FullConversation []llm.Message
	Iterations       int
}

// FinalAnswer returns the output of the terminal step.
func (r *RunResult) FinalAnswer() string {
	if r == nil || len(r.Chain) == 0 {
		return ""
	}
	return r.Chain[len(r.Chain)-1].Output
}

// ToolAgent drives the Thought/Tool/Tool Input loop against one model and
// one registry. It holds no per-run state, so one agent can serve
// concurrent runs.
type ToolAgent struct {
	client             llm.Client
	registry           *toolregistry.Registry
	maxIterations      int
	maxErrorIterations int
	logger             logging.Logger
	metrics            *observability.MetricsCollector
	systemPrompt       string
}

// ToolAgentOption configures a ToolAgent.
type ToolAgentOption func(*ToolAgent)

// WithMaxIterations caps the number of tool calls in a run.
func WithMaxIterations(n int) ToolAgentOption {
	return func(a *ToolAgent) { a.maxIterations = n }
}

// WithMaxErrorIterations caps consecutive unparseable model turns.
func WithMaxErrorIterations(n int) ToolAgentOption {
	return func(a *ToolAgent) { a.maxErrorIterations = n }
}

// WithLogger sets the agent logger.
func WithLogger(logger logging.Logger) ToolAgentOption {
	return func(a *ToolAgent) { a.logger = logger }
}

// WithMetrics records model, parse and run metrics.
func WithMetrics(metrics *observability.MetricsCollector) ToolAgentOption {
	return func(a *ToolAgent) { a.metrics = metrics }
}

// NewToolAgent builds an agent; the system prompt is rendered once from the
// registry catalog.
func NewToolAgent(client llm.Client, registry *toolregistry.Registry, opts ...ToolAgentOption) (*ToolAgent, error) {
	if client == nil {
		return nil, errors.New("agent: model client is required")
	}
	if registry == nil {
		return nil, errors.New("agent: tool registry is required")
	}
	a := &ToolAgent{
		client:             client,
		registry:           registry,
		maxIterations:      DefaultMaxIterations,
		maxErrorIterations: DefaultMaxErrorIterations,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.maxIterations <= 0 || a.maxErrorIterations <= 0 {
		return nil, fmt.Errorf("agent: iteration limits must be positive (max_iterations=%d, max_error_iterations=%d)", a.maxIterations, a.maxErrorIterations)
	}
	a.logger = logging.OrNop(a.logger)
	a.systemPrompt = buildSystemPrompt(registry.Names(), registry.Describe())
	return a, nil
}

// SystemPrompt returns the rendered system turn.
func (a *ToolAgent) SystemPrompt() string { return a.systemPrompt }

// Model returns the name of the model the agent talks to.
func (a *ToolAgent) Model() string { return a.client.Model() }

// Run answers request by alternating model turns and tool calls until the
// model gives an answer.
func (a *ToolAgent) Run(ctx context.Context, request string, opts RunOptions) (result *RunResult, err error) {
	runID := id.NewRunID()
	ctx = id.WithRunID(ctx, runID)
	ctx = id.WithConversationID(ctx, opts.ConversationID)

	ctx, span := observability.StartSpan(ctx, observability.SpanAgentRun)
	iterations := 0
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		a.metrics.RecordAgentRun(ctx, outcome, iterations)
		observability.EndSpan(span, err)
	}()

	conversation, demoLen, err := a.seed(request, opts.Demonstration)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("Starting run %s (conversation=%q, demonstration turns=%d)", runID, opts.ConversationID, demoLen)

	var chain []ToolUseStep
	step := 1
	errorIterations := 0
	printing := true
	for {
		if step > a.maxIterations {
			return nil, &chemerrors.IterationLimitError{Max: a.maxIterations}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iterCtx, iterSpan := observability.StartSpan(ctx, observability.SpanAgentIteration, observability.IterationAttrs(step)...)
		raw, err := a.complete(iterCtx, conversation)
		if err != nil {
			observability.EndSpan(iterSpan, err)
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		if printing {
			writeTranscript(opts.Transcript, "--- Step %d ---\n", step)
		}

		cmd, perr := parser.Parse(raw)
		if perr != nil {
			observability.EndSpan(iterSpan, nil)
			printing = false
			errorIterations++
			a.metrics.RecordParseFailure(ctx, a.client.Model())
			var malformed *chemerrors.MalformedOutputError
			if !errors.As(perr, &malformed) {
				malformed = &chemerrors.MalformedOutputError{Text: raw, Reason: perr.Error()}
			}
			if errorIterations >= a.maxErrorIterations {
				return nil, &chemerrors.CommandExtractionError{Attempts: a.maxErrorIterations, Last: malformed}
			}
			a.logger.Debug("Failed to extract command from:\n%s\n\n", raw)
			continue
		}
		printing = true
		errorIterations = 0

		switch c := cmd.(type) {
		case parser.FinalAnswer:
			observability.EndSpan(iterSpan, nil)
			if c.Lenient {
				a.logger.Info("The output does not contain \"%s\", but regarded as the final answer anyway.", parser.AnswerLabel)
			}
			conversation = append(conversation, llm.Message{Role: llm.RoleAssistant, Content: raw})
			chain = append(chain, ToolUseStep{
				Thought:   c.Thought,
				Tool:      AnswerTool,
				Output:    c.Text,
				Success:   true,
				RawOutput: raw,
			})
			writeTranscript(opts.Transcript, "%s\n\n", raw)
			return &RunResult{
				Chain:            chain,
				Conversation:     spliceDemonstration(conversation, demoLen),
				FullConversation: conversation,
				Iterations:       iterations,
			}, nil

		case parser.ToolCall:
			conversation = append(conversation, llm.Message{Role: llm.RoleAssistant, Content: terminateToolTurn(raw)})
			writeTranscript(opts.Transcript, "%s\n", raw)

			res, err := a.registry.Dispatch(iterCtx, c.Tool, c.Input, opts.ConversationID)
			observability.EndSpan(iterSpan, err)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", step, err)
			}
			conversation = append(conversation, llm.Message{
				Role:    llm.RoleUser,
				Content: parser.ToolOutputLabel + " " + res.Observation,
			})
			chain = append(chain, ToolUseStep{
				Thought:   c.Thought,
				Tool:      c.Tool,
				Input:     c.Input,
				Output:    res.Observation,
				Success:   res.Success,
				RawOutput: raw,
			})
			writeTranscript(opts.Transcript, "%s %s\n\n", parser.ToolOutputLabel, res.Observation)
			step++
			iterations++
		}
	}
}

// seed builds the model-facing transcript up to and including the question.
func (a *ToolAgent) seed(request string, demonstration []llm.Message) ([]llm.Message, int, error) {
	if len(demonstration) == 1 {
		return nil, 0, ErrShortDemonstration
	}
	conversation := make([]llm.Message, 0, len(demonstration)+2)
	conversation = append(conversation, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})
	for _, turn := range demonstration {
		if turn.Role == llm.RoleAssistant && strings.Contains(turn.Content, "Tool Input") {
			turn.Content = terminateToolTurn(turn.Content)
		}
		conversation = append(conversation, turn)
	}
	conversation = append(conversation, llm.Message{Role: llm.RoleUser, Content: buildQuestion(request)})
	return conversation, len(demonstration), nil
}

func (a *ToolAgent) complete(ctx context.Context, conversation []llm.Message) (string, error) {
	model := a.client.Model()
	contents := make([]string, len(conversation))
	for i, turn := range conversation {
		contents[i] = turn.Content
	}
	estimate := tokenutil.CountMessages(contents)

	ctx, span := observability.StartSpan(ctx, observability.SpanLLMGenerate, observability.LLMAttrs(model, estimate)...)
	start := time.Now()
	resp, err := a.client.Complete(ctx, llm.CompletionRequest{
		Messages:      conversation,
		StopSequences: []string{parser.EndInputDelimiter},
		NumReturn:     1,
	})
	elapsed := time.Since(start)
	observability.EndSpan(span, err)
	if err != nil {
		a.metrics.RecordLLMRequest(ctx, model, "error", elapsed, estimate, 0)
		return "", err
	}
	if len(resp.Choices) == 0 {
		a.metrics.RecordLLMRequest(ctx, model, "error", elapsed, estimate, 0)
		return "", fmt.Errorf("model %s returned no completion", model)
	}
	input, output := resp.Usage.InputTokens, resp.Usage.OutputTokens
	if input == 0 {
		input = estimate
	}
	a.metrics.RecordLLMRequest(ctx, model, "success", elapsed, input, output)
	a.logger.Debug("Model %s replied in %s (prompt≈%d tokens, stop=%s)", model, elapsed, estimate, resp.StopReason)
	return resp.Choices[0], nil
}

// terminateToolTurn restores the stop delimiter the backend consumed.
func terminateToolTurn(content string) string {
	return strings.TrimRight(content, " \t\r\n") + "\n" + parser.EndInputDelimiter
}

// spliceDemonstration returns a copy of conversation without the
// demonstration turns that follow the system turn.
func spliceDemonstration(conversation []llm.Message, demoLen int) []llm.Message {
	out := make([]llm.Message, 0, len(conversation)-demoLen)
	out = append(out, conversation[:1]...)
	return append(out, conversation[1+demoLen:]...)
}

func writeTranscript(w io.Writer, format string, args ...any) {
	if w == nil {
		return
	}
	_, _ = fmt.Fprintf(w, format, args...)
}
