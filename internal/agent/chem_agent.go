package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"chemagent/internal/llm"
	"chemagent/internal/logging"
)

// DefaultModel is used for every component without its own model.
const DefaultModel = "gpt-4o-2024-08-06"

// Models names the model behind each component.
type Models struct {
	ToolAgent  string
	Tools      string
	Rephrasing string
}

// ResolveModels fills empty component models with model, logging each
// fallback.
func ResolveModels(model string, overrides Models, logger logging.Logger) Models {
	logger = logging.OrNop(logger)
	if model == "" {
		model = DefaultModel
	}
	if overrides.ToolAgent == "" {
		overrides.ToolAgent = model
		logger.Info("Using model %s for tool agent.", model)
	}
	if overrides.Tools == "" {
		overrides.Tools = model
		logger.Info("Using model %s for tools.", model)
	}
	if overrides.Rephrasing == "" {
		overrides.Rephrasing = model
		logger.Info("Using model %s for rephrasing agent.", model)
	}
	return overrides
}

// ChemRunOptions tune a ChemAgent.Run call.
type ChemRunOptions struct {
	Rephrase       bool
	Format         string
	Demonstration  []llm.Message
	ConversationID string
	Transcript     io.Writer
}

// ChemAgent answers a chemistry question with the tool agent and
// optionally polishes the answer with the rephrasing agent.
type ChemAgent struct {
	toolAgent *ToolAgent
	rephraser *RephrasingAgent
	logger    logging.Logger
}

// NewChemAgent combines the two agents. rephraser may be nil when
// rephrasing is never requested.
func NewChemAgent(toolAgent *ToolAgent, rephraser *RephrasingAgent, logger logging.Logger) (*ChemAgent, error) {
	if toolAgent == nil {
		return nil, errors.New("agent: tool agent is required")
	}
	return &ChemAgent{toolAgent: toolAgent, rephraser: rephraser, logger: logging.OrNop(logger)}, nil
}

// ToolAgent exposes the underlying tool agent.
func (c *ChemAgent) ToolAgent() *ToolAgent { return c.toolAgent }

// Run returns the final answer together with the tool agent result.
func (c *ChemAgent) Run(ctx context.Context, request string, opts ChemRunOptions) (string, *RunResult, error) {
	request = strings.TrimSpace(request)

	result, err := c.toolAgent.Run(ctx, request, RunOptions{
		Demonstration:  opts.Demonstration,
		ConversationID: opts.ConversationID,
		Transcript:     opts.Transcript,
	})
	if err != nil {
		return "", nil, err
	}
	answer, err := answerOf(result.Chain)
	if err != nil {
		return "", result, err
	}
	if opts.Rephrase {
		if c.rephraser == nil {
			return "", result, errors.New("agent: rephrasing requested but no rephrasing agent is configured")
		}
		answer, err = c.rephraser.Run(ctx, request, opts.Format, result.Conversation)
		if err != nil {
			return "", result, err
		}
	}

	c.logger.Info("Final Answer: %s", answer)
	writeTranscript(opts.Transcript, "Final Answer: %s\n", answer)
	return answer, result, nil
}

// answerOf returns the output of the terminal Answer step of chain.
func answerOf(chain []ToolUseStep) (string, error) {
	if len(chain) == 0 {
		return "", errors.New("agent: run produced an empty chain")
	}
	last := chain[len(chain)-1]
	if last.Tool != AnswerTool {
		return "", fmt.Errorf("agent: last chain step is %q, not %q", last.Tool, AnswerTool)
	}
	return last.Output, nil
}
