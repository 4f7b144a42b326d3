// Package parser turns one model turn into the command the agent should act on.
package parser

import (
	"fmt"
	"strings"

	chemerrors "chemagent/internal/errors"
)

// Section labels recognised in model output.
const (
	ThoughtLabel      = "Thought:"
	ToolLabel         = "Tool:"
	ToolInputLabel    = "Tool Input:"
	ToolOutputLabel   = "Tool Output:"
	AnswerLabel       = "Answer:"
	EndInputDelimiter = "<END_INPUT>"
)

// Command is either a ToolCall or a FinalAnswer.
type Command interface {
	isCommand()
	// ThoughtText returns the reasoning that preceded the command, if any.
	ThoughtText() string
}

// ToolCall asks the agent to invoke a tool.
type ToolCall struct {
	Thought string
	Tool    string
	Input   string
}

// FinalAnswer ends the run. Lenient is set when the text carried no section
// labels at all and was accepted whole.
type FinalAnswer struct {
	Thought string
	Text    string
	Lenient bool
}

func (ToolCall) isCommand()    {}
func (FinalAnswer) isCommand() {}

func (c ToolCall) ThoughtText() string    { return c.Thought }
func (c FinalAnswer) ThoughtText() string { return c.Thought }

// Parse extracts a Command from text. It never mutates state, so parsing the
// same text twice yields equal results. Malformed text yields a
// *errors.MalformedOutputError.
func Parse(text string) (Command, error) {
	hasTool := strings.Contains(text, ToolLabel)
	hasInput := strings.Contains(text, ToolInputLabel)

	switch {
	case hasTool && !hasInput:
		return nil, malformed(text, "the output contains %q but does not contain %q", ToolLabel, ToolInputLabel)
	case hasInput && !hasTool:
		return nil, malformed(text, "the output contains %q but does not contain %q", ToolInputLabel, ToolLabel)
	case hasTool:
		return parseToolCall(text)
	default:
		return parseAnswer(text)
	}
}

func parseToolCall(text string) (Command, error) {
	numTool := strings.Count(text, ToolLabel)
	numInput := strings.Count(text, ToolInputLabel)
	if numTool > 1 || numInput > 1 {
		return nil, malformed(text, "the output contains more than one %q or %q", ToolLabel, ToolInputLabel)
	}
	if numTool != numInput {
		return nil, malformed(text, "the output contains different numbers of %q and %q", ToolLabel, ToolInputLabel)
	}

	toolPos := strings.Index(text, ToolLabel)
	inputPos := strings.Index(text, ToolInputLabel)
	if inputPos < toolPos {
		return nil, malformed(text, "%q appears before %q", ToolInputLabel, ToolLabel)
	}

	var thought string
	if thoughtPos := strings.Index(text, ThoughtLabel); thoughtPos != -1 {
		if thoughtPos > toolPos {
			return nil, malformed(text, "%q appears after %q", ThoughtLabel, ToolLabel)
		}
		thought = thoughtBefore(text, thoughtPos, toolPos)
	} else {
		thought = strings.TrimSpace(text[:toolPos])
	}

	name := strings.TrimSpace(text[toolPos+len(ToolLabel) : inputPos])
	if name == "" {
		return nil, malformed(text, "empty tool name")
	}

	input := strings.TrimSpace(text[inputPos+len(ToolInputLabel):])
	input = strings.TrimSpace(strings.TrimSuffix(input, EndInputDelimiter))

	return ToolCall{Thought: thought, Tool: name, Input: input}, nil
}

func parseAnswer(text string) (Command, error) {
	answerPos := strings.LastIndex(text, AnswerLabel)
	if answerPos == -1 {
		return FinalAnswer{Text: strings.TrimSpace(text), Lenient: true}, nil
	}

	answer := strings.TrimSpace(text[answerPos+len(AnswerLabel):])
	if strings.TrimSpace(text[:answerPos]) == "" {
		return FinalAnswer{Text: answer}, nil
	}

	if thoughtPos := strings.LastIndex(text, ThoughtLabel); thoughtPos != -1 {
		if thoughtPos > answerPos {
			return nil, malformed(text, "%q appears after the last %q", ThoughtLabel, AnswerLabel)
		}
		return FinalAnswer{Thought: thoughtBefore(text, thoughtPos, answerPos), Text: answer}, nil
	}
	return FinalAnswer{Thought: strings.TrimSpace(text[:answerPos]), Text: answer}, nil
}

// thoughtBefore returns the thought preceding end. When the label opens the
// text, the thought is the span after it; otherwise the whole prefix is kept
// with the label removed.
func thoughtBefore(text string, labelPos, end int) string {
	if strings.TrimSpace(text[:labelPos]) == "" {
		return strings.TrimSpace(text[labelPos+len(ThoughtLabel) : end])
	}
	return strings.TrimSpace(strings.ReplaceAll(text[:end], ThoughtLabel, ""))
}

func malformed(text, format string, args ...any) error {
	return &chemerrors.MalformedOutputError{Text: text, Reason: fmt.Sprintf(format, args...)}
}
