package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"chemagent/internal/agent"
	"chemagent/internal/llm"
	"chemagent/internal/utils/id"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type runFlags struct {
	rephrase     bool
	format       string
	conversation string
	demo         string
	jsonOutput   bool
	quiet        bool
	plain        bool
	yes          bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.BoolVar(&f.rephrase, "rephrase", false, "rewrite the final answer from the full reasoning draft")
	fs.StringVar(&f.format, "format", "", "format requirement passed to the rephrasing agent")
	fs.StringVar(&f.conversation, "conversation", "", "conversation id that scopes Python kernel state")
	fs.StringVar(&f.demo, "demo", "", "JSON file of demonstration turns [{role, content}, ...]")
	fs.BoolVarP(&f.yes, "yes", "y", false, "accept a tool set that differs from the reference catalog")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "do not print the step transcript")
	fs.BoolVar(&f.plain, "plain", false, "print the answer without markdown styling")
}

// runReport is the --json output of a run.
type runReport struct {
	Question       string              `json:"question"`
	Answer         string              `json:"answer"`
	ConversationID string              `json:"conversation_id"`
	Iterations     int                 `json:"iterations"`
	Chain          []agent.ToolUseStep `json:"tool_use_chain"`
	Conversation   []llm.Message       `json:"conversation"`
}

func newRunCommand(state *cli) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run [question]",
		Short: "Answer one question and exit",
		Example: `  chemagent run "What is the molecular weight of caffeine?"
  echo "Is CCO similar to CCCO?" | chemagent run --rephrase`,
		RunE: func(cmd *cobra.Command, args []string) error {
			question, err := readQuestion(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return state.runOnce(cmd, flags, question)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "print the answer, tool chain and conversation as JSON")
	return cmd
}

func readQuestion(args []string, stdin io.Reader) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && stdin != nil && !isTerminal(stdin) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read question: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", errors.New("a question is required")
	}
	return question, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func loadDemonstration(path string) ([]llm.Message, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read demonstration: %w", err)
	}
	var demo []llm.Message
	if err := json.Unmarshal(data, &demo); err != nil {
		return nil, fmt.Errorf("parse demonstration %s: %w", path, err)
	}
	return demo, nil
}

func (c *cli) runOnce(cmd *cobra.Command, flags *runFlags, question string) (err error) {
	ctx := cmd.Context()
	demo, err := loadDemonstration(flags.demo)
	if err != nil {
		return err
	}

	rt, err := c.buildRuntime(ctx, c.runtimeOptions(flags.yes))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.Background()); cerr != nil && err == nil {
			err = cerr
		}
	}()

	conversation := flags.conversation
	if conversation == "" {
		conversation = id.NewConversationID()
	}

	out := cmd.OutOrStdout()
	var transcript *transcriptWriter
	if !flags.quiet && !flags.jsonOutput {
		transcript = newTranscriptWriter(c.stderr)
	}
	opts := agent.ChemRunOptions{
		Rephrase:       flags.rephrase,
		Format:         flags.format,
		Demonstration:  demo,
		ConversationID: conversation,
	}
	if transcript != nil {
		opts.Transcript = transcript
	}

	answer, result, err := rt.agent.Run(ctx, question, opts)
	if transcript != nil {
		_ = transcript.Flush()
	}
	if err != nil {
		return err
	}

	if flags.jsonOutput {
		report := runReport{
			Question:       strings.TrimSpace(question),
			Answer:         answer,
			ConversationID: conversation,
			Iterations:     result.Iterations,
			Chain:          result.Chain,
			Conversation:   result.Conversation,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	renderer, rerr := newMarkdownRenderer(flags.plain || !isTTY())
	if rerr != nil {
		renderer = nil
	}
	fmt.Fprintln(out, renderer.Render(answer))
	return nil
}
