package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chemagent/internal/agent"
	"chemagent/internal/utils/id"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newChatCommand(state *cli) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively; Python state persists across questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return state.chat(cmd, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func (c *cli) chat(cmd *cobra.Command, flags *runFlags) (err error) {
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
	renderer, rerr := newMarkdownRenderer(flags.plain || !isTTY())
	if rerr != nil {
		renderer = nil
	}

	fmt.Fprintln(out, bold("chemagent"), gray("("+rt.models.ToolAgent+")"))
	fmt.Fprintln(out, "Tools:", strings.Join(rt.registry.Names(), ", "))
	fmt.Fprintln(out, "Type a question and press Enter. Type 'exit' or 'quit' to leave.")
	fmt.Fprintln(out, gray("Conversation: "+conversation))
	fmt.Fprintln(out)

	historyFile := ""
	if home, herr := os.UserHomeDir(); herr == nil {
		historyFile = filepath.Join(home, ".chemagent-history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("? "),
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		line, rlErr := rl.Readline()
		if errors.Is(rlErr, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(rlErr, io.EOF) {
			return nil
		}
		question := strings.TrimSpace(line)
		switch question {
		case "":
			continue
		case "exit", "quit", "q":
			return nil
		}

		var transcript *transcriptWriter
		opts := agent.ChemRunOptions{
			Rephrase:       flags.rephrase,
			Format:         flags.format,
			Demonstration:  demo,
			ConversationID: conversation,
		}
		if !flags.quiet {
			transcript = newTranscriptWriter(c.stderr)
			opts.Transcript = transcript
		}
		answer, result, runErr := rt.agent.Run(ctx, question, opts)
		if transcript != nil {
			_ = transcript.Flush()
		}
		if ctx.Err() != nil {
			return nil
		}
		if runErr != nil {
			fmt.Fprintf(out, "\n%s\n\n", red("Error: "+runErr.Error()))
			continue
		}
		fmt.Fprintf(out, "\n%s\n", renderer.Render(answer))
		fmt.Fprintln(out, gray(fmt.Sprintf("%d steps", result.Iterations)))
		fmt.Fprintln(out)
	}
}
