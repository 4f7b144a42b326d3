package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// markdownRenderer renders final answers for the terminal.
type markdownRenderer struct {
	renderer *glamour.TermRenderer
}

func newMarkdownRenderer(plain bool) (*markdownRenderer, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w - 4
		if width > 120 {
			width = 120
		}
	}

	style := glamour.WithStandardStyle("dark")
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &markdownRenderer{renderer: renderer}, nil
}

// Render falls back to the raw text when rendering fails.
func (m *markdownRenderer) Render(content string) string {
	if m == nil || content == "" {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// transcriptWriter colours the ReAct labels of a run transcript line by line.
type transcriptWriter struct {
	out     io.Writer
	pending string
}

func newTranscriptWriter(out io.Writer) *transcriptWriter {
	return &transcriptWriter{out: out}
}

func (w *transcriptWriter) Write(p []byte) (int, error) {
	w.pending += string(p)
	for {
		idx := strings.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := w.pending[:idx]
		w.pending = w.pending[idx+1:]
		if _, err := fmt.Fprintln(w.out, colorizeLine(line)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush writes any partial trailing line.
func (w *transcriptWriter) Flush() error {
	if w.pending == "" {
		return nil
	}
	line := w.pending
	w.pending = ""
	_, err := fmt.Fprintln(w.out, colorizeLine(line))
	return err
}

func colorizeLine(line string) string {
	switch {
	case strings.HasPrefix(line, "--- Step"):
		return bold(line)
	case strings.HasPrefix(line, "Thought:"):
		return yellow(line)
	case strings.HasPrefix(line, "Tool Input:"):
		return cyan(line)
	case strings.HasPrefix(line, "Tool Output:"):
		return gray(line)
	case strings.HasPrefix(line, "Tool:"):
		return blue(line)
	case strings.HasPrefix(line, "Answer:"), strings.HasPrefix(line, "Final Answer:"):
		return green(line)
	}
	return line
}
