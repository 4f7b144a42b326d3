package errors

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// MalformedOutputError reports model text that does not form a valid command.
type MalformedOutputError struct {
	Text   string
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return "malformed model output: " + e.Reason
}

// CommandExtractionError is returned by the agent once the consecutive
// malformed-output budget is spent. Last carries the final raw text.
type CommandExtractionError struct {
	Attempts int
	Last     *MalformedOutputError
}

func (e *CommandExtractionError) Error() string {
	return fmt.Sprintf("Failed to extract command from the output after %d iterations.\n%s", e.Attempts, e.RawText())
}

func (e *CommandExtractionError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

// RawText returns the last model text that failed to parse.
func (e *CommandExtractionError) RawText() string {
	if e.Last == nil {
		return ""
	}
	return e.Last.Text
}

// IterationLimitError is returned when a run needs more tool iterations than allowed.
type IterationLimitError struct {
	Max int
}

func (e *IterationLimitError) Error() string {
	return fmt.Sprintf("Running exceeds the max iteration limit (%d).", e.Max)
}

// ToolError is the tagged failure a capability returns from Invoke. A
// recoverable failure becomes an observation the model can react to; any
// other failure ends the run.
type ToolError struct {
	Tool        string
	Message     string
	Recoverable bool
	Err         error
}

func (e *ToolError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Tool == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Tool, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Recoverable builds a ToolError the loop reports back to the model.
func Recoverable(tool, message string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Recoverable: true}
}

// Fatal builds a ToolError that aborts the run.
func Fatal(tool, message string, err error) *ToolError {
	return &ToolError{Tool: tool, Message: message, Err: err}
}

// IsRecoverableToolError reports whether err should be shown to the model
// as an observation instead of ending the run. Untyped errors count as
// recoverable; cancellation and the transport, connection and iteration
// failures never do.
func IsRecoverableToolError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Recoverable
	}
	var connErr *ConnectionError
	var transportErr *TransportError
	if errors.As(err, &connErr) || errors.As(err, &transportErr) {
		return false
	}
	return true
}

// ObservationMessage extracts the text shown to the model for a recoverable error.
func ObservationMessage(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		if toolErr.Message != "" {
			return toolErr.Message
		}
		if toolErr.Err != nil {
			return toolErr.Err.Error()
		}
	}
	return err.Error()
}

// ConnectionError means a kernel could not be created or reached after all attempts.
type ConnectionError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to kernel gateway %s after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TransportError means the kernel channel failed mid-execution and could not be re-established.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("kernel transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// CatalogMismatchError is returned when the equipped tools deviate from the
// reference catalog and the deviation was not confirmed.
type CatalogMismatchError struct {
	Missing   []string
	Extra     []string
	Duplicate []string
}

func (e *CatalogMismatchError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+joinSorted(e.Missing))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unknown "+joinSorted(e.Extra))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "duplicated "+joinSorted(e.Duplicate))
	}
	return "tool catalog mismatch not confirmed: " + strings.Join(parts, "; ")
}

func joinSorted(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
