package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewConversationID generates a conversation identifier with a stable prefix for display.
func NewConversationID() string {
	return newIdentifier("conv")
}

// NewKernelSessionID generates the identifier of a kernel session. A
// conversation may go through several of them when its kernel is replaced.
func NewKernelSessionID() string {
	return newIdentifier("ksess")
}

// NewRunID generates an identifier for a single agent run.
func NewRunID() string {
	return newIdentifier("run")
}

// NewMessageID returns a dash-free random UUID, the shape Jupyter uses for msg_id.
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newIdentifier(prefix string) string {
	body, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return fmt.Sprintf("%s-%s", prefix, body.String())
}
