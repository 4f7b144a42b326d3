package kernel

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chemagent/internal/utils/id"
)

const protocolVersion = "5.0"

// Jupyter message types consumed by the session.
const (
	msgExecuteRequest = "execute_request"
	msgExecuteReply   = "execute_reply"
	msgExecuteResult  = "execute_result"
	msgDisplayData    = "display_data"
	msgStream         = "stream"
	msgError          = "error"
)

var ansiPattern = regexp.MustCompile(`\x1B\[\d+(;\d+){0,2}m`)

// StripANSI removes SGR color sequences from kernel output.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// TimeoutMessage is the observation returned when execution exceeds timeout.
func TimeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("[Execution timed out (%s seconds).]", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64))
}

// Header is the Jupyter message header.
type Header struct {
	Username string `json:"username"`
	Version  string `json:"version"`
	Session  string `json:"session"`
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
}

// Message is a frame on the kernel channels websocket.
type Message struct {
	Header       Header          `json:"header"`
	ParentHeader Header          `json:"parent_header"`
	MsgType      string          `json:"msg_type,omitempty"`
	Channel      string          `json:"channel,omitempty"`
	Content      json.RawMessage `json:"content"`
	Metadata     map[string]any  `json:"metadata"`
	Buffers      map[string]any  `json:"buffers,omitempty"`
}

// Type returns the message type, preferring the top-level field the gateway sets.
func (m Message) Type() string {
	if m.MsgType != "" {
		return m.MsgType
	}
	return m.Header.MsgType
}

type executeContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
}

// newExecuteRequest builds an execute_request with a fresh msg_id.
func newExecuteRequest(code string) (Message, error) {
	content, err := json.Marshal(executeContent{
		Code:            code,
		UserExpressions: map[string]any{},
	})
	if err != nil {
		return Message{}, err
	}
	msgID := id.NewMessageID()
	return Message{
		Header: Header{
			Version: protocolVersion,
			MsgID:   msgID,
			MsgType: msgExecuteRequest,
		},
		MsgType:  msgExecuteRequest,
		Channel:  "shell",
		Content:  content,
		Metadata: map[string]any{},
		Buffers:  map[string]any{},
	}, nil
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

type dataContent struct {
	Data map[string]any `json:"data"`
}

type errorContent struct {
	EName     string   `json:"ename"`
	EValue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// outputCollector accumulates the replies of one execute_request.
type outputCollector struct {
	parts []string
}

// handle consumes one correlated frame and reports whether execution finished.
func (c *outputCollector) handle(msg Message) (bool, error) {
	switch msg.Type() {
	case msgError:
		var content errorContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return false, fmt.Errorf("decode error content: %w", err)
		}
		c.parts = append(c.parts, strings.Join(content.Traceback, "\n"))
		return true, nil
	case msgStream:
		var content streamContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return false, fmt.Errorf("decode stream content: %w", err)
		}
		c.parts = append(c.parts, content.Text)
	case msgExecuteResult, msgDisplayData:
		var content dataContent
		if err := json.Unmarshal(msg.Content, &content); err != nil {
			return false, fmt.Errorf("decode %s content: %w", msg.Type(), err)
		}
		if text, ok := content.Data["text/plain"].(string); ok {
			c.parts = append(c.parts, text)
		}
		if png, ok := content.Data["image/png"].(string); ok {
			c.parts = append(c.parts, fmt.Sprintf("![image](data:image/png;base64,%s)", png))
		}
	case msgExecuteReply:
		return true, nil
	}
	return false, nil
}

func (c *outputCollector) result() string {
	if len(c.parts) == 0 {
		return NoOutputSentinel
	}
	return StripANSI(strings.Join(c.parts, ""))
}
