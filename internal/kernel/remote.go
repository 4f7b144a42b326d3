package kernel

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/httpclient"
	"chemagent/internal/logging"
)

// ExecuteRequest is the body of POST /execute on the kernel server.
type ExecuteRequest struct {
	ConversationID string  `json:"convid"`
	Code           string  `json:"code"`
	Timeout        float64 `json:"timeout,omitempty"`
}

// ExecuteResponse is the reply of POST /execute.
type ExecuteResponse struct {
	Result           string `json:"result"`
	NewKernelCreated bool   `json:"new_kernel_created"`
	SessionID        string `json:"session_id,omitempty"`
}

// RemoteClient executes code through a kernel server in another process.
type RemoteClient struct {
	baseURL string
	client  *http.Client
	logger  logging.Logger
}

// NewRemoteClient targets the kernel server at serverURL. serverURL may be the
// server root or its /execute endpoint.
func NewRemoteClient(serverURL string, client *http.Client, logger logging.Logger) *RemoteClient {
	logger = logging.OrNop(logger)
	base := strings.TrimRight(strings.TrimSpace(serverURL), "/")
	base = strings.TrimSuffix(base, "/execute")
	if client == nil {
		// The server bounds each execution itself; allow for the retry budget on top.
		client = httpclient.New(10*time.Minute, logger)
	}
	return &RemoteClient{baseURL: base, client: client, logger: logger}
}

// Execute posts code to the kernel server. Any failure is fatal to the caller.
func (c *RemoteClient) Execute(ctx context.Context, conversationID, code string, timeout time.Duration) (string, error) {
	req := ExecuteRequest{ConversationID: conversationID, Code: code}
	if timeout > 0 {
		req.Timeout = timeout.Seconds()
	}
	var resp ExecuteResponse
	if err := httpclient.DoJSON(ctx, c.client, http.MethodPost, c.baseURL+"/execute", nil, req, &resp); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &chemerrors.TransportError{Op: "remote execute", Err: err}
	}
	if resp.NewKernelCreated {
		c.logger.Info("New kernel created for conversation %s", conversationID)
	}
	return resp.Result, nil
}

// Close asks the server to delete the conversation's kernel.
func (c *RemoteClient) Close(ctx context.Context, conversationID string) error {
	endpoint := fmt.Sprintf("%s/sessions/%s", c.baseURL, url.PathEscape(normalizeKey(conversationID)))
	return httpclient.DoJSON(ctx, c.client, http.MethodDelete, endpoint, nil, nil, nil)
}

var _ Executor = (*RemoteClient)(nil)
