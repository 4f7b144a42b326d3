package kernel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/httpclient"
	"chemagent/internal/logging"
)

// GatewayClient talks to the control plane of a Jupyter kernel gateway.
type GatewayClient struct {
	baseURL string
	wsBase  string
	client  *http.Client
	logger  logging.Logger
}

// NewGatewayClient builds a client for baseURL. A nil client uses a
// breaker-guarded default with a 30s timeout.
func NewGatewayClient(baseURL string, client *http.Client, logger logging.Logger) (*GatewayClient, error) {
	logger = logging.OrNop(logger)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url %q: %w", baseURL, err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q: missing host", baseURL)
	}

	wsScheme := "ws"
	if parsed.Scheme == "https" {
		wsScheme = "wss"
	}
	wsBase := *parsed
	wsBase.Scheme = wsScheme

	if client == nil {
		client = httpclient.Guarded(30*time.Second, "kernel-gateway", logger)
	}
	return &GatewayClient{
		baseURL: baseURL,
		wsBase:  strings.TrimRight(wsBase.String(), "/"),
		client:  client,
		logger:  logger,
	}, nil
}

// BaseURL returns the normalised gateway URL.
func (g *GatewayClient) BaseURL() string {
	return g.baseURL
}

// CreateKernel starts a kernel of the given spec and returns its id.
func (g *GatewayClient) CreateKernel(ctx context.Context, name string) (string, error) {
	var kernel struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	err := httpclient.DoJSON(ctx, g.client, http.MethodPost, g.baseURL+"/api/kernels", nil, map[string]string{"name": name}, &kernel)
	if err != nil {
		return "", err
	}
	if kernel.ID == "" {
		return "", errors.New("gateway returned a kernel without id")
	}
	return kernel.ID, nil
}

// InterruptKernel interrupts the running cell of kernelID.
func (g *GatewayClient) InterruptKernel(ctx context.Context, kernelID string) error {
	endpoint := fmt.Sprintf("%s/api/kernels/%s/interrupt", g.baseURL, url.PathEscape(kernelID))
	return httpclient.DoJSON(ctx, g.client, http.MethodPost, endpoint, nil, map[string]string{"kernel_id": kernelID}, nil)
}

// DeleteKernel shuts kernelID down. A kernel the gateway no longer knows is
// treated as already deleted.
func (g *GatewayClient) DeleteKernel(ctx context.Context, kernelID string) error {
	endpoint := fmt.Sprintf("%s/api/kernels/%s", g.baseURL, url.PathEscape(kernelID))
	err := httpclient.DoJSON(ctx, g.client, http.MethodDelete, endpoint, nil, nil, nil)
	var permanent *chemerrors.PermanentError
	if errors.As(err, &permanent) && permanent.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// ChannelsURL is the websocket endpoint of kernelID.
func (g *GatewayClient) ChannelsURL(kernelID string) string {
	return fmt.Sprintf("%s/api/kernels/%s/channels", g.wsBase, url.PathEscape(kernelID))
}
