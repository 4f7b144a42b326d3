package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/logging"
)

// retryClient wraps a Client with retry logic and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    chemerrors.RetryConfig
	circuitBreaker *chemerrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient wraps client with retry and circuit breaker logic.
func NewRetryClient(client Client, retryConfig chemerrors.RetryConfig, circuitBreaker *chemerrors.CircuitBreaker) Client {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

// WrapWithRetry wraps client using a breaker named after its model.
func WrapWithRetry(client Client, retryConfig chemerrors.RetryConfig, circuitBreakerConfig chemerrors.CircuitBreakerConfig) Client {
	breaker := chemerrors.NewCircuitBreaker("llm-"+client.Model(), circuitBreakerConfig,
		logging.NewComponentLogger("circuit-breaker"))
	return NewRetryClient(client, retryConfig, breaker)
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	startTime := time.Now()

	resp, err := chemerrors.Retry(ctx, c.retryConfig, c.logger, func(ctx context.Context) (*CompletionResponse, error) {
		return chemerrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*CompletionResponse, error) {
			response, err := c.underlying.Complete(ctx, req)
			if err != nil {
				return nil, classifyLLMError(err)
			}
			return response, nil
		})
	})

	duration := time.Since(startTime)
	if err != nil {
		c.logger.Warn("LLM request failed after retries (took %v): %v", duration, err)
		return nil, fmt.Errorf("model %s: %w", c.underlying.Model(), err)
	}
	if duration > 5*time.Second {
		c.logger.Debug("LLM request succeeded after %v", duration)
	}
	return resp, nil
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// classifyLLMError tags untyped errors by message so the retry loop can
// decide. Errors already classified by the HTTP layer pass through.
func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	if chemerrors.IsDegraded(err) {
		return err
	}
	var transient *chemerrors.TransientError
	var permanent *chemerrors.PermanentError
	if errors.As(err, &transient) || errors.As(err, &permanent) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	lowerErr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErr, "rate limit"):
		return chemerrors.NewTransientError(err, "API rate limit reached. Retrying with backoff.")
	case strings.Contains(lowerErr, "overloaded"):
		return chemerrors.NewTransientError(err, "Model overloaded. Retrying request.")
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return chemerrors.NewTransientError(err, "Request timed out. Retrying with backoff.")
	case strings.Contains(lowerErr, "connection reset") || strings.Contains(lowerErr, "broken pipe"):
		return chemerrors.NewTransientError(err, "Connection reset. Retrying request.")
	case strings.Contains(lowerErr, "unauthorized") || strings.Contains(lowerErr, "invalid api key"):
		return chemerrors.NewPermanentError(err, "Authentication failed. Please check your API key configuration.")
	}
	return err
}
