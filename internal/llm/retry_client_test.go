package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	chemerrors "chemagent/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() chemerrors.RetryConfig {
	return chemerrors.FixedDelayConfig(3, time.Millisecond)
}

func TestRetryClientRetriesTransientErrors(t *testing.T) {
	mock := NewScriptedClient("", "", "ok")
	mock.Errors = map[int]error{
		0: chemerrors.MapHTTPError(http.StatusServiceUnavailable, []byte("busy"), nil),
		1: errors.New("rate limit exceeded"),
	}
	breaker := chemerrors.NewCircuitBreaker("test", chemerrors.DefaultCircuitBreakerConfig(), nil)
	client := NewRetryClient(mock, fastRetry(), breaker)

	resp, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text())
	assert.Len(t, mock.Requests(), 3)
}

func TestRetryClientStopsOnPermanentErrors(t *testing.T) {
	mock := NewScriptedClient("never")
	mock.Errors = map[int]error{0: chemerrors.MapHTTPError(http.StatusBadRequest, []byte("bad"), nil)}
	client := WrapWithRetry(mock, fastRetry(), chemerrors.DefaultCircuitBreakerConfig())

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.True(t, chemerrors.IsPermanent(err))
	assert.Len(t, mock.Requests(), 1)
	assert.Equal(t, "scripted", client.Model())
}

func TestRetryClientOpensBreaker(t *testing.T) {
	mock := NewScriptedClient()
	mock.Errors = map[int]error{}
	for i := 0; i < 10; i++ {
		mock.Errors[i] = chemerrors.MapHTTPError(http.StatusBadGateway, nil, nil)
	}
	breaker := chemerrors.NewCircuitBreaker("test", chemerrors.CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	}, nil)
	client := NewRetryClient(mock, fastRetry(), breaker)

	_, err := client.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, chemerrors.StateOpen, breaker.State())
	assert.Len(t, mock.Requests(), 2, "open breaker must short-circuit further attempts")
}

func TestClassifyLLMError(t *testing.T) {
	assert.True(t, chemerrors.IsTransient(classifyLLMError(errors.New("model overloaded"))))
	assert.True(t, chemerrors.IsPermanent(classifyLLMError(errors.New("Unauthorized"))))
	assert.ErrorIs(t, classifyLLMError(context.Canceled), context.Canceled)
	assert.Nil(t, classifyLLMError(nil))
}
