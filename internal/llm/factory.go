package llm

import (
	"fmt"
	"strings"
	"time"

	chemerrors "chemagent/internal/errors"
)

// Provider names returned by ProviderFor.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// FactoryConfig holds per-provider settings for NewClient.
type FactoryConfig struct {
	OpenAI    Config
	Anthropic Config

	// Retry is applied around every client. A zero value retries once after
	// five seconds.
	Retry          chemerrors.RetryConfig
	CircuitBreaker chemerrors.CircuitBreakerConfig
	DisableRetry   bool
}

// ProviderFor maps a model name to its provider by prefix.
func ProviderFor(model string) (string, error) {
	switch {
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(model, "claude"):
		return ProviderAnthropic, nil
	}
	return "", fmt.Errorf("support for model %q not implemented", model)
}

// NewClient builds the backend serving model, wrapped with retries.
func NewClient(model string, cfg FactoryConfig) (Client, error) {
	provider, err := ProviderFor(model)
	if err != nil {
		return nil, err
	}

	var client Client
	switch provider {
	case ProviderOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("model %s requires an OpenAI API key", model)
		}
		client, err = NewOpenAIClient(model, cfg.OpenAI)
	case ProviderAnthropic:
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("model %s requires an Anthropic API key", model)
		}
		client, err = NewAnthropicClient(model, cfg.Anthropic)
	}
	if err != nil {
		return nil, err
	}
	if cfg.DisableRetry {
		return client, nil
	}

	retry := cfg.Retry
	if retry == (chemerrors.RetryConfig{}) {
		retry = chemerrors.FixedDelayConfig(2, 5*time.Second)
	}
	breaker := cfg.CircuitBreaker
	if breaker.FailureThreshold == 0 {
		breaker = chemerrors.DefaultCircuitBreakerConfig()
	}
	return WrapWithRetry(client, retry, breaker), nil
}
