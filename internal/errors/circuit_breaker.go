package errors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chemagent/internal/logging"
)

// CircuitState is the breaker position.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitBreakerConfig sets when the breaker trips and recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes after 30s.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// CircuitBreaker stops calls to an upstream (model API, kernel gateway,
// search backend) after repeated failures. While open, calls fail fast with
// a DegradedError.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger logging.Logger

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker returns a closed breaker for upstream name.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger logging.Logger) *CircuitBreaker {
	return &CircuitBreaker{name: name, cfg: cfg, logger: logging.OrNop(logger)}
}

// Execute runs fn unless the breaker is open and records its outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.Mark(err)
	return err
}

// ExecuteFunc is Execute for functions that return a value.
func ExecuteFunc[T any](cb *CircuitBreaker, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := cb.Allow(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(ctx)
	cb.Mark(err)
	return v, err
}

// Allow reports whether a call may proceed. An open breaker whose timeout
// has elapsed moves to half-open and lets the call through as a probe.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return nil
	}
	wait := cb.cfg.Timeout - time.Since(cb.openedAt)
	if wait <= 0 {
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.logger.Info("[%s] Circuit half-open, probing upstream", cb.name)
		return nil
	}
	return NewDegradedError(
		fmt.Errorf("circuit breaker open for %s", cb.name),
		fmt.Sprintf("%s is unavailable after repeated failures; retrying in %v.", cb.name, wait.Round(time.Second)),
	)
}

// Mark records the outcome of a call; nil is a success.
func (cb *CircuitBreaker) Mark(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.state, cb.failures, cb.successes = StateClosed, 0, 0
				cb.logger.Info("[%s] Circuit closed, upstream recovered", cb.name)
			}
		}
		return
	}

	switch cb.state {
	case StateClosed:
		cb.failures++
		cb.logger.Debug("[%s] Failure %d/%d: %v", cb.name, cb.failures, cb.cfg.FailureThreshold, err)
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.successes = 0
	cb.logger.Warn("[%s] Circuit opened", cb.name)
}

// State returns the current position.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
