package kernel

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"chemagent/internal/logging"
	"chemagent/internal/observability"
	"chemagent/internal/utils/id"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// DefaultConversation is the session key used when no conversation id is given.
const DefaultConversation = "default"

// Executor runs code on behalf of a conversation. Manager and RemoteClient
// implement it.
type Executor interface {
	Execute(ctx context.Context, conversationID, code string, timeout time.Duration) (string, error)
}

// ExecResult is the detailed outcome of one execute call.
type ExecResult struct {
	Output     string
	SessionID  string
	NewSession bool
}

// SessionInfo is a snapshot of one live session.
type SessionInfo struct {
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	KernelID       string    `json:"kernel_id"`
	State          string    `json:"state"`
	LastActivity   time.Time `json:"last_activity"`
}

// Manager owns one kernel session per conversation id.
type Manager struct {
	cfg     Config
	gateway *GatewayClient
	dialer  *websocket.Dialer
	logger  logging.Logger
	metrics *observability.MetricsCollector
	client  *http.Client
	sleep   func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger; sessions inherit it.
func WithLogger(logger logging.Logger) Option {
	return func(m *Manager) { m.logger = logging.OrNop(logger) }
}

// WithMetrics records kernel execution metrics.
func WithMetrics(metrics *observability.MetricsCollector) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHTTPClient overrides the control-plane HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.client = client }
}

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = dialer }
}

// NewManager creates a session manager for the gateway in cfg.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		logger:   logging.Nop(),
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		sleep:    sleepContext,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	gateway, err := NewGatewayClient(m.cfg.GatewayURL, m.client, m.logger)
	if err != nil {
		return nil, err
	}
	m.gateway = gateway
	return m, nil
}

// Execute runs code in the conversation's session and returns its output.
func (m *Manager) Execute(ctx context.Context, conversationID, code string, timeout time.Duration) (string, error) {
	res, err := m.ExecuteDetailed(ctx, conversationID, code, timeout)
	return res.Output, err
}

// ExecuteDetailed runs code like Execute and also reports which session ran
// it. Code that prints but yields no output is retried on a fresh kernel a
// bounded number of times.
func (m *Manager) ExecuteDetailed(ctx context.Context, conversationID, code string, timeout time.Duration) (ExecResult, error) {
	key := normalizeKey(conversationID)
	if timeout <= 0 {
		timeout = m.cfg.ExecuteTimeout
	}

	if id.ConversationIDFromContext(ctx) == "" {
		ctx = id.WithConversationID(ctx, key)
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanKernelExecute)
	start := time.Now()

	session, created := m.session(key)
	res := ExecResult{SessionID: session.ID(), NewSession: created}

	out, err := session.Execute(ctx, code, timeout)
	for attempt := 1; err == nil && out == NoOutputSentinel && strings.Contains(code, "print") && attempt <= m.cfg.EmptyOutputRetries; attempt++ {
		m.logger.Warn("No output:\n\n%s", code)
		session = m.replaceSession(ctx, key, session)
		res.SessionID = session.ID()
		res.NewSession = true
		if err = m.sleep(ctx, m.cfg.EmptyOutputRetryDelay); err != nil {
			break
		}
		m.logger.Info("Retrying on session %s (%d/%d)", session.ID(), attempt, m.cfg.EmptyOutputRetries)
		out, err = session.Execute(ctx, code, timeout)
	}

	status := "success"
	switch {
	case err != nil:
		status = "error"
	case out == TimeoutMessage(timeout):
		status = "timeout"
	}
	m.metrics.RecordKernelExecution(ctx, status, time.Since(start))
	span.SetAttributes(attribute.String(observability.AttrKernelID, res.SessionID))
	observability.EndSpan(span, err)

	if err != nil {
		return res, err
	}
	res.Output = out
	return res, nil
}

func (m *Manager) session(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, false
	}
	s := m.newSessionLocked(key)
	return s, true
}

func (m *Manager) newSessionLocked(key string) *Session {
	s := newSession(key, id.NewKernelSessionID(), m.cfg, m.gateway, m.dialer, m.logger, m.metrics)
	m.sessions[key] = s
	return s
}

// replaceSession retires old and installs a fresh session under the same key.
func (m *Manager) replaceSession(ctx context.Context, key string, old *Session) *Session {
	m.mu.Lock()
	s := m.newSessionLocked(key)
	m.mu.Unlock()

	if err := old.Close(ctx); err != nil {
		m.logger.Warn("Failed to retire session %s: %v", old.ID(), err)
	}
	return s
}

// Session returns the live session of conversationID, if any.
func (m *Manager) Session(conversationID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[normalizeKey(conversationID)]
	return s, ok
}

// Sessions lists the live sessions ordered by conversation id.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		infos = append(infos, SessionInfo{
			ConversationID: s.ConversationID(),
			SessionID:      s.ID(),
			KernelID:       s.KernelID(),
			State:          s.State().String(),
			LastActivity:   s.LastActivity(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ConversationID < infos[j].ConversationID })
	return infos
}

// Close deletes the kernel of conversationID and forgets its session.
func (m *Manager) Close(ctx context.Context, conversationID string) error {
	key := normalizeKey(conversationID)
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.Close(ctx)
}

// CloseAll closes every session concurrently.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range list {
		s := s
		g.Go(func() error {
			if err := s.Close(gctx); err != nil {
				return fmt.Errorf("close session %s: %w", s.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func normalizeKey(conversationID string) string {
	key := strings.TrimSpace(conversationID)
	if key == "" {
		return DefaultConversation
	}
	return key
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Executor = (*Manager)(nil)
