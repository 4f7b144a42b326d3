package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	chemerrors "chemagent/internal/errors"
	"chemagent/internal/logging"
	"chemagent/internal/observability"

	"github.com/gorilla/websocket"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateExecuting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateExecuting:
		return "executing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var errSessionClosed = errors.New("kernel session is closed")

// transportFailure marks a channel failure that may be fixed by reconnecting.
type transportFailure struct {
	op  string
	err error
}

func (e *transportFailure) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *transportFailure) Unwrap() error { return e.err }

// exchange correlates reply frames with one in-flight execute_request.
type exchange struct {
	msgID  string
	frames chan Message
	done   chan struct{}
}

// channelConn is one websocket connection to a kernel and its read loop.
type channelConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	current *exchange

	done chan struct{}
	once sync.Once
	err  error
}

func (c *channelConn) shutdown(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *channelConn) setExchange(ex *exchange) {
	c.mu.Lock()
	c.current = ex
	c.mu.Unlock()
}

func (c *channelConn) exchangeFor(msgID string) *exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || c.current.msgID != msgID {
		return nil
	}
	return c.current
}

func (c *channelConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *channelConn) ping(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

// readLoop forwards correlated frames to the active exchange and drops the rest.
func (c *channelConn) readLoop(logger logging.Logger) {
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.shutdown(err)
			return
		}
		ex := c.exchangeFor(msg.ParentHeader.MsgID)
		if ex == nil {
			logger.Debug("Ignoring %s frame for parent %q", msg.Type(), msg.ParentHeader.MsgID)
			continue
		}
		select {
		case ex.frames <- msg:
		case <-ex.done:
		case <-c.done:
			return
		}
	}
}

// Session is a persistent connection to one kernel, owned by one conversation.
// Execute calls are serialised; the heartbeat probe skips while one runs.
type Session struct {
	key     string
	id      string
	cfg     Config
	gateway *GatewayClient
	dialer  *websocket.Dialer
	logger  logging.Logger
	metrics *observability.MetricsCollector

	mu           sync.Mutex
	state        State
	kernelID     string
	conn         *channelConn
	lastActivity time.Time
	reconnects   int
}

func newSession(key, sessionID string, cfg Config, gateway *GatewayClient, dialer *websocket.Dialer, logger logging.Logger, metrics *observability.MetricsCollector) *Session {
	return &Session{
		key:     key,
		id:      sessionID,
		cfg:     cfg,
		gateway: gateway,
		dialer:  dialer,
		logger:  logging.OrNop(logger),
		metrics: metrics,
		state:   StateDisconnected,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ConversationID returns the conversation key the session belongs to.
func (s *Session) ConversationID() string { return s.key }

// KernelID returns the gateway kernel id, empty before the first connect.
func (s *Session) KernelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kernelID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns the time of the last completed execute.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Execute runs code on the session's kernel. Timeouts come back as an
// observation; connection and transport failures as errors.
func (s *Session) Execute(ctx context.Context, code string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = s.cfg.ExecuteTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return "", errSessionClosed
	}
	if err := s.ensureConnectedLocked(ctx); err != nil {
		return "", err
	}

	out, err := s.executeLocked(ctx, code, timeout)
	var failure *transportFailure
	if err == nil || !errors.As(err, &failure) {
		return out, err
	}

	s.logger.Warn("Kernel channel failed during %s, reconnecting: %v", failure.op, failure.err)
	s.dropConnLocked()
	if err := s.connectChannelLocked(ctx); err != nil {
		return "", &chemerrors.TransportError{Op: "reconnect", Err: err}
	}
	s.reconnects++

	out, err = s.executeLocked(ctx, code, timeout)
	if errors.As(err, &failure) {
		s.dropConnLocked()
		return "", &chemerrors.TransportError{Op: failure.op, Err: failure.err}
	}
	return out, err
}

func (s *Session) executeLocked(ctx context.Context, code string, timeout time.Duration) (string, error) {
	conn := s.conn
	if conn == nil {
		return "", &transportFailure{op: "send", err: errors.New("not connected")}
	}

	req, err := newExecuteRequest(code)
	if err != nil {
		return "", fmt.Errorf("build execute request: %w", err)
	}
	ex := &exchange{
		msgID:  req.Header.MsgID,
		frames: make(chan Message, 64),
		done:   make(chan struct{}),
	}
	conn.setExchange(ex)
	defer func() {
		conn.setExchange(nil)
		close(ex.done)
	}()

	s.state = StateExecuting
	defer func() {
		if s.state == StateExecuting {
			s.state = StateConnected
		}
		s.lastActivity = time.Now()
	}()

	if err := conn.writeJSON(req); err != nil {
		return "", &transportFailure{op: "send", err: err}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var collector outputCollector
	for {
		select {
		case msg := <-ex.frames:
			done, err := collector.handle(msg)
			if err != nil {
				s.logger.Warn("Skipping undecodable %s frame: %v", msg.Type(), err)
				continue
			}
			if done {
				return collector.result(), nil
			}
		case <-conn.done:
			if out, ok := drainFrames(ex, &collector); ok {
				return out, nil
			}
			return "", &transportFailure{op: "wait", err: conn.err}
		case <-timer.C:
			s.interruptLocked()
			return TimeoutMessage(timeout), nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// drainFrames consumes frames already buffered when the channel dropped.
func drainFrames(ex *exchange, collector *outputCollector) (string, bool) {
	for {
		select {
		case msg := <-ex.frames:
			if done, err := collector.handle(msg); err == nil && done {
				return collector.result(), true
			}
		default:
			return "", false
		}
	}
}

// interruptLocked asks the gateway to interrupt the running cell. Late frames
// of the abandoned request are dropped by correlation.
func (s *Session) interruptLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.gateway.InterruptKernel(ctx, s.kernelID); err != nil {
		s.logger.Warn("Failed to interrupt kernel %s: %v", s.kernelID, err)
		return
	}
	s.logger.Info("Kernel interrupted: %s", s.kernelID)
}

func (s *Session) ensureConnectedLocked(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	s.state = StateConnecting

	created := false
	if s.kernelID == "" {
		kernelID, err := s.createKernelLocked(ctx)
		if err != nil {
			s.state = StateDisconnected
			return err
		}
		s.kernelID = kernelID
		created = true
	}

	if err := s.connectChannelLocked(ctx); err != nil {
		s.state = StateDisconnected
		return &chemerrors.ConnectionError{Endpoint: s.gateway.ChannelsURL(s.kernelID), Attempts: 1, Err: err}
	}

	if created {
		for _, code := range s.cfg.InitCode {
			if _, err := s.executeLocked(ctx, code, s.cfg.ExecuteTimeout); err != nil {
				s.logger.Warn("Kernel init code failed: %v", err)
			}
		}
	}
	return nil
}

func (s *Session) createKernelLocked(ctx context.Context) (string, error) {
	retry := chemerrors.FixedDelayConfig(s.cfg.ConnectAttempts, s.cfg.ConnectDelay)
	kernelID, err := chemerrors.Retry(ctx, retry, s.logger, func(ctx context.Context) (string, error) {
		kernelID, err := s.gateway.CreateKernel(ctx, s.cfg.Language)
		if err != nil {
			// The gateway may still be starting; every failure is worth another try.
			return "", chemerrors.NewTransientError(err, err.Error())
		}
		return kernelID, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &chemerrors.ConnectionError{Endpoint: s.gateway.BaseURL(), Attempts: s.cfg.ConnectAttempts, Err: err}
	}
	s.metrics.IncrementActiveSessions(ctx)
	s.logger.Info("Jupyter kernel %s created for conversation %s", kernelID, s.key)
	return kernelID, nil
}

func (s *Session) connectChannelLocked(ctx context.Context) error {
	ws, _, err := s.dialer.DialContext(ctx, s.gateway.ChannelsURL(s.kernelID), nil)
	if err != nil {
		return err
	}
	conn := &channelConn{ws: ws, done: make(chan struct{})}
	s.conn = conn
	s.state = StateConnected
	go conn.readLoop(s.logger)
	go s.heartbeat(conn)
	s.logger.Debug("Connected to kernel websocket %s", s.kernelID)
	return nil
}

func (s *Session) dropConnLocked() {
	if s.conn == nil {
		return
	}
	s.conn.shutdown(errSessionClosed)
	s.conn = nil
	if s.state != StateClosed {
		s.state = StateDisconnected
	}
}

// heartbeat pings the kernel channel while idle and reconnects silently when
// the ping fails or the channel drops. It exits once conn is replaced.
func (s *Session) heartbeat(conn *channelConn) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-conn.done:
			s.mu.Lock()
			if s.conn == conn {
				s.logger.Debug("Kernel channel closed: %v", conn.err)
				s.reconnectLocked()
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
		}
		if !s.mu.TryLock() {
			continue
		}
		if s.conn != conn {
			s.mu.Unlock()
			return
		}
		if err := conn.ping(s.cfg.HeartbeatInterval); err != nil {
			s.logger.Debug("Heartbeat failed, reconnecting: %v", err)
			s.reconnectLocked()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

func (s *Session) reconnectLocked() {
	s.dropConnLocked()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.connectChannelLocked(ctx); err != nil {
		s.logger.Info("Failed to reconnect to kernel websocket %s, is the kernel still running? %v", s.kernelID, err)
		return
	}
	s.reconnects++
}

// Reconnects reports how many times the channel was re-established.
func (s *Session) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// Close drops the channel and deletes the kernel.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.dropConnLocked()
	s.state = StateClosed
	if s.kernelID == "" {
		return nil
	}
	kernelID := s.kernelID
	s.kernelID = ""
	s.metrics.DecrementActiveSessions(ctx)
	if err := s.gateway.DeleteKernel(ctx, kernelID); err != nil {
		return fmt.Errorf("delete kernel %s: %w", kernelID, err)
	}
	s.logger.Debug("Kernel %s deleted", kernelID)
	return nil
}
