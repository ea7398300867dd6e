package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/protocol"
)

const (
	DefaultMaxReconnectElapsed = time.Minute
	clientWriteWait            = 5 * time.Second
)

type WSConfig struct {
	URL    string
	Header http.Header
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	// MaxReconnectElapsed bounds the automatic reconnect; zero means DefaultMaxReconnectElapsed.
	MaxReconnectElapsed time.Duration
	// ReconnectBackOff overrides the exponential schedule, mostly for tests.
	ReconnectBackOff func() backoff.BackOff
}

type pendingCall struct {
	method protocol.Method
	done   chan error
}

// WSTransport speaks the invocation protocol over a gorilla WebSocket.
type WSTransport struct {
	cfg      WSConfig
	handlers Handlers

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]pendingCall
	closed  bool

	writeMu sync.Mutex
}

var _ Transport = (*WSTransport)(nil)

func NewWSTransport(cfg WSConfig) *WSTransport {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.MaxReconnectElapsed <= 0 {
		cfg.MaxReconnectElapsed = DefaultMaxReconnectElapsed
	}
	if cfg.ReconnectBackOff == nil {
		cfg.ReconnectBackOff = func() backoff.BackOff { return backoff.NewExponentialBackOff() }
	}
	return &WSTransport{cfg: cfg, pending: make(map[string]pendingCall)}
}

func (t *WSTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := t.cfg.Dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", t.cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", t.cfg.URL, err)
	}
	return conn, nil
}

func (t *WSTransport) Start(ctx context.Context, h Handlers) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	if t.cancel == nil {
		t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))
	}
	t.handlers = h
	t.conn = conn
	t.mu.Unlock()

	log.Info().Str("module", "client").Str("url", t.cfg.URL).Msg("connected")
	go t.readLoop(conn)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.dropped(conn, err)
			return
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			log.Warn().Str("module", "client").Err(err).Msg("bad frame")
			continue
		}
		if env.Type == protocol.EventCompletion {
			t.complete(env)
			continue
		}
		if t.handlers.OnEvent != nil {
			t.handlers.OnEvent(env)
		}
	}
}

func (t *WSTransport) complete(env protocol.Envelope) {
	t.mu.Lock()
	call, ok := t.pending[env.ID]
	delete(t.pending, env.ID)
	t.mu.Unlock()
	if !ok {
		return
	}
	if env.Error != "" {
		call.done <- &RemoteError{Method: call.method, Message: env.Error}
		return
	}
	call.done <- nil
}

// takePending detaches every in-flight call; callers fail them with cause.
func (t *WSTransport) takePending() map[string]pendingCall {
	pend := t.pending
	t.pending = make(map[string]pendingCall)
	return pend
}

func failPending(pend map[string]pendingCall, cause error) {
	for _, call := range pend {
		call.done <- cause
	}
}

func (t *WSTransport) dropped(conn *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	pend := t.takePending()
	closed := t.closed
	t.mu.Unlock()

	_ = conn.Close()
	failPending(pend, ErrConnectionLost)
	if closed {
		return
	}

	log.Warn().Str("module", "client").Err(cause).Msg("connection lost, reconnecting")
	if t.handlers.OnReconnecting != nil {
		t.handlers.OnReconnecting(cause)
	}
	go t.reconnect()
}

func (t *WSTransport) reconnect() {
	conn, err := backoff.Retry(t.ctx, func() (*websocket.Conn, error) {
		return t.dial(t.ctx)
	},
		backoff.WithBackOff(t.cfg.ReconnectBackOff()),
		backoff.WithMaxElapsedTime(t.cfg.MaxReconnectElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Str("module", "client").Err(err).Dur("next", next).Msg("reconnect attempt failed")
		}),
	)
	if err != nil {
		t.mu.Lock()
		already := t.closed
		t.closed = true
		t.mu.Unlock()
		if already {
			return
		}
		log.Error().Str("module", "client").Err(err).Msg("reconnect gave up")
		if t.handlers.OnClosed != nil {
			t.handlers.OnClosed(err)
		}
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	log.Info().Str("module", "client").Str("url", t.cfg.URL).Msg("reconnected")
	go t.readLoop(conn)
	if t.handlers.OnReconnected != nil {
		t.handlers.OnReconnected()
	}
}

// Invoke assigns an id when inv has none.
func (t *WSTransport) Invoke(ctx context.Context, inv protocol.Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	data, err := protocol.EncodeInvocation(inv)
	if err != nil {
		return err
	}

	call := pendingCall{method: inv.Type, done: make(chan error, 1)}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	conn := t.conn
	if conn == nil {
		t.mu.Unlock()
		return ErrConnectionLost
	}
	t.pending[inv.ID] = call
	t.mu.Unlock()

	t.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	err = conn.WriteMessage(websocket.TextMessage, data)
	t.writeMu.Unlock()
	if err != nil {
		t.forget(inv.ID)
		return fmt.Errorf("%w: %s: %v", ErrConnectionLost, inv.Type, err)
	}

	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		t.forget(inv.ID)
		return ctx.Err()
	}
}

func (t *WSTransport) forget(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	pend := t.takePending()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	failPending(pend, ErrClosed)
	if conn == nil {
		return nil
	}

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(clientWriteWait))
	t.writeMu.Unlock()
	return conn.Close()
}
