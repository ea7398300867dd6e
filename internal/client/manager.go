package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/dkeye/Parley/internal/protocol"
)

var (
	ErrConnectFailed    = errors.New("connect failed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

type subscription struct {
	id int
	fn func(Event)
}

// Manager owns one client connection: it connects with a bounded retry,
// caches identity and joined groups, and replays them after the transport
// reconnects. Subscribers run one at a time on the manager's dispatcher.
type Manager struct {
	transport Transport
	policy    RetryPolicy

	state atomic.Int32
	// drops counts transport drops; a replay is stale once it moves.
	drops  atomic.Uint64
	events *dispatcher

	// opMu serializes invocations with the reconnect replay.
	opMu sync.Mutex

	mu       sync.Mutex
	user     string
	language string
	joined   bool
	groups   []string
	subs     []subscription
	nextSub  int
}

type Option func(*Manager)

func WithRetryPolicy(p RetryPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

func NewManager(t Transport, opts ...Option) *Manager {
	m := &Manager{
		transport: t,
		policy:    DefaultRetryPolicy(),
		events:    newDispatcher(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Subscribe registers fn for every event and returns its unsubscribe func.
// Subscribers are called in registration order, never concurrently.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscription{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		m.subs = lo.Reject(m.subs, func(s subscription, _ int) bool { return s.id == id })
		m.mu.Unlock()
	}
}

func (m *Manager) emit(ev Event) {
	m.events.push(func() {
		m.mu.Lock()
		subs := m.subs
		m.mu.Unlock()
		for _, s := range subs {
			s.fn(ev)
		}
	})
}

func (m *Manager) handlers() Handlers {
	return Handlers{
		OnEvent:        m.onEnvelope,
		OnReconnecting: m.onReconnecting,
		OnReconnected:  m.onReconnected,
		OnClosed:       m.onClosed,
	}
}

// Connect starts the transport, retrying per the policy. On exhaustion the
// last error is returned wrapped in ErrConnectFailed and the state stays
// Disconnected.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	attempts := max(m.policy.MaxAttempts, 1)
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, m.transport.Start(ctx, m.handlers())
	},
		backoff.WithBackOff(m.policy.backOff()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Str("module", "client").Err(err).Dur("retry_in", next).Msg("connect attempt failed")
		}),
	)
	if err != nil {
		m.setState(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	m.setState(StateConnected)
	m.emit(Event{Kind: EventConnected})
	return nil
}

// Close shuts the transport down; the manager is not reusable afterwards.
func (m *Manager) Close() error {
	err := m.transport.Close()
	if State(m.state.Swap(int32(StateDisconnected))) != StateDisconnected {
		m.emit(Event{Kind: EventDisconnected})
	}
	m.events.close()
	return err
}

// invoke refuses calls until the manager is Connected, which keeps user
// calls from overtaking a replay.
func (m *Manager) invoke(ctx context.Context, inv protocol.Invocation) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.State() != StateConnected {
		return fmt.Errorf("%w: %s", ErrNotConnected, inv.Type)
	}
	return m.transport.Invoke(ctx, inv)
}

func (m *Manager) JoinChat(ctx context.Context, user, language string) error {
	if err := m.invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinChat, User: user, Language: language}); err != nil {
		return err
	}
	m.mu.Lock()
	m.user, m.language, m.joined = user, language, true
	m.mu.Unlock()
	return nil
}

// LeaveChat also clears the local membership cache.
func (m *Manager) LeaveChat(ctx context.Context) error {
	m.mu.Lock()
	user := m.user
	m.mu.Unlock()

	if err := m.invoke(ctx, protocol.Invocation{Type: protocol.MethodLeaveChat, User: user}); err != nil {
		return err
	}
	m.mu.Lock()
	m.user, m.joined, m.groups = "", false, nil
	m.mu.Unlock()
	return nil
}

func (m *Manager) JoinGroup(ctx context.Context, group string) error {
	if err := m.invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinGroup, Group: group}); err != nil {
		return err
	}
	m.mu.Lock()
	if !lo.Contains(m.groups, group) {
		m.groups = append(m.groups, group)
	}
	m.mu.Unlock()
	return nil
}

func (m *Manager) LeaveGroup(ctx context.Context, group string) error {
	if err := m.invoke(ctx, protocol.Invocation{Type: protocol.MethodLeaveGroup, Group: group}); err != nil {
		return err
	}
	m.mu.Lock()
	m.groups = lo.Without(m.groups, group)
	m.mu.Unlock()
	return nil
}

func (m *Manager) SetLanguage(ctx context.Context, language string) error {
	if err := m.invoke(ctx, protocol.Invocation{Type: protocol.MethodSetLanguage, Language: language}); err != nil {
		return err
	}
	m.mu.Lock()
	m.language = language
	m.mu.Unlock()
	return nil
}

func (m *Manager) SendMessage(ctx context.Context, text string) error {
	m.mu.Lock()
	user := m.user
	m.mu.Unlock()
	return m.invoke(ctx, protocol.Invocation{Type: protocol.MethodSendMessage, User: user, Message: text})
}

func (m *Manager) SendGroupMessage(ctx context.Context, group, text string) error {
	return m.invoke(ctx, protocol.Invocation{Type: protocol.MethodSendGroupMessage, Group: group, Message: text})
}

func (m *Manager) SendPrivateMessage(ctx context.Context, to, text string) error {
	return m.invoke(ctx, protocol.Invocation{Type: protocol.MethodSendPrivateMessage, To: to, Message: text})
}

// Groups returns the cached membership in join order.
func (m *Manager) Groups() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.groups...)
}

func (m *Manager) onEnvelope(env protocol.Envelope) {
	if ev, ok := eventFromEnvelope(env); ok {
		m.emit(ev)
	}
}

func (m *Manager) onReconnecting(cause error) {
	m.drops.Add(1)
	m.setState(StateReconnecting)
	m.emit(Event{Kind: EventReconnecting, Err: cause})
}

func (m *Manager) onClosed(err error) {
	m.setState(StateDisconnected)
	m.emit(Event{Kind: EventDisconnected, Err: err})
}

type resyncSnapshot struct {
	user     string
	language string
	joined   bool
	groups   []string
}

func (m *Manager) snapshot() resyncSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return resyncSnapshot{
		user:     m.user,
		language: m.language,
		joined:   m.joined,
		groups:   append([]string(nil), m.groups...),
	}
}

// onReconnected replays the session and only then reports Connected. A drop
// during the replay leaves the state Reconnecting for the next attempt.
func (m *Manager) onReconnected() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	epoch := m.drops.Load()
	m.resync(context.Background(), epoch)
	if m.drops.Load() != epoch || !m.state.CompareAndSwap(int32(StateReconnecting), int32(StateConnected)) {
		log.Warn().Str("module", "client").Msg("connection dropped during resync")
		return
	}
	m.emit(Event{Kind: EventReconnected})
}

// resync replays the snapshot taken at reconnect; the caller holds opMu.
// Groups need the display name, so a failed JoinChat skips them.
func (m *Manager) resync(ctx context.Context, epoch uint64) {
	snap := m.snapshot()
	logger := log.With().Str("module", "client").Str("user", snap.user).Logger()

	if snap.joined {
		if err := m.transport.Invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinChat, User: snap.user, Language: snap.language}); err != nil {
			logger.Error().Err(err).Msg("rejoin chat failed")
			m.emit(Event{Kind: EventError, Err: fmt.Errorf("rejoin chat: %w", err)})
			return
		}
	}

	for _, g := range snap.groups {
		if m.drops.Load() != epoch {
			return
		}
		if err := m.transport.Invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinGroup, Group: g}); err != nil {
			logger.Warn().Err(err).Str("group", g).Msg("rejoin group failed")
			m.emit(Event{Kind: EventError, Err: fmt.Errorf("rejoin group %s: %w", g, err)})
		}
	}
	logger.Info().Int("groups", len(snap.groups)).Msg("session restored")
}
