package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Parley/internal/protocol"
)

var (
	ErrConnectionLost = errors.New("connection lost")
	ErrClosed         = errors.New("transport closed")
)

// RemoteError is a failed invocation reported by the server.
type RemoteError struct {
	Method  protocol.Method
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Handlers are the transport callbacks. Reconnect callbacks run outside the
// transport's read loop, so they may invoke methods.
type Handlers struct {
	OnEvent        func(protocol.Envelope)
	OnReconnecting func(cause error)
	OnReconnected  func()
	OnClosed       func(err error)
}

// Transport is a duplex invocation channel that reconnects on its own after a drop.
type Transport interface {
	// Start opens the connection once; it does not retry.
	Start(ctx context.Context, h Handlers) error
	// Invoke sends an invocation and waits for its completion.
	Invoke(ctx context.Context, inv protocol.Invocation) error
	Close() error
}
