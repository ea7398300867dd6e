package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Parley/internal/protocol"
)

type testServer struct {
	*httptest.Server
	conns  chan *websocket.Conn
	refuse atomic.Bool
	// push hands frames to the live connection's writer.
	push chan []byte
}

// echoServer completes every invocation and rejects the group named "bad".
// Upgrades are refused while refuse is set. Each connection has one writer.
func echoServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{conns: make(chan *websocket.Conn, 4), push: make(chan []byte, 4)}
	upgrader := websocket.Upgrader{}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ts.refuse.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ts.conns <- conn

		completions := make(chan []byte, 16)
		readDone := make(chan struct{})
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			defer close(readDone)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				inv, err := protocol.DecodeInvocation(data)
				if err != nil {
					return
				}
				var callErr error
				if inv.Group == "bad" {
					callErr = errors.New("rejected")
				}
				frame, _ := protocol.EncodeCompletion(inv.ID, callErr)
				select {
				case completions <- frame:
				case <-stop:
					return
				}
			}
		}()

		for {
			var frame []byte
			select {
			case frame = <-completions:
			case frame = <-ts.push:
			case <-readDone:
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(srv *testServer) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastReconnect() backoff.BackOff {
	return backoff.NewConstantBackOff(10 * time.Millisecond)
}

func TestWSTransport_InvokeAndEvents(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	ctx := context.Background()

	events := make(chan protocol.Envelope, 1)
	tr := NewWSTransport(WSConfig{URL: wsURL(srv)})
	req.NoError(tr.Start(ctx, Handlers{OnEvent: func(env protocol.Envelope) { events <- env }}))
	defer tr.Close()

	req.NoError(tr.Invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinChat, User: "alice"}))

	err := tr.Invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinGroup, Group: "bad"})
	var remote *RemoteError
	req.ErrorAs(err, &remote)
	req.Equal(protocol.MethodJoinGroup, remote.Method)
	req.Equal("rejected", remote.Message)

	frame, err := protocol.EncodeEvent(protocol.EventUserJoined, "bob")
	req.NoError(err)
	srv.push <- frame

	select {
	case env := <-events:
		req.Equal(protocol.EventUserJoined, env.Type)
		var name string
		req.NoError(env.DecodePayload(&name))
		req.Equal("bob", name)
	case <-time.After(2 * time.Second):
		req.Fail("no event received")
	}
}

func TestWSTransport_Reconnects(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	ctx := context.Background()

	reconnecting := make(chan error, 1)
	reconnected := make(chan error, 1)
	tr := NewWSTransport(WSConfig{URL: wsURL(srv), ReconnectBackOff: fastReconnect})
	req.NoError(tr.Start(ctx, Handlers{
		OnReconnecting: func(cause error) { reconnecting <- cause },
		OnReconnected: func() {
			// invoking from the hook must not deadlock the read loop
			reconnected <- tr.Invoke(ctx, protocol.Invocation{Type: protocol.MethodJoinChat, User: "alice"})
		},
	}))
	defer tr.Close()

	first := <-srv.conns
	req.NoError(first.Close())

	select {
	case cause := <-reconnecting:
		req.Error(cause)
	case <-time.After(2 * time.Second):
		req.Fail("drop not detected")
	}
	select {
	case err := <-reconnected:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("not reconnected")
	}

	req.NoError(tr.Invoke(ctx, protocol.Invocation{Type: protocol.MethodPing}))
}

func TestWSTransport_GivesUp(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	ctx := context.Background()

	closed := make(chan error, 1)
	tr := NewWSTransport(WSConfig{
		URL:                 wsURL(srv),
		ReconnectBackOff:    fastReconnect,
		MaxReconnectElapsed: 50 * time.Millisecond,
	})
	req.NoError(tr.Start(ctx, Handlers{OnClosed: func(err error) { closed <- err }}))
	defer tr.Close()

	srv.refuse.Store(true)
	first := <-srv.conns
	req.NoError(first.Close())

	select {
	case err := <-closed:
		req.Error(err)
	case <-time.After(2 * time.Second):
		req.Fail("transport kept retrying")
	}
	req.ErrorIs(tr.Invoke(ctx, protocol.Invocation{Type: protocol.MethodPing}), ErrClosed)
}

func TestWSTransport_InvokeWithoutConnection(t *testing.T) {
	tr := NewWSTransport(WSConfig{URL: "ws://127.0.0.1:1/api/ws"})
	require.ErrorIs(t, tr.Invoke(context.Background(), protocol.Invocation{Type: protocol.MethodPing}), ErrConnectionLost)
	require.Error(t, tr.Start(context.Background(), Handlers{}))

	require.NoError(t, tr.Close())
	require.ErrorIs(t, tr.Invoke(context.Background(), protocol.Invocation{Type: protocol.MethodPing}), ErrClosed)
}

func TestWSTransport_SubscriberInvokesThroughManager(t *testing.T) {
	req := require.New(t)
	srv := echoServer(t)
	ctx := context.Background()

	m := NewManager(NewWSTransport(WSConfig{URL: wsURL(srv)}), WithRetryPolicy(fastPolicy()))
	greeted := make(chan error, 1)
	m.Subscribe(func(ev Event) {
		if ev.Kind == EventUserJoined {
			greeted <- m.SendPrivateMessage(ctx, ev.User, "welcome")
		}
	})
	req.NoError(m.Connect(ctx))
	defer m.Close()

	frame, err := protocol.EncodeEvent(protocol.EventUserJoined, "bob")
	req.NoError(err)
	srv.push <- frame

	select {
	case err := <-greeted:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		req.Fail("subscriber call blocked the read loop")
	}
}
