// Package client is the client side of the chat relay: a connection manager
// that retries the initial connect, replays identity and group membership after
// a transport reconnect, and raises typed events to its subscribers.
package client

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}
