package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/dkeye/Parley/internal/core"
)

type eventFrame struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// EncodeEvent builds a server event frame.
func EncodeEvent(t EventType, payload any) (core.Frame, error) {
	b, err := sonic.Marshal(eventFrame{Type: t, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return b, nil
}

// EncodeCompletion builds the reply to an invocation; a nil err means success.
func EncodeCompletion(id string, err error) (core.Frame, error) {
	env := Envelope{Type: EventCompletion, ID: id}
	if err != nil {
		env.Error = err.Error()
	}
	b, mErr := sonic.Marshal(env)
	if mErr != nil {
		return nil, fmt.Errorf("encode completion: %w", mErr)
	}
	return b, nil
}

func EncodeInvocation(inv Invocation) ([]byte, error) {
	b, err := sonic.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", inv.Type, err)
	}
	return b, nil
}

func DecodeInvocation(data []byte) (Invocation, error) {
	var inv Invocation
	if err := sonic.Unmarshal(data, &inv); err != nil {
		return Invocation{}, fmt.Errorf("decode invocation: %w", err)
	}
	return inv, nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the event payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := sonic.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
