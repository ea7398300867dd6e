package client

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventReconnecting
	EventReconnected
	EventError
	EventMessageReceived
	EventGroupMessageReceived
	EventPrivateMessageReceived
	EventUserJoined
	EventUserLeft
	EventUserListUpdated
	EventGroupNotice
)

var eventKindNames = map[EventKind]string{
	EventConnected:              "connected",
	EventDisconnected:           "disconnected",
	EventReconnecting:           "reconnecting",
	EventReconnected:            "reconnected",
	EventError:                  "error",
	EventMessageReceived:        "message",
	EventGroupMessageReceived:   "group_message",
	EventPrivateMessageReceived: "private_message",
	EventUserJoined:             "user_joined",
	EventUserLeft:               "user_left",
	EventUserListUpdated:        "user_list",
	EventGroupNotice:            "group_notice",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is what subscribers observe. Only the fields relevant to Kind are set.
type Event struct {
	Kind    EventKind
	Message *domain.EnrichedMessage
	// User is the name carried by UserJoined and UserLeft.
	User   string
	Roster []string
	// Text is the plain group notice.
	Text string
	Err  error
}

var messageKinds = map[protocol.EventType]EventKind{
	protocol.EventReceiveMessage:        EventMessageReceived,
	protocol.EventReceiveGroupMessage:   EventGroupMessageReceived,
	protocol.EventReceivePrivateMessage: EventPrivateMessageReceived,
}

// eventFromEnvelope maps a server event frame; ok is false for frames that
// subscribers never see.
func eventFromEnvelope(env protocol.Envelope) (Event, bool) {
	if kind, ok := messageKinds[env.Type]; ok {
		var msg domain.EnrichedMessage
		if err := env.DecodePayload(&msg); err != nil {
			return Event{Kind: EventError, Err: err}, true
		}
		return Event{Kind: kind, Message: &msg}, true
	}

	switch env.Type {
	case protocol.EventUserJoined, protocol.EventUserLeft:
		var name string
		if err := env.DecodePayload(&name); err != nil {
			return Event{Kind: EventError, Err: err}, true
		}
		kind := EventUserJoined
		if env.Type == protocol.EventUserLeft {
			kind = EventUserLeft
		}
		return Event{Kind: kind, User: name}, true
	case protocol.EventUpdateUserList:
		var roster []string
		if err := env.DecodePayload(&roster); err != nil {
			return Event{Kind: EventError, Err: err}, true
		}
		return Event{Kind: EventUserListUpdated, Roster: roster}, true
	case protocol.EventGroupMessage:
		var text string
		if err := env.DecodePayload(&text); err != nil {
			return Event{Kind: EventError, Err: err}, true
		}
		return Event{Kind: EventGroupNotice, Text: text}, true
	case protocol.EventPong, protocol.EventCompletion:
		return Event{}, false
	default:
		log.Debug().Str("module", "client").Str("type", string(env.Type)).Msg("unknown event ignored")
		return Event{}, false
	}
}
