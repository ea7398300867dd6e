// Package protocol defines the frames exchanged over the chat WebSocket:
// client invocations, server completions and server events.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Method string

const (
	MethodJoinChat           Method = "JoinChat"
	MethodLeaveChat          Method = "LeaveChat"
	MethodJoinGroup          Method = "JoinGroup"
	MethodLeaveGroup         Method = "LeaveGroup"
	MethodSendMessage        Method = "SendMessage"
	MethodSendGroupMessage   Method = "SendGroupMessage"
	MethodSendPrivateMessage Method = "SendPrivateMessage"
	MethodSetLanguage        Method = "SetLanguage"
	MethodPing               Method = "Ping"
)

type EventType string

const (
	EventReceiveMessage        EventType = "ReceiveMessage"
	EventReceiveGroupMessage   EventType = "ReceiveGroupMessage"
	EventReceivePrivateMessage EventType = "ReceivePrivateMessage"
	EventUserJoined            EventType = "UserJoined"
	EventUserLeft              EventType = "UserLeft"
	EventUpdateUserList        EventType = "UpdateUserList"
	EventGroupMessage          EventType = "GroupMessage"
	EventCompletion            EventType = "Completion"
	EventPong                  EventType = "Pong"
)

var (
	ErrUnknownMethod    = errors.New("unknown method")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Invocation is a client request. Unused argument fields stay empty.
type Invocation struct {
	ID       string `json:"id"`
	Type     Method `json:"type"`
	User     string `json:"user,omitempty"`
	Language string `json:"language,omitempty"`
	Group    string `json:"group,omitempty"`
	To       string `json:"to,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Envelope is any server frame. Completions carry ID and Error, events carry Payload.
type Envelope struct {
	Type    EventType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinChatArgs struct {
	User     string `validate:"required,max=64"`
	Language string `validate:"omitempty,max=35"`
}

type leaveChatArgs struct {
	User string `validate:"max=64"`
}

type groupArgs struct {
	Group string `validate:"required,max=128"`
}

type sendArgs struct {
	Message string `validate:"required,max=4000"`
}

type sendGroupArgs struct {
	Group   string `validate:"required,max=128"`
	Message string `validate:"required,max=4000"`
}

type sendPrivateArgs struct {
	To      string `validate:"required,max=64"`
	Message string `validate:"required,max=4000"`
}

type languageArgs struct {
	Language string `validate:"required,max=35"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that the arguments required by the method are present and bounded.
func (i Invocation) Validate() error {
	var args any
	switch i.Type {
	case MethodJoinChat:
		args = joinChatArgs{User: i.User, Language: i.Language}
	case MethodLeaveChat:
		args = leaveChatArgs{User: i.User}
	case MethodJoinGroup, MethodLeaveGroup:
		args = groupArgs{Group: i.Group}
	case MethodSendMessage:
		args = sendArgs{Message: i.Message}
	case MethodSendGroupMessage:
		args = sendGroupArgs{Group: i.Group, Message: i.Message}
	case MethodSendPrivateMessage:
		args = sendPrivateArgs{To: i.To, Message: i.Message}
	case MethodSetLanguage:
		args = languageArgs{Language: i.Language}
	case MethodPing:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMethod, i.Type)
	}
	if err := validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", ErrInvalidArguments, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
