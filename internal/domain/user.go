// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUsernameLen = 36

	// AnonymousName is used in notices for connections that have not joined the chat.
	AnonymousName = "Anonymous user"
	// SystemName authors replies generated by the server itself.
	SystemName = "System"
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// ConnectionID identifies one physical transport session.
type ConnectionID string

// UserSession is the chat identity bound to a connection while joined.
type UserSession struct {
	ConnectionID ConnectionID `json:"connection_id"`
	Username     string       `json:"username"`
	Language     string       `json:"language"`
}

// NewUserSession validates the display name and normalizes the language.
func NewUserSession(id ConnectionID, username, lang, fallbackLang string) (*UserSession, error) {
	name, err := CleanUsername(username)
	if err != nil {
		return nil, err
	}
	return &UserSession{
		ConnectionID: id,
		Username:     name,
		Language:     NormalizeLanguage(lang, fallbackLang),
	}, nil
}

// CleanUsername trims the name and checks its length bounds.
func CleanUsername(username string) (string, error) {
	name := strings.TrimSpace(username)
	if len(name) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
