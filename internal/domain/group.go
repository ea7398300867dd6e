package domain

import (
	"errors"
	"strings"
)

const MaxGroupNameLen = 64

var (
	ErrGroupNameEmpty   = errors.New("group name empty")
	ErrGroupNameTooLong = errors.New("group name too long")
)

type GroupName string

// GroupInfo is a read-only view of a group for APIs.
type GroupInfo struct {
	Name        GroupName `json:"name"`
	MemberCount int       `json:"member_count"`
}

// CleanGroupName trims the name and checks its length bounds.
func CleanGroupName(name string) (GroupName, error) {
	n := strings.TrimSpace(name)
	if len(n) == 0 {
		return "", ErrGroupNameEmpty
	}
	if len(n) > MaxGroupNameLen {
		return "", ErrGroupNameTooLong
	}
	return GroupName(n), nil
}
