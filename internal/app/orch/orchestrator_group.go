package orch

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

func joinedNotice(name string, g domain.GroupName) string {
	return fmt.Sprintf("%s has joined the group %s.", name, g)
}

func leftNotice(name string, g domain.GroupName) string {
	return fmt.Sprintf("%s has left the group %s.", name, g)
}

func (o *Orchestrator) JoinGroup(id domain.ConnectionID, group string) (err error) {
	defer guard("JoinGroup", id, &err)
	g, err := domain.CleanGroupName(group)
	if err != nil {
		return err
	}
	if _, ok := o.Registry.Connection(id); !ok {
		return ErrNotConnected
	}
	if !o.Registry.JoinGroup(id, g) {
		return nil
	}
	o.notifyGroup(g, joinedNotice(o.displayNameOf(id), g))
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("group", string(g)).Msg("joined group")
	return nil
}

// LeaveGroup is a silent no-op for non-members.
func (o *Orchestrator) LeaveGroup(id domain.ConnectionID, group string) (err error) {
	defer guard("LeaveGroup", id, &err)
	g, err := domain.CleanGroupName(group)
	if err != nil {
		return err
	}
	if !o.Registry.LeaveGroup(id, g) {
		return nil
	}
	o.notifyGroup(g, leftNotice(o.displayNameOf(id), g))
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("group", string(g)).Msg("left group")
	return nil
}

// announceGroupsLeft tells the remaining members of each group that name is gone.
func (o *Orchestrator) announceGroupsLeft(name string, groups []domain.GroupName) {
	for _, g := range groups {
		o.notifyGroup(g, leftNotice(name, g))
	}
}

func (o *Orchestrator) notifyGroup(g domain.GroupName, text string) {
	members := o.Registry.ResolveGroupMembers(g)
	if len(members) == 0 {
		return
	}
	o.Router.Publish(members, protocol.EventGroupMessage, text)
}
