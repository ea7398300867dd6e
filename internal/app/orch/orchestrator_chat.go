package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

// JoinChat registers the session (overwriting a previous one) and announces it.
func (o *Orchestrator) JoinChat(id domain.ConnectionID, user, lang string) (err error) {
	defer guard("JoinChat", id, &err)
	if _, ok := o.Registry.Connection(id); !ok {
		return ErrNotConnected
	}
	// an empty language keeps the one negotiated at connect time
	sess, err := domain.NewUserSession(id, user, lang, o.Registry.Language(id))
	if err != nil {
		return err
	}
	o.Registry.Register(id, sess.Username, sess.Language)

	o.Router.PublishAll(protocol.EventUserJoined, sess.Username)
	o.broadcastRoster()
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("user", sess.Username).Str("lang", sess.Language).Msg("joined chat")
	return nil
}

// LeaveChat ends the session. Group memberships go with it, the same as on
// disconnect. The connection stays open and anonymous.
func (o *Orchestrator) LeaveChat(id domain.ConnectionID, user string) (err error) {
	defer guard("LeaveChat", id, &err)
	groups := o.Registry.GroupsOf(id)
	name, had := o.Registry.Unregister(id)
	o.announceGroupsLeft(displayName(name, had), groups)
	if !had {
		log.Debug().Str("module", "orch").Str("conn", string(id)).Str("user", user).Msg("leave without session")
		return nil
	}
	o.announceLeft(name)
	log.Info().Str("module", "orch").Str("conn", string(id)).Str("user", name).Msg("left chat")
	return nil
}

// SetLanguage switches the language this connection reads in.
func (o *Orchestrator) SetLanguage(id domain.ConnectionID, lang string) (err error) {
	defer guard("SetLanguage", id, &err)
	if !o.Registry.SetLanguage(id, lang) {
		return ErrNotConnected
	}
	log.Debug().Str("module", "orch").Str("conn", string(id)).Str("lang", o.Registry.Language(id)).Msg("language changed")
	return nil
}
