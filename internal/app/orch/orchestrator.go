// Package orch drives the per-connection chat state machine
// (Anonymous → Joined → Anonymous) on top of the registry and the router.
package orch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

var (
	ErrHandlerFailed = errors.New("handler failed")
	ErrNotConnected  = errors.New("connection not bound")
)

type Orchestrator struct {
	Registry *app.Registry
	Router   *app.Router
	// OutboxSize bounds the messages a sender may have waiting for delivery;
	// zero means DefaultOutboxSize.
	OutboxSize int

	outboxMu sync.Mutex
	outboxes map[domain.ConnectionID]*outbox
	inflight conc.WaitGroup
}

// guard turns a panic inside a handler into ErrHandlerFailed for the caller.
func guard(op string, id domain.ConnectionID, err *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Error().
		Str("module", "orch").
		Str("op", op).
		Str("conn", string(id)).
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("handler panic recovered")
	if err != nil {
		*err = fmt.Errorf("%w: %s: %v", ErrHandlerFailed, op, r)
	}
}

// OnConnect binds a fresh anonymous connection and refreshes everyone's roster,
// the newcomer included.
func (o *Orchestrator) OnConnect(id domain.ConnectionID, conn core.Connection, lang string) (err error) {
	defer guard("OnConnect", id, &err)
	o.Registry.Bind(id, conn, lang)
	o.broadcastRoster()
	return nil
}

// OnDisconnect drops the connection with its session and groups.
func (o *Orchestrator) OnDisconnect(id domain.ConnectionID) (err error) {
	defer guard("OnDisconnect", id, &err)
	o.closeOutbox(id)
	groups := o.Registry.GroupsOf(id)
	name, had := o.Registry.Unbind(id)
	o.announceGroupsLeft(displayName(name, had), groups)
	if had {
		o.announceLeft(name)
	}
	log.Info().Str("module", "orch").Str("conn", string(id)).Bool("joined", had).Msg("disconnected")
	return nil
}

func (o *Orchestrator) broadcastRoster() {
	o.Router.PublishAll(protocol.EventUpdateUserList, o.Registry.Snapshot())
}

func (o *Orchestrator) announceLeft(name string) {
	o.Router.PublishAll(protocol.EventUserLeft, name)
	o.broadcastRoster()
}

func (o *Orchestrator) displayNameOf(id domain.ConnectionID) string {
	s, ok := o.Registry.Session(id)
	return displayName(s.Username, ok)
}

func displayName(name string, joined bool) string {
	if !joined || name == "" {
		return domain.AnonymousName
	}
	return name
}
