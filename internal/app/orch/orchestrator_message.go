package orch

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
)

// SendMessage broadcasts to every connection. Anonymous callers are shown
// under the name they pass in.
func (o *Orchestrator) SendMessage(ctx context.Context, id domain.ConnectionID, user, text string) (err error) {
	defer guard("SendMessage", id, &err)
	author := o.displayNameOf(id)
	if author == domain.AnonymousName {
		if name, cerr := domain.CleanUsername(user); cerr == nil {
			author = name
		}
	}
	return o.dispatch(ctx, domain.ChatMessage{Sender: id, Author: author, Destination: domain.ToAll(), Text: text})
}

func (o *Orchestrator) SendGroupMessage(ctx context.Context, id domain.ConnectionID, group, text string) (err error) {
	defer guard("SendGroupMessage", id, &err)
	g, err := domain.CleanGroupName(group)
	if err != nil {
		return err
	}
	return o.dispatch(ctx, domain.ChatMessage{Sender: id, Author: o.displayNameOf(id), Destination: domain.ToGroup(g), Text: text})
}

func (o *Orchestrator) SendPrivateMessage(ctx context.Context, id domain.ConnectionID, to, text string) (err error) {
	defer guard("SendPrivateMessage", id, &err)
	target := strings.TrimSpace(to)
	return o.dispatch(ctx, domain.ChatMessage{Sender: id, Author: o.displayNameOf(id), Destination: domain.ToUser(target), Text: text})
}

// dispatch queues msg on the sender's outbox and returns without waiting for
// enrichment or delivery.
func (o *Orchestrator) dispatch(ctx context.Context, msg domain.ChatMessage) error {
	if _, ok := o.Registry.Connection(msg.Sender); !ok {
		return ErrNotConnected
	}
	err := o.outboxFor(msg.Sender).push(queuedMessage{ctx: context.WithoutCancel(ctx), msg: msg})
	if errors.Is(err, errOutboxClosed) {
		return ErrNotConnected
	}
	if err != nil {
		log.Warn().Str("module", "orch").Str("conn", string(msg.Sender)).Msg("send queue full, message rejected")
	}
	return err
}
