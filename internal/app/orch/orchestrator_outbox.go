package orch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
)

const DefaultOutboxSize = 64

var (
	ErrOutboxFull   = errors.New("send queue full")
	errOutboxClosed = errors.New("outbox closed")
)

type queuedMessage struct {
	ctx context.Context
	msg domain.ChatMessage
}

// outbox holds one sender's messages; a single worker delivers them in
// send order.
type outbox struct {
	mu     sync.Mutex
	queue  chan queuedMessage
	closed bool
}

func (ob *outbox) push(m queuedMessage) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if ob.closed {
		return errOutboxClosed
	}
	select {
	case ob.queue <- m:
		return nil
	default:
		return ErrOutboxFull
	}
}

// close lets the worker finish what is queued and exit.
func (ob *outbox) close() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	if !ob.closed {
		ob.closed = true
		close(ob.queue)
	}
}

func (o *Orchestrator) outboxFor(id domain.ConnectionID) *outbox {
	o.outboxMu.Lock()
	defer o.outboxMu.Unlock()
	if o.outboxes == nil {
		o.outboxes = make(map[domain.ConnectionID]*outbox)
	}
	if ob, ok := o.outboxes[id]; ok {
		return ob
	}
	size := o.OutboxSize
	if size <= 0 {
		size = DefaultOutboxSize
	}
	ob := &outbox{queue: make(chan queuedMessage, size)}
	o.outboxes[id] = ob
	o.inflight.Go(func() { o.runOutbox(id, ob) })
	return ob
}

func (o *Orchestrator) runOutbox(id domain.ConnectionID, ob *outbox) {
	for m := range ob.queue {
		o.deliver(m)
	}
	log.Debug().Str("module", "orch").Str("conn", string(id)).Msg("outbox drained")
}

func (o *Orchestrator) deliver(m queuedMessage) {
	defer guard("deliver", m.msg.Sender, nil)
	o.Router.Deliver(m.ctx, m.msg)
}

func (o *Orchestrator) closeOutbox(id domain.ConnectionID) {
	o.outboxMu.Lock()
	ob := o.outboxes[id]
	delete(o.outboxes, id)
	o.outboxMu.Unlock()
	if ob != nil {
		ob.close()
	}
}

// Drain flushes every outbox and waits for the queued deliveries. Later
// sends start fresh outboxes.
func (o *Orchestrator) Drain() {
	o.outboxMu.Lock()
	obs := o.outboxes
	o.outboxes = nil
	o.outboxMu.Unlock()

	for _, ob := range obs {
		ob.close()
	}
	o.inflight.Wait()
}
