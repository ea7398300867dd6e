package app

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"

	"github.com/dkeye/Parley/internal/app/enrich"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

const DefaultMaxWorkers = 16

type RouterConfig struct {
	// Parallel renders recipients concurrently; delivery order across
	// recipients is unspecified either way.
	Parallel   bool
	MaxWorkers int
}

// Router resolves logical destinations to live connections and drives
// per-recipient enrichment and delivery. It never retries.
type Router struct {
	registry *Registry
	pipeline *enrich.Pipeline
	policy   Policy
	cfg      RouterConfig
}

func NewRouter(registry *Registry, pipeline *enrich.Pipeline, policy Policy, cfg RouterConfig) *Router {
	if policy == nil {
		policy = DropPolicy{}
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	return &Router{registry: registry, pipeline: pipeline, policy: policy, cfg: cfg}
}

// Report summarizes one delivery.
type Report struct {
	Recipients int
	Delivered  int
	Failed     int
	// Unresolved is set when a private message named nobody online.
	Unresolved bool
}

func eventFor(kind domain.DestinationKind) protocol.EventType {
	switch kind {
	case domain.DestinationGroup:
		return protocol.EventReceiveGroupMessage
	case domain.DestinationUser:
		return protocol.EventReceivePrivateMessage
	default:
		return protocol.EventReceiveMessage
	}
}

// Deliver sends msg to every resolved recipient, each in its own language.
// Sentiment is evaluated once; private messages are echoed to the sender,
// group messages are not.
func (rt *Router) Deliver(ctx context.Context, msg domain.ChatMessage) Report {
	event := eventFor(msg.Destination.Kind)

	var (
		recipients []domain.ConnectionID
		group      *string
	)
	switch msg.Destination.Kind {
	case domain.DestinationAll:
		recipients = rt.registry.Connections()
	case domain.DestinationGroup:
		name := msg.Destination.Target
		group = &name
		// no self-echo for group sends
		recipients = lo.Without(rt.registry.ResolveGroupMembers(domain.GroupName(name)), msg.Sender)
	case domain.DestinationUser:
		target, ok := rt.registry.FindConnectionByName(msg.Destination.Target)
		if !ok {
			rt.replyNotOnline(msg)
			return Report{Unresolved: true}
		}
		recipients = []domain.ConnectionID{target}
		if target != msg.Sender {
			recipients = append(recipients, msg.Sender)
		}
	}

	prep := rt.pipeline.Prepare(ctx, msg.Text)

	var delivered, failed atomic.Int64
	deliverOne := func(id domain.ConnectionID) {
		rendered := rt.pipeline.RenderFor(ctx, prep, rt.registry.Language(id))
		rendered.User = msg.Author
		rendered.Group = group
		if rt.send(id, event, rendered) {
			delivered.Add(1)
		} else {
			failed.Add(1)
		}
	}

	if rt.cfg.Parallel && len(recipients) > 1 {
		p := pool.New().WithMaxGoroutines(rt.cfg.MaxWorkers)
		for _, id := range recipients {
			p.Go(func() { deliverOne(id) })
		}
		p.Wait()
	} else {
		for _, id := range recipients {
			deliverOne(id)
		}
	}

	report := Report{
		Recipients: len(recipients),
		Delivered:  int(delivered.Load()),
		Failed:     int(failed.Load()),
	}
	log.Debug().Str("module", "app.fanout").
		Str("from", string(msg.Sender)).
		Str("kind", msg.Destination.Kind.String()).
		Int("recipients", report.Recipients).
		Int("delivered", report.Delivered).
		Int("failed", report.Failed).
		Msg("delivery result")
	return report
}

func (rt *Router) replyNotOnline(msg domain.ChatMessage) {
	reply := domain.EnrichedMessage{
		User:      domain.SystemName,
		Message:   domain.NotOnlineText(msg.Destination.Target),
		Sentiment: domain.UnknownSentiment(),
	}
	rt.send(msg.Sender, protocol.EventReceivePrivateMessage, reply)
	log.Info().Str("module", "app.fanout").Str("from", string(msg.Sender)).Str("to", msg.Destination.Target).Msg("private recipient not online")
}

// Publish sends the same plain event to every listed connection.
func (rt *Router) Publish(ids []domain.ConnectionID, event protocol.EventType, payload any) core.PublishResult {
	res := core.PublishResult{}
	frame, err := protocol.EncodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("publish encode")
		return res
	}
	for _, id := range ids {
		if rt.sendFrame(id, frame) {
			res.SendTo++
		} else {
			res.Dropped = append(res.Dropped, id)
		}
	}
	return res
}

// PublishAll sends a plain event to every live connection.
func (rt *Router) PublishAll(event protocol.EventType, payload any) core.PublishResult {
	return rt.Publish(rt.registry.Connections(), event, payload)
}

func (rt *Router) send(id domain.ConnectionID, event protocol.EventType, payload any) bool {
	frame, err := protocol.EncodeEvent(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Str("conn", string(id)).Msg("encode")
		return false
	}
	return rt.sendFrame(id, frame)
}

func (rt *Router) sendFrame(id domain.ConnectionID, frame core.Frame) bool {
	conn, ok := rt.registry.Connection(id)
	if !ok {
		log.Debug().Str("module", "app.fanout").Str("conn", string(id)).Msg("recipient gone")
		return false
	}
	err := conn.TrySend(frame)
	if err == nil {
		return true
	}
	log.Warn().Err(err).Str("module", "app.fanout").Str("conn", string(id)).Msg("send failed, skipping")
	switch rt.policy.OnBackPressure(id, err) {
	case KickMember:
		conn.Close()
	case DropFrame, NoAction:
	}
	return false
}
