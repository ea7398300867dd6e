package signal

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

var ErrRateLimited = errors.New("rate limited")

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		// unblocks the read pump
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnectionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		if err := ctl.Orch.OnDisconnect(id); err != nil {
			log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("disconnect")
		}
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(id)
		}
		cancel()
		c.Close()
	}()

	pongWait := ctl.cfg.PingPeriod * 10 / 9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, id, c, data)
		}
	}
}

// handleSignal runs one invocation and always answers it with a completion,
// so a failure is seen by the calling client only.
func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.ConnectionID, c *WsSignalConn, data []byte) {
	inv, err := protocol.DecodeInvocation(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
		ctl.complete(c, "", err)
		return
	}
	if err := inv.Validate(); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("type", string(inv.Type)).Msg("rejected invocation")
		ctl.complete(c, inv.ID, err)
		return
	}

	switch inv.Type {
	case protocol.MethodJoinChat:
		err = ctl.handleJoinChat(id, inv)
	case protocol.MethodLeaveChat:
		err = ctl.handleLeaveChat(id, inv)
	case protocol.MethodSetLanguage:
		err = ctl.handleSetLanguage(id, inv)
	case protocol.MethodJoinGroup:
		err = ctl.handleJoinGroup(id, inv)
	case protocol.MethodLeaveGroup:
		err = ctl.handleLeaveGroup(id, inv)
	case protocol.MethodSendMessage, protocol.MethodSendGroupMessage, protocol.MethodSendPrivateMessage:
		if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
			err = ErrRateLimited
			break
		}
		err = ctl.handleSend(ctx, id, inv)
	case protocol.MethodPing:
		ctl.handlePing(c)
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Str("type", string(inv.Type)).Msg("invocation failed")
	}
	ctl.complete(c, inv.ID, err)
}

func (ctl *SignalWSController) complete(c *WsSignalConn, invID string, err error) {
	frame, encErr := protocol.EncodeCompletion(invID, err)
	if encErr != nil {
		log.Error().Err(encErr).Str("module", "signal").Msg("completion marshal")
		return
	}
	_ = c.TrySend(frame)
}

func (ctl *SignalWSController) sendEvent(c *WsSignalConn, t protocol.EventType, payload any) {
	frame, err := protocol.EncodeEvent(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendEvent marshal")
		return
	}
	_ = c.TrySend(frame)
}
