package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

func (ctl *SignalWSController) handleJoinChat(id domain.ConnectionID, inv protocol.Invocation) error {
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("user", inv.User).Msg("join chat")
	return ctl.Orch.JoinChat(id, inv.User, inv.Language)
}

func (ctl *SignalWSController) handleLeaveChat(id domain.ConnectionID, inv protocol.Invocation) error {
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("user", inv.User).Msg("leave chat")
	return ctl.Orch.LeaveChat(id, inv.User)
}

func (ctl *SignalWSController) handleSetLanguage(id domain.ConnectionID, inv protocol.Invocation) error {
	return ctl.Orch.SetLanguage(id, inv.Language)
}

func (ctl *SignalWSController) handleSend(ctx context.Context, id domain.ConnectionID, inv protocol.Invocation) error {
	switch inv.Type {
	case protocol.MethodSendGroupMessage:
		return ctl.Orch.SendGroupMessage(ctx, id, inv.Group, inv.Message)
	case protocol.MethodSendPrivateMessage:
		return ctl.Orch.SendPrivateMessage(ctx, id, inv.To, inv.Message)
	default:
		return ctl.Orch.SendMessage(ctx, id, inv.User, inv.Message)
	}
}
