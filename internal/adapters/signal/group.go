package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/protocol"
)

func (ctl *SignalWSController) handleJoinGroup(id domain.ConnectionID, inv protocol.Invocation) error {
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("group", inv.Group).Msg("join group")
	return ctl.Orch.JoinGroup(id, inv.Group)
}

// handleLeaveGroup leaves one group; the chat session and the connection stay.
func (ctl *SignalWSController) handleLeaveGroup(id domain.ConnectionID, inv protocol.Invocation) error {
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("group", inv.Group).Msg("leave group")
	return ctl.Orch.LeaveGroup(id, inv.Group)
}
