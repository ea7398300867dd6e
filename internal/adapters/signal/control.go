package signal

import "github.com/dkeye/Parley/internal/protocol"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendEvent(conn, protocol.EventPong, "pong")
}
