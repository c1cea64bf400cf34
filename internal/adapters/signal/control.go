package signal

import "github.com/dkeye/VoiceSpaces/internal/protocol"

func (ctl *SignalWSController) handlePing(conn *WsSignalConn, env protocol.Envelope) {
	ctl.send(conn, protocol.TypePong, env.ID, nil)
}
