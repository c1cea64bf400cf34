package signal

import (
	"context"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(ctx context.Context, id domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.JoinRequest
	if err := ctl.bind(env, &p); err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	room, err := roomID(p.RoomID)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("room", string(room)).Msg("join")
	if err := ctl.Orch.Join(ctx, id, room, p.ProducerID); err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	ctl.reply(conn, env, nil)
}

// handleLeave leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeave(ctx context.Context, id domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("leave")
	ctl.Orch.Leave(ctx, id)
	ctl.reply(conn, env, nil)
}

func (ctl *SignalWSController) handleParticipants(_ domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.RoomRequest
	if err := ctl.bind(env, &p); err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	room, err := roomID(p.RoomID)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	members, err := ctl.Orch.Participants(room)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	resp := protocol.ParticipantsResponse{Participants: make(map[domain.ConnectionID]protocol.Participant, len(members))}
	for _, m := range members {
		resp.Participants[m.ID] = protocol.Participant{ID: m.ID, ProducerID: m.ProducerID}
	}
	ctl.reply(conn, env, resp)
}
