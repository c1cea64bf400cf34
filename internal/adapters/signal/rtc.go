package signal

import (
	"context"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/rs/zerolog/log"
)

func paramsError(b protocol.ErrorBody) any { return protocol.TransportResponse{Params: b} }

func (ctl *SignalWSController) handleCapabilities(ctx context.Context, _ domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
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
	caps, err := ctl.Orch.RoutingCapabilities(ctx, room)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	ctl.reply(conn, env, protocol.CapabilitiesResponse{RTPCapabilities: caps})
}

func (ctl *SignalWSController) handleCreateTransport(ctx context.Context, id domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.CreateTransportRequest
	if err := ctl.bind(env, &p); err != nil {
		ctl.replyErrAs(conn, env, err, paramsError)
		return
	}
	room, err := roomID(p.RoomID)
	if err != nil {
		ctl.replyErrAs(conn, env, err, paramsError)
		return
	}
	role, err := domain.ParseTransportRole(p.Direction)
	if err != nil {
		ctl.replyErrAs(conn, env, err, paramsError)
		return
	}
	params, err := ctl.Orch.CreateTransport(ctx, id, room, role)
	if err != nil {
		ctl.replyErrAs(conn, env, err, paramsError)
		return
	}
	log.Debug().Str("module", "signal").Str("conn", string(id)).Str("transport", params.ID).Msg("transport params sent")
	ctl.reply(conn, env, protocol.TransportResponse{Params: params})
}

func (ctl *SignalWSController) handleConnectTransport(ctx context.Context, id domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.ConnectTransportRequest
	if err := ctl.bind(env, &p); err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	room, err := roomID(p.RoomID)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	if err := ctl.Orch.ConnectTransport(ctx, id, room, p.TransportID, p.ConnectParameters()); err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	ctl.reply(conn, env, nil)
}

func (ctl *SignalWSController) handleCreateProducer(ctx context.Context, id domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.CreateProducerRequest
	if err := ctl.bind(env, &p); err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	room, err := roomID(p.RoomID)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	pid, err := ctl.Orch.CreateProducer(ctx, id, room, p.TransportID, p.Kind, p.RTPParameters)
	if err != nil {
		ctl.replyErr(conn, env, err)
		return
	}
	ctl.reply(conn, env, protocol.ProducerResponse{ID: pid})
}

func (ctl *SignalWSController) handleCreateConsumer(ctx context.Context, id domain.ConnectionID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.CreateConsumerRequest
	if err := ctl.bind(env, &p); err != nil {
		ctl.replyErrAs(conn, env, err, consumerError)
		return
	}
	room, err := roomID(p.RoomID)
	if err != nil {
		ctl.replyErrAs(conn, env, err, consumerError)
		return
	}
	entry, err := ctl.Orch.CreateConsumer(ctx, id, room, p.TransportID, p.ProducerID, p.RTPCapabilities)
	if err != nil {
		ctl.replyErrAs(conn, env, err, consumerError)
		return
	}
	ctl.reply(conn, env, protocol.ConsumerResponse{Params: protocol.ConsumerParams{
		ID:            entry.ID,
		ProducerID:    entry.Producer,
		Kind:          entry.Kind,
		RTPParameters: entry.Handle.RTPParameters(),
	}})
}

func consumerError(b protocol.ErrorBody) any { return protocol.ConsumerResponse{Params: b} }
