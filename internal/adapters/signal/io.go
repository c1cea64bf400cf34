package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				c.Close()
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the socket's read side. When it returns the connection is
// gone, even if dispatch is still waiting on the engine.
func (ctl *SignalWSController) readPump(ctx context.Context, id domain.ConnectionID, c *WsSignalConn, inbox chan<- protocol.Envelope) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Orch.Disconnect(id)
		ctl.limiter.Forget(id)
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad json")
			ctl.replyErr(c, protocol.Envelope{Type: protocol.TypeError}, fmt.Errorf("%w: %w", domain.ErrBadRequest, err))
			continue
		}
		metrics.SignalMessagesTotal.WithLabelValues(string(env.Type), "in").Inc()

		if !ctl.limiter.Allow(id) {
			metrics.RateLimitedTotal.Inc()
			ctl.replyErr(c, env, domain.ErrRateLimited)
			continue
		}
		select {
		case inbox <- env:
		case <-ctx.Done():
			return
		default:
			ctl.replyErr(c, env, fmt.Errorf("%w: too many requests in flight", domain.ErrRateLimited))
		}
	}
}

// dispatch handles one connection's messages strictly in arrival order.
func (ctl *SignalWSController) dispatch(ctx context.Context, id domain.ConnectionID, c *WsSignalConn, inbox <-chan protocol.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-inbox:
			ctl.handleSignal(ctx, id, c, env)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.ConnectionID, c *WsSignalConn, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypePing:
		ctl.handlePing(c, env)
	case protocol.TypeJoin:
		ctl.handleJoin(ctx, id, c, env)
	case protocol.TypeLeave:
		ctl.handleLeave(ctx, id, c, env)
	case protocol.TypeGetParticipants:
		ctl.handleParticipants(id, c, env)
	case protocol.TypeGetCapabilities:
		ctl.handleCapabilities(ctx, id, c, env)
	case protocol.TypeCreateTransport:
		ctl.handleCreateTransport(ctx, id, c, env)
	case protocol.TypeConnectTransport:
		ctl.handleConnectTransport(ctx, id, c, env)
	case protocol.TypeCreateProducer:
		ctl.handleCreateProducer(ctx, id, c, env)
	case protocol.TypeCreateConsumer:
		ctl.handleCreateConsumer(ctx, id, c, env)
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
		ctl.replyErr(c, env, fmt.Errorf("%w: unknown message type %q", domain.ErrBadRequest, env.Type))
	}
}

func (ctl *SignalWSController) send(c *WsSignalConn, t protocol.MessageType, id string, data any) {
	b, err := protocol.Encode(t, id, data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("send marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("type", string(t)).Msg("send dropped")
		return
	}
	metrics.SignalMessagesTotal.WithLabelValues(string(t), "out").Inc()
}

// reply acks a request. Requests without an id expect no answer.
func (ctl *SignalWSController) reply(c *WsSignalConn, env protocol.Envelope, data any) {
	if env.ID == "" {
		return
	}
	ctl.send(c, protocol.TypeAck, env.ID, data)
}

func (ctl *SignalWSController) replyErr(c *WsSignalConn, env protocol.Envelope, err error) {
	ctl.replyErrAs(c, env, err, func(b protocol.ErrorBody) any { return b })
}

// replyErrAs lets handlers nest the error body the way their success payload is shaped.
func (ctl *SignalWSController) replyErrAs(c *WsSignalConn, env protocol.Envelope, err error, shape func(protocol.ErrorBody) any) {
	body := protocol.ErrorOf(err)
	metrics.SignalErrorsTotal.WithLabelValues(string(env.Type), body.Code).Inc()
	log.Warn().Err(err).Str("module", "signal").Str("type", string(env.Type)).Str("code", body.Code).Msg("request failed")
	if env.ID == "" {
		ctl.send(c, protocol.TypeError, "", body)
		return
	}
	ctl.send(c, protocol.TypeAck, env.ID, shape(body))
}

func (ctl *SignalWSController) bind(env protocol.Envelope, v any) error {
	if err := env.Bind(v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	return nil
}

func roomID(raw domain.RoomID) (domain.RoomID, error) {
	id, err := domain.ParseRoomID(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrBadRequest, err)
	}
	return id, nil
}
