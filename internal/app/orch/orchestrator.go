// Package orch is the session coordinator. It validates requests against the
// registry, the room directory and the ledgers, drives the media engine and
// tells room peers about membership changes.
package orch

import (
	"context"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/events"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry   *app.Registry
	Rooms      core.RoomDirectory
	Transports *app.TransportLedger
	Producers  *app.ProducerLedger
	Consumers  *app.ConsumerLedger
	Policy     app.Policy
	Events     events.Publisher

	// EngineTimeout bounds every engine round trip. Zero means no bound.
	EngineTimeout time.Duration
}

// Connect registers a freshly opened signaling connection.
func (o *Orchestrator) Connect(ctx context.Context, id domain.ConnectionID, signal core.SignalConnection) (context.Context, error) {
	return o.Registry.Register(ctx, id, signal)
}

func (o *Orchestrator) broadcast(room core.RoomService, from domain.ConnectionID, t protocol.MessageType, payload any) {
	frame, err := protocol.Encode(t, "", payload)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(t)).Msg("broadcast encode")
		return
	}
	res := room.Broadcast(from, frame)
	metrics.SignalMessagesTotal.WithLabelValues(string(t), "out").Add(float64(res.SendTo))
	if len(res.Dropped) == 0 {
		return
	}
	metrics.BroadcastDroppedTotal.Add(float64(len(res.Dropped)))
	if o.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("conn", string(slow.Meta().Connection)).Str("room", string(room.ID())).Msg("kicking slow member")
			// the adapter notices the closed socket and runs Disconnect
			slow.Signal().Close()
		case app.DropFrame, app.NoAction:
		}
	}
}

func (o *Orchestrator) publish(kind events.Kind, room domain.RoomID, conn domain.ConnectionID, producer domain.ProducerID) {
	if o.Events == nil {
		return
	}
	o.Events.Publish(events.Event{
		Kind:       kind,
		Room:       room,
		Connection: conn,
		ProducerID: producer,
		At:         time.Now(),
	})
}
