package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) RoutingCapabilities(ctx context.Context, roomID domain.RoomID) (engine.RTPCapabilities, error) {
	room, err := o.Rooms.Resolve(ctx, roomID)
	if err != nil {
		return engine.RTPCapabilities{}, err
	}
	return room.Router().RTPCapabilities(), nil
}

// CreateTransport allocates a transport in roomID for conn. If conn goes away
// while the engine call is in flight the transport is closed on arrival.
func (o *Orchestrator) CreateTransport(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID, role domain.TransportRole) (engine.TransportParameters, error) {
	if _, ok := o.Registry.Signal(conn); !ok {
		return engine.TransportParameters{}, fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, conn)
	}
	room, err := o.Rooms.Resolve(ctx, roomID)
	if err != nil {
		return engine.TransportParameters{}, err
	}
	handle, err := app.EngineCall(ctx, o.EngineTimeout, "create_transport", room.Router().CreateTransport)
	if err != nil {
		return engine.TransportParameters{}, err
	}

	entry := core.TransportEntry{
		ID:         domain.TransportID(handle.ID()),
		Connection: conn,
		Room:       roomID,
		Role:       role,
		Handle:     handle,
	}
	if err := o.Registry.Guard(conn, func() error { return o.Transports.Add(entry) }); err != nil {
		handle.Close()
		metrics.LateResourcesClosed.WithLabelValues("transport").Inc()
		log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn)).Str("transport", handle.ID()).Msg("transport arrived after disconnect, closed")
		return engine.TransportParameters{}, err
	}
	handle.OnClose(func() { o.onTransportClosed(entry.ID) })
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).Str("transport", handle.ID()).Str("role", role.String()).Msg("transport created")
	return handle.Parameters(), nil
}

func (o *Orchestrator) ConnectTransport(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID, id domain.TransportID, params engine.ConnectParameters) error {
	e, err := o.Transports.Lookup(id, roomID, conn)
	if err != nil {
		return err
	}
	_, err = app.EngineCall(ctx, o.EngineTimeout, "connect_transport", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.Handle.Connect(ctx, params)
	})
	if err != nil {
		return err
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("transport", string(id)).Msg("transport connected")
	return nil
}

func (o *Orchestrator) CreateProducer(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID, tid domain.TransportID, kind string, params engine.RTPParameters) (domain.ProducerID, error) {
	k, err := domain.ParseMediaKind(kind)
	if err != nil {
		return "", fmt.Errorf("%w: %q", err, kind)
	}
	e, err := o.Transports.Lookup(tid, roomID, conn)
	if err != nil {
		return "", err
	}
	if _, err := o.Transports.ClaimRole(tid, domain.RoleSend); err != nil {
		return "", err
	}
	handle, err := app.EngineCall(ctx, o.EngineTimeout, "produce", func(ctx context.Context) (engine.Producer, error) {
		return e.Handle.Produce(ctx, k, params)
	})
	if err != nil {
		if e.Role == domain.RoleUnset {
			o.Transports.ReleaseRole(tid, domain.RoleSend)
		}
		return "", err
	}

	entry := core.ProducerEntry{
		ID:         domain.ProducerID(handle.ID()),
		Connection: conn,
		Room:       roomID,
		Transport:  tid,
		Kind:       k,
		Handle:     handle,
	}
	err = o.Registry.Guard(conn, func() error {
		if _, ok := o.Transports.Get(tid); !ok {
			return fmt.Errorf("%w: %s closed while producing", domain.ErrTransportNotFound, tid)
		}
		return o.Producers.Add(entry)
	})
	if err != nil {
		handle.Close()
		metrics.LateResourcesClosed.WithLabelValues("producer").Inc()
		return "", err
	}
	handle.OnClose(func() { o.onProducerClosed(entry.ID) })
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).Str("producer", handle.ID()).Str("kind", string(k)).Msg("producer created")
	return entry.ID, nil
}

// CreateConsumer returns ErrUnconsumable, not a fault, when caps cannot decode
// the producer.
func (o *Orchestrator) CreateConsumer(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID, tid domain.TransportID, pid domain.ProducerID, caps engine.RTPCapabilities) (core.ConsumerEntry, error) {
	room, ok := o.Rooms.Get(roomID)
	if !ok {
		return core.ConsumerEntry{}, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
	}
	p, ok := o.Producers.Get(pid)
	if !ok {
		return core.ConsumerEntry{}, fmt.Errorf("%w: %s", domain.ErrProducerNotFound, pid)
	}
	if p.Room != roomID {
		return core.ConsumerEntry{}, fmt.Errorf("producer %s is not in room %s: %w", pid, roomID, domain.ErrProtocolViolation)
	}
	e, err := o.Transports.Lookup(tid, roomID, conn)
	if err != nil {
		return core.ConsumerEntry{}, err
	}
	if !room.Router().CanConsume(string(pid), caps) {
		return core.ConsumerEntry{}, fmt.Errorf("producer %s: %w", pid, domain.ErrUnconsumable)
	}
	if _, err := o.Transports.ClaimRole(tid, domain.RoleRecv); err != nil {
		return core.ConsumerEntry{}, err
	}
	handle, err := app.EngineCall(ctx, o.EngineTimeout, "consume", func(ctx context.Context) (engine.Consumer, error) {
		return e.Handle.Consume(ctx, string(pid), caps)
	})
	if err != nil {
		if e.Role == domain.RoleUnset {
			o.Transports.ReleaseRole(tid, domain.RoleRecv)
		}
		return core.ConsumerEntry{}, err
	}

	entry := core.ConsumerEntry{
		ID:         domain.ConsumerID(handle.ID()),
		Connection: conn,
		Room:       roomID,
		Transport:  tid,
		Producer:   pid,
		Kind:       handle.Kind(),
		Handle:     handle,
	}
	err = o.Registry.Guard(conn, func() error {
		if _, ok := o.Transports.Get(tid); !ok {
			return fmt.Errorf("%w: %s closed while consuming", domain.ErrTransportNotFound, tid)
		}
		if _, ok := o.Producers.Get(pid); !ok {
			return fmt.Errorf("%w: %s closed while consuming", domain.ErrProducerNotFound, pid)
		}
		return o.Consumers.Add(entry)
	})
	if err != nil {
		handle.Close()
		metrics.LateResourcesClosed.WithLabelValues("consumer").Inc()
		return core.ConsumerEntry{}, err
	}
	handle.OnClose(func() { o.onConsumerClosed(entry.ID) })
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).Str("consumer", handle.ID()).Str("producer", string(pid)).Msg("consumer created")
	return entry, nil
}
