package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/events"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Join puts conn into roomID, leaving its previous room first, and tells every
// other member. producerID, when set, must be conn's own producer in roomID.
func (o *Orchestrator) Join(ctx context.Context, conn domain.ConnectionID, roomID domain.RoomID, producerID domain.ProducerID) error {
	signal, ok := o.Registry.Signal(conn)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrConnectionNotFound, conn)
	}
	room, err := o.Rooms.Resolve(ctx, roomID)
	if err != nil {
		return err
	}
	if producerID != "" {
		p, ok := o.Producers.Get(producerID)
		if !ok || p.Connection != conn || p.Room != roomID {
			return fmt.Errorf("producer %s is not owned by %s in room %s: %w", producerID, conn, roomID, domain.ErrProtocolViolation)
		}
	}

	if prev, ok := o.Registry.RoomOf(conn); ok && prev != roomID {
		o.leave(conn, prev)
		log.Info().Str("module", "orch").Str("conn", string(conn)).Str("from_room", string(prev)).Msg("left previous room")
	}

	rejoin := room.HasMember(conn)
	err = o.Registry.Guard(conn, func() error {
		room.AddMember(core.NewMemberSession(domain.NewMember(conn, producerID), signal))
		o.Registry.SetRoom(conn, roomID)
		return nil
	})
	if err != nil {
		return err
	}
	if !rejoin {
		metrics.RoomMembers.Inc()
	}
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).Str("producer", string(producerID)).Msg("joined")

	o.broadcast(room, conn, protocol.TypeUserJoined, protocol.UserJoined{
		ConnectionID: conn,
		ProducerID:   producerID,
		Msg:          "new user joined the space",
	})
	o.publish(events.KindJoined, roomID, conn, producerID)
	return nil
}

// Leave takes conn out of its room. Leaving while unjoined is a no-op.
func (o *Orchestrator) Leave(_ context.Context, conn domain.ConnectionID) {
	roomID, ok := o.Registry.RoomOf(conn)
	if !ok {
		log.Info().Str("module", "orch").Str("conn", string(conn)).Msg("leave: not joined")
		return
	}
	o.leave(conn, roomID)
}

// Disconnect unregisters conn and closes everything it owns.
func (o *Orchestrator) Disconnect(conn domain.ConnectionID) {
	roomID, ok := o.Registry.Unregister(conn)
	if !ok {
		return
	}
	if roomID != "" {
		o.leave(conn, roomID)
	}
	// transports made for rooms conn never joined
	o.closeOwned(conn)
	log.Info().Str("module", "orch").Str("conn", string(conn)).Msg("disconnected")
}

func (o *Orchestrator) leave(conn domain.ConnectionID, roomID domain.RoomID) {
	o.Registry.ClearRoom(conn)
	if room, ok := o.Rooms.Get(roomID); ok && room.RemoveMember(conn) {
		metrics.RoomMembers.Dec()
		o.broadcast(room, conn, protocol.TypeUserLeft, protocol.UserLeft{
			ConnectionID: conn,
			Msg:          "user left the space",
		})
		o.publish(events.KindLeft, roomID, conn, "")
	}
	o.closeOwnedIn(conn, roomID)
	log.Info().Str("module", "orch").Str("conn", string(conn)).Str("room", string(roomID)).Msg("left")
}

// Participants lists the members of roomID that have an active producer, each
// with that producer. A room without members is not found.
func (o *Orchestrator) Participants(roomID domain.RoomID) ([]core.MemberDTO, error) {
	room, ok := o.Rooms.Get(roomID)
	if !ok || room.MemberCount() == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, roomID)
	}
	members := room.MembersSnapshot()
	out := make([]core.MemberDTO, 0, len(members))
	for _, m := range members {
		pid := m.ProducerID
		if pid != "" {
			if p, ok := o.Producers.Get(pid); !ok || p.Connection != m.ID {
				pid = ""
			}
		}
		if pid == "" {
			if p, ok := o.Producers.Latest(m.ID, roomID); ok {
				pid = p.ID
			}
		}
		if pid == "" {
			continue
		}
		out = append(out, core.MemberDTO{ID: m.ID, ProducerID: pid})
	}
	return out, nil
}
