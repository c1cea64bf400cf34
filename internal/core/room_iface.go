package core

import (
	"context"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID         domain.ConnectionID `json:"id"`
	ProducerID domain.ProducerID   `json:"producerId"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set and the routing context but never touches
// transports.
type RoomService interface {
	ID() domain.RoomID
	Router() engine.RoutingContext
	MemberCount() int
	MembersSnapshot() []MemberDTO
	HasMember(id domain.ConnectionID) bool

	// AddMember replaces any previous session of the same connection.
	AddMember(ms MemberSession)
	RemoveMember(id domain.ConnectionID) bool
	Broadcast(from domain.ConnectionID, data Frame) PublishResult
	Close()
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// RoomDirectory maps room ids to rooms. Rooms live until Close.
type RoomDirectory interface {
	GetOrCreate(ctx context.Context, id domain.RoomID) (RoomService, error)
	Get(id domain.RoomID) (RoomService, bool)
	// Resolve applies the directory's lifecycle policy.
	Resolve(ctx context.Context, id domain.RoomID) (RoomService, error)
	List() []RoomInfo
	Close()
}
