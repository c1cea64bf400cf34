package core

import "github.com/dkeye/VoiceSpaces/internal/domain"

// Frame is one encoded envelope, ready for the wire.
type Frame []byte

// SignalConnection is the outbound half of a client's message channel.
// TrySend never blocks: it fails with domain.ErrConnectionClosed after Close
// and with an adapter error when the send buffer is full.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds domain.Member and its signaling endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
}
