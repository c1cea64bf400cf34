package client

import "github.com/dkeye/VoiceSpaces/internal/domain"

type State int

const (
	StateIdle State = iota
	StateAwaitingCapabilities
	StateDeviceReady
	StateAwaitingSendTransport
	StateProducing
	StateJoining
	StateJoined
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingCapabilities:
		return "awaiting-capabilities"
	case StateDeviceReady:
		return "device-ready"
	case StateAwaitingSendTransport:
		return "awaiting-send-transport"
	case StateProducing:
		return "producing"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// PeerState tracks the receive side for one remote participant.
type PeerState int

const (
	PeerAwaitingTransport PeerState = iota
	PeerConnecting
	PeerAwaitingConsumer
	PeerConsuming
	PeerFailed
	PeerLeft
)

func (s PeerState) String() string {
	switch s {
	case PeerAwaitingTransport:
		return "awaiting-transport"
	case PeerConnecting:
		return "connecting"
	case PeerAwaitingConsumer:
		return "awaiting-consumer"
	case PeerConsuming:
		return "consuming"
	case PeerFailed:
		return "failed"
	case PeerLeft:
		return "left"
	}
	return "unknown"
}

// Notification reports a state change or a failed step. Peer is empty for
// the send-side pipeline.
type Notification struct {
	State     State
	Peer      domain.ConnectionID
	PeerState PeerState
	Step      string
	Err       error
}
