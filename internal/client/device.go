package client

import (
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
)

// Device is the local media stack the driver negotiates for.
type Device interface {
	// Load prepares the device for a room's routing capabilities.
	Load(caps engine.RTPCapabilities) error
	// RTPCapabilities are what this device can decode, sent with create-consumer.
	RTPCapabilities() engine.RTPCapabilities
	NewSendTransport(params engine.TransportParameters) (SendTransport, error)
	NewRecvTransport(params engine.TransportParameters) (RecvTransport, error)
	Close() error
}

type Transport interface {
	ID() string
	// ConnectParameters go to the server with rtc:connect-transport.
	ConnectParameters() engine.ConnectParameters
	// Start begins connectivity toward the server and returns without waiting.
	Start() error
	Close() error
}

type SendTransport interface {
	Transport
	// Produce starts the local source and describes it.
	Produce() (domain.MediaKind, engine.RTPParameters, error)
}

type RecvTransport interface {
	Transport
	// Consume attaches the peer's inbound stream to that peer's sink.
	Consume(peer domain.ConnectionID, params protocol.ConsumerParams) error
}
