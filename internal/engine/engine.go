// Package engine is the capability surface the coordinator needs from a media
// routing engine. Implementations live in subpackages.
package engine

import (
	"context"

	"github.com/dkeye/VoiceSpaces/internal/domain"
)

// Engine allocates routing contexts. Died delivers at most one error when the
// engine can no longer serve any room.
type Engine interface {
	CreateRoutingContext(ctx context.Context, codecs []CodecCapability) (RoutingContext, error)
	Died() <-chan error
	Close() error
}

// RoutingContext is one room's routing allocation.
type RoutingContext interface {
	ID() string
	RTPCapabilities() RTPCapabilities
	// CanConsume reports whether a consumer with caps can receive producerID.
	CanConsume(producerID string, caps RTPCapabilities) bool
	CreateTransport(ctx context.Context) (Transport, error)
	Close()
}

type Transport interface {
	ID() string
	Parameters() TransportParameters
	Connect(ctx context.Context, params ConnectParameters) error
	Produce(ctx context.Context, kind domain.MediaKind, params RTPParameters) (Producer, error)
	Consume(ctx context.Context, producerID string, caps RTPCapabilities) (Consumer, error)
	Close()
	// OnClose registers fn to run once the transport is closed, for any reason.
	OnClose(fn func())
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	RTPParameters() RTPParameters
	Close()
	OnClose(fn func())
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	RTPParameters() RTPParameters
	Close()
	OnClose(fn func())
}
