package core

import (
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
)

// Tags are the ownership labels every ledger entry carries.
type Tags struct {
	Connection domain.ConnectionID
	Room       domain.RoomID
}

type TransportEntry struct {
	ID         domain.TransportID
	Connection domain.ConnectionID
	Room       domain.RoomID
	Role       domain.TransportRole
	Handle     engine.Transport
}

func (e TransportEntry) Tags() Tags { return Tags{Connection: e.Connection, Room: e.Room} }

type ProducerEntry struct {
	ID         domain.ProducerID
	Connection domain.ConnectionID
	Room       domain.RoomID
	Transport  domain.TransportID
	Kind       domain.MediaKind
	Handle     engine.Producer
}

func (e ProducerEntry) Tags() Tags { return Tags{Connection: e.Connection, Room: e.Room} }

type ConsumerEntry struct {
	ID         domain.ConsumerID
	Connection domain.ConnectionID
	Room       domain.RoomID
	Transport  domain.TransportID
	Producer   domain.ProducerID
	Kind       domain.MediaKind
	Handle     engine.Consumer
}

func (e ConsumerEntry) Tags() Tags { return Tags{Connection: e.Connection, Room: e.Room} }
