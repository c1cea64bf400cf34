// Package events publishes room membership changes to outside consumers.
package events

import (
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
)

type Kind string

const (
	KindJoined Kind = "joined"
	KindLeft   Kind = "left"
)

type Event struct {
	Kind       Kind                `json:"kind"`
	Room       domain.RoomID       `json:"roomId"`
	Connection domain.ConnectionID `json:"connectionId"`
	ProducerID domain.ProducerID   `json:"producerId,omitempty"`
	At         time.Time           `json:"at"`
}

// Publisher never blocks the caller on the network.
type Publisher interface {
	Publish(ev Event)
	Close() error
}

type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close() error  { return nil }
