// Package domain contains entity without logic, just meta-data
package domain

import (
	"github.com/google/uuid"
)

type (
	ConnectionID string
	TransportID  string
	ProducerID   string
	ConsumerID   string
)

// NewConnectionID is a tiny helper to avoid ad-hoc uuid calls in adapters.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case KindAudio, KindVideo:
		return MediaKind(s), nil
	}
	return "", ErrUnknownKind
}

// TransportRole is the direction of a transport. RoleUnset latches on first use.
type TransportRole int

const (
	RoleUnset TransportRole = iota
	RoleSend
	RoleRecv
)

func (r TransportRole) String() string {
	switch r {
	case RoleSend:
		return "send"
	case RoleRecv:
		return "recv"
	}
	return "unset"
}

func ParseTransportRole(s string) (TransportRole, error) {
	switch s {
	case "":
		return RoleUnset, nil
	case "send":
		return RoleSend, nil
	case "recv":
		return RoleRecv, nil
	}
	return RoleUnset, ErrUnknownRole
}
