package app

import (
	"fmt"

	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
)

// TransportLedger tracks every negotiated transport, tagged by connection and room.
type TransportLedger struct {
	l *ledger[domain.TransportID, core.TransportEntry]
}

func NewTransportLedger() *TransportLedger {
	return &TransportLedger{l: newLedger[domain.TransportID, core.TransportEntry]("transport")}
}

func (t *TransportLedger) Add(e core.TransportEntry) error { return t.l.add(e.ID, e) }

func (t *TransportLedger) Get(id domain.TransportID) (core.TransportEntry, bool) {
	return t.l.get(id)
}

func (t *TransportLedger) Remove(id domain.TransportID) (core.TransportEntry, bool) {
	return t.l.remove(id)
}

func (t *TransportLedger) OwnedBy(conn domain.ConnectionID) []core.TransportEntry {
	return t.l.ownedBy(conn)
}

func (t *TransportLedger) OwnedByIn(conn domain.ConnectionID, room domain.RoomID) []core.TransportEntry {
	return t.l.ownedByIn(conn, room)
}

func (t *TransportLedger) Len() int { return t.l.len() }

// Lookup resolves a transport a connection refers to in a room. An unknown id
// and a room mismatch both fail with ErrTransportNotFound; a mismatch or a
// foreign owner is also a protocol violation.
func (t *TransportLedger) Lookup(id domain.TransportID, room domain.RoomID, conn domain.ConnectionID) (core.TransportEntry, error) {
	e, ok := t.l.get(id)
	if !ok {
		return core.TransportEntry{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, id)
	}
	if e.Room != room {
		return core.TransportEntry{}, fmt.Errorf("%w: %s is not in room %s: %w", domain.ErrTransportNotFound, id, room, domain.ErrProtocolViolation)
	}
	if e.Connection != conn {
		return core.TransportEntry{}, fmt.Errorf("transport %s belongs to another connection: %w", id, domain.ErrProtocolViolation)
	}
	return e, nil
}

// ClaimRole latches want on a transport created without a direction and
// rejects a transport already used the other way.
func (t *TransportLedger) ClaimRole(id domain.TransportID, want domain.TransportRole) (core.TransportEntry, error) {
	e, ok, err := t.l.update(id, func(e *core.TransportEntry) error {
		switch e.Role {
		case domain.RoleUnset:
			e.Role = want
		case want:
		default:
			return fmt.Errorf("%s transport cannot be used to %s: %w", e.Role, verb(want), domain.ErrRoleMismatch)
		}
		return nil
	})
	if !ok {
		return core.TransportEntry{}, fmt.Errorf("%w: %s", domain.ErrTransportNotFound, id)
	}
	return e, err
}

// ReleaseRole undoes a latch made by ClaimRole when nothing was created on
// the transport. A transport created with a role keeps it.
func (t *TransportLedger) ReleaseRole(id domain.TransportID, role domain.TransportRole) {
	_, _, _ = t.l.update(id, func(e *core.TransportEntry) error {
		if e.Role == role {
			e.Role = domain.RoleUnset
		}
		return nil
	})
}

func verb(r domain.TransportRole) string {
	if r == domain.RoleSend {
		return "produce"
	}
	return "consume"
}
