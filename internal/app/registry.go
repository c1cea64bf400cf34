package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Room   domain.RoomID
	Signal core.SignalConnection
	Ctx    context.Context
	Cancel context.CancelFunc

	// guard serializes entity registration against Unregister.
	guard  sync.Mutex
	closed bool
}

// Registry is the Connection Registry: live connections and the room each
// one has joined.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.ConnectionID]*connEntry)}
}

// Register binds a connection. The returned context is canceled on Unregister.
func (r *Registry) Register(parent context.Context, id domain.ConnectionID, signal core.SignalConnection) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		return nil, fmt.Errorf("connection %s already registered", id)
	}
	ctx, cancel := context.WithCancel(parent)
	r.conns[id] = &connEntry{Signal: signal, Ctx: ctx, Cancel: cancel}
	metrics.ActiveConnections.Inc()
	metrics.ConnectionsTotal.Inc()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("registered")
	return ctx, nil
}

// Unregister removes the connection, cancels its context and reports the room
// it was in. After it returns, Guard refuses the connection.
func (r *Registry) Unregister(id domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.Lock()
	e, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return "", false
	}

	e.guard.Lock()
	e.closed = true
	room := e.Room
	e.guard.Unlock()

	e.Cancel()
	metrics.ActiveConnections.Dec()
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("unregistered")
	return room, true
}

// Guard runs fn while the connection cannot be unregistered. It fails with
// ErrConnectionClosed once Unregister has begun.
func (r *Registry) Guard(id domain.ConnectionID, fn func() error) error {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrConnectionClosed
	}
	e.guard.Lock()
	defer e.guard.Unlock()
	if e.closed {
		return domain.ErrConnectionClosed
	}
	return fn()
}

func (r *Registry) Context(id domain.ConnectionID) (context.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Ctx, true
	}
	return nil, false
}

func (r *Registry) Signal(id domain.ConnectionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) RoomOf(id domain.ConnectionID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (r *Registry) SetRoom(id domain.ConnectionID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Room = room
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Str("room", string(room)).Msg("updated room")
	return true
}

func (r *Registry) ClearRoom(id domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok {
		e.Room = ""
	}
	log.Info().Str("module", "app.registry").Str("conn", string(id)).Msg("removed room association")
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
