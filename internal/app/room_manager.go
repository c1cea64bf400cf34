package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// RoomPolicy says when routing contexts are allocated.
type RoomPolicy string

const (
	// RoomsLazy allocates on first use of an id.
	RoomsLazy RoomPolicy = "lazy"
	// RoomsEager allocates the preloaded ids at start and knows no others.
	RoomsEager RoomPolicy = "eager"
)

func ParseRoomPolicy(s string) (RoomPolicy, error) {
	switch RoomPolicy(s) {
	case "", RoomsLazy:
		return RoomsLazy, nil
	case RoomsEager:
		return RoomsEager, nil
	}
	return "", fmt.Errorf("unknown room policy %q", s)
}

type RoomDirectoryImpl struct {
	engine  engine.Engine
	codecs  []engine.CodecCapability
	policy  RoomPolicy
	timeout time.Duration

	group singleflight.Group

	mu     sync.RWMutex
	rooms  map[domain.RoomID]core.RoomService
	closed bool
}

var _ core.RoomDirectory = (*RoomDirectoryImpl)(nil)

func NewRoomDirectory(eng engine.Engine, codecs []engine.CodecCapability, policy RoomPolicy, timeout time.Duration) *RoomDirectoryImpl {
	return &RoomDirectoryImpl{
		engine:  eng,
		codecs:  codecs,
		policy:  policy,
		timeout: timeout,
		rooms:   make(map[domain.RoomID]core.RoomService),
	}
}

func (d *RoomDirectoryImpl) Policy() RoomPolicy { return d.policy }

// Preload allocates ids up front. Eager directories must be preloaded.
func (d *RoomDirectoryImpl) Preload(ctx context.Context, ids []domain.RoomID) error {
	for _, id := range ids {
		if _, err := d.GetOrCreate(ctx, id); err != nil {
			return fmt.Errorf("preload room %s: %w", id, err)
		}
	}
	log.Info().Str("module", "app.rooms").Int("count", len(ids)).Str("policy", string(d.policy)).Msg("rooms preloaded")
	return nil
}

func (d *RoomDirectoryImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	room, ok := d.rooms[id]
	return room, ok
}

// GetOrCreate is idempotent. Concurrent first calls for one id share a single
// engine allocation.
func (d *RoomDirectoryImpl) GetOrCreate(ctx context.Context, id domain.RoomID) (core.RoomService, error) {
	if room, ok := d.Get(id); ok {
		return room, nil
	}
	v, err, _ := d.group.Do(string(id), func() (any, error) {
		if room, ok := d.Get(id); ok {
			return room, nil
		}
		// the allocation is shared, so one caller going away must not abort it
		router, err := EngineCall(context.WithoutCancel(ctx), d.timeout, "create_routing_context",
			func(ctx context.Context) (engine.RoutingContext, error) {
				return d.engine.CreateRoutingContext(ctx, d.codecs)
			})
		if err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("room", string(id)).Msg("routing context allocation failed")
			return nil, fmt.Errorf("%w: %w", domain.ErrRoomUnavailable, err)
		}

		room := core.NewRoomService(id, router)
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			router.Close()
			return nil, fmt.Errorf("%w: directory closed", domain.ErrRoomUnavailable)
		}
		d.rooms[id] = room
		d.mu.Unlock()
		metrics.Rooms.Inc()
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("router", router.ID()).Msg("room created")
		return room, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(core.RoomService), nil
}

func (d *RoomDirectoryImpl) Resolve(ctx context.Context, id domain.RoomID) (core.RoomService, error) {
	if d.policy == RoomsLazy {
		return d.GetOrCreate(ctx, id)
	}
	if room, ok := d.Get(id); ok {
		return room, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrRoomNotFound, id)
}

func (d *RoomDirectoryImpl) List() []core.RoomInfo {
	d.mu.RLock()
	out := make([]core.RoomInfo, 0, len(d.rooms))
	for id, r := range d.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close releases every routing context. Only called at shutdown.
func (d *RoomDirectoryImpl) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	rooms := make([]core.RoomService, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()
	for _, r := range rooms {
		r.Close()
	}
	metrics.Rooms.Set(0)
	log.Info().Str("module", "app.rooms").Int("count", len(rooms)).Msg("rooms closed")
}
