// Package loopback is an in-process media engine. It negotiates nothing and
// forwards nothing, but keeps the full object graph and close cascade of a
// real engine. Used for tests and for running the signaling server without
// media.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type Op string

const (
	OpCreateRouter    Op = "create-router"
	OpCreateTransport Op = "create-transport"
	OpConnect         Op = "connect"
	OpProduce         Op = "produce"
	OpConsume         Op = "consume"
)

var ErrClosed = errors.New("loopback: closed")

type Engine struct {
	mu      sync.Mutex
	routers map[string]*Router
	faults  map[Op]error
	gate    *Gate
	closed  bool

	minPort, maxPort, nextPort uint16

	died    chan error
	dieOnce sync.Once
}

var _ engine.Engine = (*Engine)(nil)

func New(minPort, maxPort uint16) *Engine {
	if maxPort < minPort {
		minPort, maxPort = maxPort, minPort
	}
	return &Engine{
		routers:  make(map[string]*Router),
		faults:   make(map[Op]error),
		minPort:  minPort,
		maxPort:  maxPort,
		nextPort: minPort,
		died:     make(chan error, 1),
	}
}

func (e *Engine) CreateRoutingContext(ctx context.Context, codecs []engine.CodecCapability) (engine.RoutingContext, error) {
	if err := e.check(ctx, OpCreateRouter); err != nil {
		return nil, err
	}
	r := &Router{
		id:         uuid.NewString(),
		engine:     e,
		caps:       engine.RTPCapabilities{Codecs: append([]engine.CodecCapability(nil), codecs...)},
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
		consumers:  make(map[string]map[string]*Consumer),
	}
	e.mu.Lock()
	e.routers[r.id] = r
	e.mu.Unlock()
	log.Debug().Str("module", "engine.loopback").Str("router", r.id).Msg("router created")
	return r, nil
}

func (e *Engine) Died() <-chan error { return e.died }

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	routers := make([]*Router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.mu.Unlock()
	for _, r := range routers {
		r.Close()
	}
	return nil
}

// Kill simulates the engine process dying.
func (e *Engine) Kill(cause error) {
	e.dieOnce.Do(func() {
		e.died <- fmt.Errorf("loopback: %w", cause)
		_ = e.Close()
	})
}

// Fail makes every following call of op return err. A nil err clears it.
func (e *Engine) Fail(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.faults, op)
		return
	}
	e.faults[op] = err
}

// OpenTransports counts transports not yet closed across all routers.
func (e *Engine) OpenTransports() int {
	e.mu.Lock()
	routers := make([]*Router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.mu.Unlock()
	n := 0
	for _, r := range routers {
		r.mu.Lock()
		n += len(r.transports)
		r.mu.Unlock()
	}
	return n
}

// Routers counts allocated routing contexts.
func (e *Engine) Routers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routers)
}

func (e *Engine) check(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.faults[op]
}

func (e *Engine) port() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.nextPort
	if e.nextPort >= e.maxPort {
		e.nextPort = e.minPort
	} else {
		e.nextPort++
	}
	return p
}

func (e *Engine) forget(r *Router) {
	e.mu.Lock()
	delete(e.routers, r.id)
	e.mu.Unlock()
}
