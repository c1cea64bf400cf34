// Package ortc is the production media engine, built on pion's ORTC API.
// Every transport is its own ICE gatherer, ICE transport and DTLS transport;
// producers are RTP receivers and consumers are RTP senders fed by a relay.
package ortc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed                = errors.New("ortc: closed")
	ErrAlreadyConnected      = errors.New("ortc: transport already connected")
	ErrNoFingerprints        = errors.New("ortc: dtls fingerprints missing")
	ErrICEParametersRequired = errors.New("ortc: ice parameters required")
	ErrNoEncodings           = errors.New("ortc: rtp parameters carry no ssrc")
	ErrUnsupportedCodec      = errors.New("ortc: producer codec not supported by router")
	ErrNoProducer            = errors.New("ortc: producer not found")
	ErrCannotConsume         = errors.New("ortc: cannot consume")
)

type Config struct {
	// ListenIP restricts gathering to one local address. Empty or 0.0.0.0
	// gathers on every interface.
	ListenIP string
	// AnnouncedIP replaces host candidate addresses, for servers behind 1:1 NAT.
	AnnouncedIP string
	PortMin     uint16
	PortMax     uint16
}

type Engine struct {
	settings webrtc.SettingEngine

	mu      sync.Mutex
	routers map[string]*Router
	closed  bool

	died    chan error
	dieOnce sync.Once
}

var _ engine.Engine = (*Engine)(nil)

func New(cfg Config) (*Engine, error) {
	se := webrtc.SettingEngine{}
	if cfg.PortMin != 0 || cfg.PortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("ortc: port range %d-%d: %w", cfg.PortMin, cfg.PortMax, err)
		}
	}
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	if cfg.ListenIP != "" && cfg.ListenIP != "0.0.0.0" {
		ip := net.ParseIP(cfg.ListenIP)
		if ip == nil {
			return nil, fmt.Errorf("ortc: bad listen ip %q", cfg.ListenIP)
		}
		se.SetIPFilter(func(candidate net.IP) bool { return candidate.Equal(ip) })
		if ip.IsLoopback() {
			se.SetIncludeLoopbackCandidate(true)
		}
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	log.Info().Str("module", "engine.ortc").
		Uint16("port_min", cfg.PortMin).
		Uint16("port_max", cfg.PortMax).
		Str("listen_ip", cfg.ListenIP).
		Str("announced_ip", cfg.AnnouncedIP).
		Msg("engine ready")

	return &Engine{
		settings: se,
		routers:  make(map[string]*Router),
		died:     make(chan error, 1),
	}, nil
}

func (e *Engine) CreateRoutingContext(ctx context.Context, codecs []engine.CodecCapability) (engine.RoutingContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	me, err := NewMediaEngine(codecs)
	if err != nil {
		return nil, err
	}
	r := &Router{
		id:         uuid.NewString(),
		engine:     e,
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(e.settings)),
		caps:       engine.RTPCapabilities{Codecs: append([]engine.CodecCapability(nil), codecs...)},
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	e.routers[r.id] = r
	log.Debug().Str("module", "engine.ortc").Str("router", r.id).Msg("router created")
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

// die reports the engine unusable. Only the first cause is delivered.
func (e *Engine) die(err error) {
	e.dieOnce.Do(func() {
		log.Error().Err(err).Str("module", "engine.ortc").Msg("engine died")
		e.died <- err
	})
}

// spawn runs fn on its own goroutine. A panic there means media state is
// no longer trustworthy and kills the engine.
func (e *Engine) spawn(what string, fn func()) {
	go func() {
		defer func() {
			if v := recover(); v != nil {
				e.die(fmt.Errorf("ortc: %s panicked: %v", what, v))
			}
		}()
		fn()
	}()
}

func (e *Engine) forget(r *Router) {
	e.mu.Lock()
	delete(e.routers, r.id)
	e.mu.Unlock()
}
