package ortc

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Router struct {
	id     string
	engine *Engine
	api    *webrtc.API
	caps   engine.RTPCapabilities

	mu         sync.Mutex
	closed     bool
	transports map[string]*Transport
	producers  map[string]*Producer
}

var _ engine.RoutingContext = (*Router)(nil)

func (r *Router) ID() string                              { return r.id }
func (r *Router) RTPCapabilities() engine.RTPCapabilities { return r.caps }

func (r *Router) CanConsume(producerID string, caps engine.RTPCapabilities) bool {
	p, ok := r.producer(producerID)
	if !ok {
		return false
	}
	return engine.Compatible(p.params, caps)
}

// CreateTransport gathers local candidates before returning, so the
// parameters handed to the client are complete.
func (r *Router) CreateTransport(ctx context.Context) (engine.Transport, error) {
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("ortc: ice gatherer: %w", err)
	}
	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ortc: dtls transport: %w", err)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ortc: gather: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	id := uuid.NewString()
	t := &Transport{
		id:       id,
		router:   r,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		params: engine.TransportParameters{
			ID:             id,
			ICEParameters:  ICEParametersFrom(iceParams),
			ICECandidates:  ICECandidatesFrom(candidates),
			DTLSParameters: DTLSParametersFrom(dtlsParams),
		},
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
		logger:    log.With().Str("module", "engine.ortc").Str("transport", id).Logger(),
	}
	t.watch()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		t.Close()
		return nil, ErrClosed
	}
	r.transports[id] = t
	r.mu.Unlock()

	t.logger.Debug().Int("candidates", len(candidates)).Msg("transport created")
	return t, nil
}

func (r *Router) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ts := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		ts = append(ts, t)
	}
	r.mu.Unlock()
	for _, t := range ts {
		t.Close()
	}
	r.engine.forget(r)
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.producers[p.id] = p
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, id)
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, id)
}

// codecFor returns the router's own entry for a negotiated codec.
func (r *Router) codecFor(p engine.CodecParameters) (engine.CodecCapability, bool) {
	return engine.MatchCodec(r.caps, p)
}
