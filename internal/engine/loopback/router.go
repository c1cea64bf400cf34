package loopback

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/google/uuid"
)

type Router struct {
	id     string
	engine *Engine
	caps   engine.RTPCapabilities

	mu         sync.Mutex
	closed     bool
	transports map[string]*Transport
	producers  map[string]*Producer
	// consumers by producer id
	consumers map[string]map[string]*Consumer
}

var _ engine.RoutingContext = (*Router)(nil)

func (r *Router) ID() string                              { return r.id }
func (r *Router) RTPCapabilities() engine.RTPCapabilities { return r.caps }

func (r *Router) CanConsume(producerID string, caps engine.RTPCapabilities) bool {
	r.mu.Lock()
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	return engine.Compatible(p.params, caps)
}

func (r *Router) CreateTransport(ctx context.Context) (engine.Transport, error) {
	if err := r.engine.check(ctx, OpCreateTransport); err != nil {
		return nil, err
	}
	r.engine.wait()

	id := uuid.NewString()
	t := &Transport{
		id:     id,
		router: r,
		params: engine.TransportParameters{
			ID: id,
			ICEParameters: engine.ICEParameters{
				UsernameFragment: randomHex(8),
				Password:         randomHex(16),
				ICELite:          true,
			},
			ICECandidates: []engine.ICECandidate{{
				Foundation: "udpcandidate",
				Priority:   1076302079,
				Address:    "127.0.0.1",
				Protocol:   "udp",
				Port:       r.engine.port(),
				Type:       "host",
			}},
			DTLSParameters: engine.DTLSParameters{
				Role:         "auto",
				Fingerprints: []engine.Fingerprint{{Algorithm: "sha-256", Value: fingerprint()}},
			},
		},
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	r.transports[id] = t
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

func (r *Router) addConsumer(c *Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.consumers[c.producerID]
	if !ok {
		set = make(map[string]*Consumer)
		r.consumers[c.producerID] = set
	}
	set[c.id] = c
}

// removeProducer drops p and hands back the consumers it fed.
func (r *Router) removeProducer(p *Producer) []*Consumer {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.producers, p.id)
	set := r.consumers[p.id]
	delete(r.consumers, p.id)
	out := make([]*Consumer, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

func (r *Router) removeConsumer(c *Consumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.consumers[c.producerID]; ok {
		delete(set, c.id)
	}
}

func (r *Router) removeTransport(t *Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.transports, t.id)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func fingerprint() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02X", x)
	}
	return strings.Join(parts, ":")
}
