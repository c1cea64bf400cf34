package loopback

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/google/uuid"
)

var (
	ErrAlreadyConnected = errors.New("loopback: transport already connected")
	ErrNoFingerprints   = errors.New("loopback: dtls fingerprints missing")
	ErrUnsupportedCodec = errors.New("loopback: producer codec not supported by router")
	ErrNoProducer       = errors.New("loopback: producer not found")
	ErrCannotConsume    = errors.New("loopback: cannot consume")
)

type Transport struct {
	id     string
	router *Router
	params engine.TransportParameters

	mu        sync.Mutex
	closed    bool
	connected bool
	producers map[string]*Producer
	consumers map[string]*Consumer

	closer engine.CloseSignal
}

var _ engine.Transport = (*Transport)(nil)

func (t *Transport) ID() string                              { return t.id }
func (t *Transport) Parameters() engine.TransportParameters { return t.params }
func (t *Transport) OnClose(fn func())                       { t.closer.OnClose(fn) }

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Connect(ctx context.Context, params engine.ConnectParameters) error {
	if err := t.router.engine.check(ctx, OpConnect); err != nil {
		return err
	}
	if len(params.DTLSParameters.Fingerprints) == 0 {
		return ErrNoFingerprints
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.connected {
		return ErrAlreadyConnected
	}
	t.connected = true
	return nil
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params engine.RTPParameters) (engine.Producer, error) {
	if err := t.router.engine.check(ctx, OpProduce); err != nil {
		return nil, err
	}
	if !engine.Compatible(params, t.router.caps) {
		return nil, ErrUnsupportedCodec
	}
	p := &Producer{
		id:        uuid.NewString(),
		kind:      kind,
		params:    params,
		transport: t,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()
	t.router.addProducer(p)
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, caps engine.RTPCapabilities) (engine.Consumer, error) {
	if err := t.router.engine.check(ctx, OpConsume); err != nil {
		return nil, err
	}
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, ErrNoProducer
	}
	params, ok := engine.ConsumerParameters(p.params, caps, rand.Uint32())
	if !ok {
		return nil, ErrCannotConsume
	}
	c := &Consumer{
		id:         uuid.NewString(),
		producerID: producerID,
		kind:       p.kind,
		params:     params,
		transport:  t,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()
	t.router.addConsumer(c)
	return c, nil
}

// Close closes the producers and consumers made on t, then t itself.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	ps := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		ps = append(ps, p)
	}
	cs := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		cs = append(cs, c)
	}
	t.mu.Unlock()

	for _, p := range ps {
		p.Close()
	}
	for _, c := range cs {
		c.Close()
	}
	t.router.removeTransport(t)
	t.closer.Fire()
}

func (t *Transport) dropProducer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.producers, id)
}

func (t *Transport) dropConsumer(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.consumers, id)
}

type Producer struct {
	id        string
	kind      domain.MediaKind
	params    engine.RTPParameters
	transport *Transport
	closer    engine.CloseSignal
	once      sync.Once
}

func (p *Producer) ID() string                          { return p.id }
func (p *Producer) Kind() domain.MediaKind              { return p.kind }
func (p *Producer) RTPParameters() engine.RTPParameters { return p.params }
func (p *Producer) OnClose(fn func())                   { p.closer.OnClose(fn) }
func (p *Producer) Closed() bool                        { return p.closer.Closed() }

func (p *Producer) Close() {
	p.once.Do(func() {
		for _, c := range p.transport.router.removeProducer(p) {
			c.Close()
		}
		p.transport.dropProducer(p.id)
		p.closer.Fire()
	})
}

type Consumer struct {
	id         string
	producerID string
	kind       domain.MediaKind
	params     engine.RTPParameters
	transport  *Transport
	closer     engine.CloseSignal
	once       sync.Once
}

func (c *Consumer) ID() string                          { return c.id }
func (c *Consumer) ProducerID() string                  { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind              { return c.kind }
func (c *Consumer) RTPParameters() engine.RTPParameters { return c.params }
func (c *Consumer) OnClose(fn func())                   { c.closer.OnClose(fn) }
func (c *Consumer) Closed() bool                        { return c.closer.Closed() }

func (c *Consumer) Close() {
	c.once.Do(func() {
		c.transport.router.removeConsumer(c)
		c.transport.dropConsumer(c.id)
		c.closer.Fire()
	})
}
