package ortc

import (
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type Producer struct {
	id        string
	kind      domain.MediaKind
	params    engine.RTPParameters
	transport *Transport
	receiver  *webrtc.RTPReceiver
	relay     *relay

	mu        sync.Mutex
	closed    bool
	consumers map[string]*Consumer

	done   chan struct{}
	closer engine.CloseSignal
	logger zerolog.Logger
}

func (p *Producer) ID() string                          { return p.id }
func (p *Producer) Kind() domain.MediaKind              { return p.kind }
func (p *Producer) RTPParameters() engine.RTPParameters { return p.params }
func (p *Producer) OnClose(fn func())                   { p.closer.OnClose(fn) }

// pump waits for the transport to come up, then relays until the source ends.
func (p *Producer) pump(recv webrtc.RTPReceiveParameters) {
	select {
	case <-p.transport.ready:
	case <-p.done:
		return
	}
	if err := p.receiver.Receive(recv); err != nil {
		p.logger.Warn().Err(err).Msg("receive failed")
		p.Close()
		return
	}
	p.logger.Info().Uint32("ssrc", uint32(recv.Encodings[0].SSRC)).Msg("producer receiving")
	track := p.receiver.Track()
	p.relay.run(func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}, &p.logger)
}

func (p *Producer) attach(c *Consumer, w rtpWriter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.consumers[c.id] = c
	p.relay.add(c.id, w)
	return true
}

func (p *Producer) detach(id string) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
	p.relay.remove(id)
}

// Close closes the consumers fed by p, then p.
func (p *Producer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	cs := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		cs = append(cs, c)
	}
	p.mu.Unlock()

	p.transport.router.removeProducer(p.id)
	for _, c := range cs {
		c.Close()
	}
	p.relay.markAllDelete()
	if err := p.receiver.Stop(); err != nil {
		p.logger.Debug().Err(err).Msg("receiver stop")
	}
	p.transport.dropProducer(p.id)
	p.closer.Fire()
}

type Consumer struct {
	id        string
	producer  *Producer
	kind      domain.MediaKind
	params    engine.RTPParameters
	transport *Transport
	sender    *webrtc.RTPSender

	once   sync.Once
	closer engine.CloseSignal
}

func (c *Consumer) ID() string                          { return c.id }
func (c *Consumer) ProducerID() string                  { return c.producer.id }
func (c *Consumer) Kind() domain.MediaKind              { return c.kind }
func (c *Consumer) RTPParameters() engine.RTPParameters { return c.params }
func (c *Consumer) OnClose(fn func())                   { c.closer.OnClose(fn) }

func (c *Consumer) Close() {
	c.once.Do(func() {
		c.producer.detach(c.id)
		_ = c.sender.Stop()
		c.transport.dropConsumer(c.id)
		c.closer.Fire()
	})
}

// drainRTCP keeps the sender's interceptors fed.
func (c *Consumer) drainRTCP() {
	for {
		if _, _, err := c.sender.ReadRTCP(); err != nil {
			return
		}
	}
}
