package ortc

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type Transport struct {
	id     string
	router *Router
	params engine.TransportParameters

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	// ready closes once DTLS is up and SRTP keys exist.
	ready chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	closed    bool
	connected bool
	producers map[string]*Producer
	consumers map[string]*Consumer

	closer engine.CloseSignal
	logger zerolog.Logger
}

var _ engine.Transport = (*Transport)(nil)

func (t *Transport) ID() string                              { return t.id }
func (t *Transport) Parameters() engine.TransportParameters { return t.params }
func (t *Transport) OnClose(fn func())                       { t.closer.OnClose(fn) }

// watch closes the transport when the remote goes away.
func (t *Transport) watch() {
	t.ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		t.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICETransportStateFailed {
			go t.Close()
		}
	})
	t.dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
		t.logger.Info().Str("dtls_state", s.String()).Msg("DTLS state")
		if s == webrtc.DTLSTransportStateClosed || s == webrtc.DTLSTransportStateFailed {
			go t.Close()
		}
	})
}

// Connect records the remote parameters and starts ICE and DTLS in the
// background. The server side is always ICE controlled.
func (t *Transport) Connect(ctx context.Context, params engine.ConnectParameters) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if params.ICEParameters == nil {
		return ErrICEParametersRequired
	}
	if len(params.DTLSParameters.Fingerprints) == 0 {
		return ErrNoFingerprints
	}
	candidates, err := ICECandidatesTo(params.ICECandidates)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.connected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connected = true
	t.mu.Unlock()

	if err := t.ice.SetRemoteCandidates(candidates); err != nil {
		return err
	}
	iceParams := ICEParametersTo(*params.ICEParameters)
	dtlsParams := DTLSParametersTo(params.DTLSParameters)
	t.router.engine.spawn("transport start", func() { t.start(iceParams, dtlsParams) })
	return nil
}

func (t *Transport) start(iceParams webrtc.ICEParameters, dtlsParams webrtc.DTLSParameters) {
	role := webrtc.ICERoleControlled
	if err := t.ice.Start(nil, iceParams, &role); err != nil {
		t.logger.Warn().Err(err).Msg("ICE start failed")
		t.Close()
		return
	}
	if err := t.dtls.Start(dtlsParams); err != nil {
		t.logger.Warn().Err(err).Msg("DTLS start failed")
		t.Close()
		return
	}
	close(t.ready)
	t.logger.Info().Msg("transport connected")
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params engine.RTPParameters) (engine.Producer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !engine.Compatible(params, t.router.caps) {
		return nil, ErrUnsupportedCodec
	}
	recv, err := ReceiveParameters(params)
	if err != nil {
		return nil, err
	}
	receiver, err := t.router.api.NewRTPReceiver(CodecType(kind), t.dtls)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	p := &Producer{
		id:        id,
		kind:      kind,
		params:    params,
		transport: t,
		receiver:  receiver,
		relay:     newRelay(),
		consumers: make(map[string]*Consumer),
		done:      make(chan struct{}),
		logger:    t.logger.With().Str("producer", id).Logger(),
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = receiver.Stop()
		return nil, ErrClosed
	}
	t.producers[id] = p
	t.mu.Unlock()
	t.router.addProducer(p)

	t.router.engine.spawn("producer relay", func() { p.pump(recv) })
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, producerID string, caps engine.RTPCapabilities) (engine.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := t.router.producer(producerID)
	if !ok {
		return nil, ErrNoProducer
	}
	params, ok := engine.ConsumerParameters(p.params, caps, 0)
	if !ok {
		return nil, ErrCannotConsume
	}
	codec, ok := t.router.codecFor(params.Codecs[0])
	if !ok {
		return nil, ErrCannotConsume
	}

	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(CodecCapabilityTo(codec), id, producerID)
	if err != nil {
		return nil, err
	}
	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, err
	}
	send := sender.GetParameters()
	if err := sender.Send(send); err != nil {
		_ = sender.Stop()
		return nil, err
	}
	params.Codecs[0].PayloadType = codec.PreferredPayloadType
	params.Encodings = []engine.Encoding{{SSRC: uint32(send.Encodings[0].SSRC)}}

	c := &Consumer{
		id:        id,
		producer:  p,
		kind:      p.kind,
		params:    params,
		transport: t,
		sender:    sender,
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = sender.Stop()
		return nil, ErrClosed
	}
	t.consumers[id] = c
	t.mu.Unlock()
	if !p.attach(c, track) {
		c.Close()
		return nil, ErrNoProducer
	}

	t.router.engine.spawn("consumer rtcp", c.drainRTCP)
	return c, nil
}

// Close closes everything made on t, then t itself.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.done)
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
	if err := t.dtls.Stop(); err != nil {
		t.logger.Debug().Err(err).Msg("dtls stop")
	}
	if err := t.ice.Stop(); err != nil {
		t.logger.Debug().Err(err).Msg("ice stop")
	}
	_ = t.gatherer.Close()
	t.router.removeTransport(t.id)
	t.closer.Fire()
	t.logger.Debug().Msg("transport closed")
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
