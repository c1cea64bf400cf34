package ortcdevice

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/ortc"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type transport struct {
	id     string
	device *Device
	api    *webrtc.API
	remote engine.TransportParameters
	local  engine.ConnectParameters

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	// ready closes once DTLS is up.
	ready  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	started   bool
	closed    bool
	senders   []*webrtc.RTPSender
	receivers []*webrtc.RTPReceiver

	logger zerolog.Logger
}

func (t *transport) ID() string                                  { return t.id }
func (t *transport) ConnectParameters() engine.ConnectParameters { return t.local }

// Start runs ICE and DTLS toward the server in the background.
func (t *transport) Start() error {
	candidates, err := ortc.ICECandidatesTo(t.remote.ICECandidates)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if t.started {
		t.mu.Unlock()
		return nil
	}
	t.started = true
	t.mu.Unlock()

	if err := t.ice.SetRemoteCandidates(candidates); err != nil {
		return err
	}
	go t.connect()
	return nil
}

func (t *transport) connect() {
	role := webrtc.ICERoleControlling
	if err := t.ice.Start(nil, ortc.ICEParametersTo(t.remote.ICEParameters), &role); err != nil {
		t.logger.Warn().Err(err).Msg("ICE start failed")
		_ = t.Close()
		return
	}
	if err := t.dtls.Start(ortc.DTLSParametersTo(t.remote.DTLSParameters)); err != nil {
		t.logger.Warn().Err(err).Msg("DTLS start failed")
		_ = t.Close()
		return
	}
	close(t.ready)
	t.logger.Info().Msg("transport connected")
}

// waitReady reports false if the transport closed first.
func (t *transport) waitReady() bool {
	select {
	case <-t.ready:
		return true
	case <-t.ctx.Done():
		return false
	}
}

func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	senders, receivers := t.senders, t.receivers
	t.senders, t.receivers = nil, nil
	t.mu.Unlock()

	t.cancel()
	var errs []error
	for _, s := range senders {
		errs = append(errs, s.Stop())
	}
	for _, r := range receivers {
		errs = append(errs, r.Stop())
	}
	errs = append(errs, t.dtls.Stop(), t.ice.Stop(), t.gatherer.Close())
	t.device.forget(t.id)
	t.logger.Debug().Msg("transport closed")
	return errors.Join(errs...)
}

type sendTransport struct {
	*transport
}

// Produce binds the device's source to an opus track and starts feeding it
// once DTLS is up.
func (t *sendTransport) Produce() (domain.MediaKind, engine.RTPParameters, error) {
	caps := t.device.RTPCapabilities()
	if len(caps.Codecs) == 0 {
		return "", engine.RTPParameters{}, ErrNotLoaded
	}
	codec := caps.Codecs[0]

	track, err := webrtc.NewTrackLocalStaticSample(ortc.CodecCapabilityTo(codec), "audio", "voicespaces")
	if err != nil {
		return "", engine.RTPParameters{}, err
	}
	sender, err := t.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return "", engine.RTPParameters{}, err
	}
	send := sender.GetParameters()
	if err := sender.Send(send); err != nil {
		_ = sender.Stop()
		return "", engine.RTPParameters{}, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = sender.Stop()
		return "", engine.RTPParameters{}, ErrClosed
	}
	t.senders = append(t.senders, sender)
	t.mu.Unlock()

	go drainRTCP(sender)
	go func() {
		if !t.waitReady() {
			return
		}
		if err := t.device.opts.Source.Stream(t.ctx, track); err != nil {
			t.logger.Warn().Err(err).Msg("source stopped")
			return
		}
		t.logger.Info().Msg("source finished")
	}()

	params := engine.RTPParameters{
		Codecs: []engine.CodecParameters{{
			MimeType:    codec.MimeType,
			PayloadType: codec.PreferredPayloadType,
			ClockRate:   codec.ClockRate,
			Channels:    codec.Channels,
			Parameters:  codec.Parameters,
		}},
		Encodings: []engine.Encoding{{SSRC: uint32(send.Encodings[0].SSRC)}},
	}
	return domain.KindAudio, params, nil
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

type recvTransport struct {
	*transport
}

// Consume starts receiving once DTLS is up and copies packets into the
// peer's sink until the transport closes.
func (t *recvTransport) Consume(peer domain.ConnectionID, params protocol.ConsumerParams) error {
	if len(params.RTPParameters.Codecs) == 0 {
		return ErrNoCodec
	}
	recvParams, err := ortc.ReceiveParameters(params.RTPParameters)
	if err != nil {
		return err
	}
	receiver, err := t.api.NewRTPReceiver(ortc.CodecType(params.Kind), t.dtls)
	if err != nil {
		return err
	}
	sink, err := t.device.opts.Sinks(peer, params.RTPParameters.Codecs[0])
	if err != nil {
		_ = receiver.Stop()
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = receiver.Stop()
		_ = sink.Close()
		return ErrClosed
	}
	t.receivers = append(t.receivers, receiver)
	t.mu.Unlock()

	logger := t.logger.With().Str("peer", string(peer)).Str("consumer", string(params.ID)).Logger()
	go func() {
		defer func() {
			if err := sink.Close(); err != nil {
				logger.Warn().Err(err).Msg("sink close")
			}
		}()
		if !t.waitReady() {
			return
		}
		if err := receiver.Receive(recvParams); err != nil {
			logger.Warn().Err(err).Msg("receive failed")
			return
		}
		track := receiver.Track()
		logger.Info().Uint32("ssrc", uint32(track.SSRC())).Msg("receiving")
		for {
			pkt, _, err := track.ReadRTP()
			if err != nil {
				logger.Debug().Err(err).Msg("track ended")
				return
			}
			if err := sink.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Msg("sink write")
				return
			}
		}
	}()
	return nil
}
