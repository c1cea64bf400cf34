// Package ortcdevice is a client.Device on pion's ORTC API: the client is
// ICE controlling and takes the DTLS server role.
package ortcdevice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/client"
	"github.com/dkeye/VoiceSpaces/internal/client/audio"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/ortc"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotLoaded = errors.New("ortcdevice: device not loaded")
	ErrNoCodec   = errors.New("ortcdevice: room offers no opus codec")
	ErrClosed    = errors.New("ortcdevice: closed")
)

const gatherTimeout = 10 * time.Second

type Options struct {
	// Source feeds the send transport. Nil sends silence.
	Source audio.Source
	// Sinks receives each peer's audio. Nil discards it.
	Sinks audio.SinkFactory
	// LoopbackCandidates allows gathering on 127.0.0.1 for local servers.
	LoopbackCandidates bool
}

type Device struct {
	opts     Options
	settings webrtc.SettingEngine

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	api        *webrtc.API
	caps       engine.RTPCapabilities
	transports map[string]*transport
}

var _ client.Device = (*Device)(nil)

func New(opts Options) *Device {
	if opts.Source == nil {
		opts.Source = audio.Silence{}
	}
	if opts.Sinks == nil {
		opts.Sinks = audio.Discard
	}
	se := webrtc.SettingEngine{}
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	se.SetIncludeLoopbackCandidate(opts.LoopbackCandidates)

	ctx, cancel := context.WithCancel(context.Background())
	return &Device{
		opts:       opts,
		settings:   se,
		ctx:        ctx,
		cancel:     cancel,
		transports: make(map[string]*transport),
	}
}

// Load keeps the room's opus codecs; the device decodes nothing else.
func (d *Device) Load(caps engine.RTPCapabilities) error {
	var opus []engine.CodecCapability
	for _, c := range caps.Codecs {
		if strings.EqualFold(c.MimeType, webrtc.MimeTypeOpus) {
			opus = append(opus, c)
		}
	}
	if len(opus) == 0 {
		return ErrNoCodec
	}
	me, err := ortc.NewMediaEngine(opus)
	if err != nil {
		return fmt.Errorf("ortcdevice: media engine: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.api = webrtc.NewAPI(webrtc.WithMediaEngine(me), webrtc.WithSettingEngine(d.settings))
	d.caps = engine.RTPCapabilities{Codecs: opus}
	return nil
}

func (d *Device) RTPCapabilities() engine.RTPCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *Device) NewSendTransport(params engine.TransportParameters) (client.SendTransport, error) {
	t, err := d.newTransport(params, "send")
	if err != nil {
		return nil, err
	}
	return &sendTransport{transport: t}, nil
}

func (d *Device) NewRecvTransport(params engine.TransportParameters) (client.RecvTransport, error) {
	t, err := d.newTransport(params, "recv")
	if err != nil {
		return nil, err
	}
	return &recvTransport{transport: t}, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	ts := make([]*transport, 0, len(d.transports))
	for _, t := range d.transports {
		ts = append(ts, t)
	}
	d.mu.Unlock()

	d.cancel()
	var errs []error
	for _, t := range ts {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}

func (d *Device) forget(id string) {
	d.mu.Lock()
	delete(d.transports, id)
	d.mu.Unlock()
}

// newTransport gathers local candidates against the server's parameters.
func (d *Device) newTransport(remote engine.TransportParameters, dir string) (*transport, error) {
	d.mu.Lock()
	api := d.api
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if api == nil {
		return nil, ErrNotLoaded
	}

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, fmt.Errorf("ortcdevice: ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ortcdevice: dtls transport: %w", err)
	}

	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ortcdevice: gather: %w", err)
	}
	select {
	case <-gathered:
	case <-time.After(gatherTimeout):
		_ = gatherer.Close()
		return nil, fmt.Errorf("ortcdevice: gather: %w", context.DeadlineExceeded)
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
	local := ortc.DTLSParametersFrom(dtlsParams)
	local.Role = "server"
	ice0 := ortc.ICEParametersFrom(iceParams)

	ctx, cancel := context.WithCancel(d.ctx)
	t := &transport{
		id:       remote.ID,
		device:   d,
		api:      api,
		remote:   remote,
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
		local: engine.ConnectParameters{
			DTLSParameters: local,
			ICEParameters:  &ice0,
			ICECandidates:  ortc.ICECandidatesFrom(candidates),
		},
		ready:  make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: log.With().Str("module", "client.ortc").Str("transport", remote.ID).Str("dir", dir).Logger(),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		_ = t.Close()
		return nil, ErrClosed
	}
	d.transports[t.id] = t
	d.mu.Unlock()
	return t, nil
}
