// Package client drives the peer side of a space: capabilities, send
// transport, producer, join, then one receive transport and consumer per
// remote participant.
package client

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	stepCapabilities  = "get-capabilities"
	stepLoad          = "load-device"
	stepSendTransport = "create-send-transport"
	stepConnectSend   = "connect-send-transport"
	stepProduce       = "create-producer"
	stepJoin          = "join"
	stepParticipants  = "get-participants"
	stepRecvTransport = "create-recv-transport"
	stepConnectRecv   = "connect-recv-transport"
	stepConsume       = "create-consumer"
	stepLeave         = "leave"
)

type Options struct {
	Room domain.RoomID
	// StepTimeout bounds each request. Zero waits forever.
	StepTimeout time.Duration
}

type action int

const (
	actJoin action = iota
	actLeave
	actClose
)

// stepKey names one in-flight request. peer is empty on the send side.
type stepKey struct {
	peer domain.ConnectionID
	seq  uint64
}

type inflight struct {
	step   string
	cancel context.CancelFunc
	// timer is nil without a step timeout.
	timer *time.Timer
}

func (in inflight) stop() {
	in.cancel()
	if in.timer != nil {
		in.timer.Stop()
	}
}

type result struct {
	key  stepKey
	step string
	env  protocol.Envelope
	err  error
}

type peer struct {
	id       domain.ConnectionID
	producer domain.ProducerID
	state    PeerState
	recv     RecvTransport
	key      stepKey
}

// Driver is an explicit state machine. Run is its only goroutine that
// touches state; requests run on their own goroutines and report back.
type Driver struct {
	sig    Signaler
	dev    Device
	opts   Options
	logger zerolog.Logger

	actions  chan action
	results  chan result
	timeouts chan stepKey
	notes    chan Notification
	done     chan struct{}

	state    State
	seq      uint64
	inflight map[stepKey]inflight
	send     SendTransport
	producer domain.ProducerID
	peers    map[domain.ConnectionID]*peer

	snapMu    sync.RWMutex
	stateSnap State
	peerSnap  map[domain.ConnectionID]PeerState
}

func NewDriver(sig Signaler, dev Device, opts Options) *Driver {
	return &Driver{
		sig:      sig,
		dev:      dev,
		opts:     opts,
		logger:   log.With().Str("module", "client").Str("conn", string(sig.ConnectionID())).Str("room", string(opts.Room)).Logger(),
		actions:  make(chan action, 4),
		results:  make(chan result, 16),
		timeouts: make(chan stepKey, 16),
		notes:    make(chan Notification, 256),
		done:     make(chan struct{}),
		inflight: make(map[stepKey]inflight),
		peers:    make(map[domain.ConnectionID]*peer),
		peerSnap: make(map[domain.ConnectionID]PeerState),
	}
}

func (d *Driver) Join()  { d.post(actJoin) }
func (d *Driver) Leave() { d.post(actLeave) }
func (d *Driver) Close() { d.post(actClose) }

func (d *Driver) post(a action) {
	select {
	case d.actions <- a:
	case <-d.done:
	}
}

func (d *Driver) Notifications() <-chan Notification { return d.notes }
func (d *Driver) Done() <-chan struct{}              { return d.done }

func (d *Driver) State() State {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	return d.stateSnap
}

func (d *Driver) Peers() map[domain.ConnectionID]PeerState {
	d.snapMu.RLock()
	defer d.snapMu.RUnlock()
	out := make(map[domain.ConnectionID]PeerState, len(d.peerSnap))
	for k, v := range d.peerSnap {
		out[k] = v
	}
	return out
}

// Run dispatches until the driver is closed, the context ends or the
// signaling channel drops.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.done)
	defer d.teardown()

	events := d.sig.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-d.actions:
			if d.handleAction(ctx, a) {
				return nil
			}
		case r := <-d.results:
			if d.handleResult(ctx, r) {
				return nil
			}
		case k := <-d.timeouts:
			d.handleTimeout(k)
		case env, ok := <-events:
			if !ok {
				d.notify(Notification{State: d.state, Err: ErrSignalClosed})
				return ErrSignalClosed
			}
			d.handleEvent(ctx, env)
		}
	}
}

func (d *Driver) handleAction(ctx context.Context, a action) bool {
	switch a {
	case actJoin:
		if d.state != StateIdle {
			d.notify(Notification{State: d.state, Step: stepJoin, Err: ErrNotIdle})
			return false
		}
		d.setState(StateAwaitingCapabilities, "", nil)
		d.request(ctx, "", stepCapabilities, protocol.TypeGetCapabilities, protocol.RoomRequest{RoomID: d.opts.Room})
	case actLeave:
		d.cancelAll()
		d.request(ctx, "", stepLeave, protocol.TypeLeave, nil)
	case actClose:
		return true
	}
	return false
}

func (d *Driver) request(ctx context.Context, peerID domain.ConnectionID, step string, t protocol.MessageType, data any) {
	d.seq++
	key := stepKey{peer: peerID, seq: d.seq}
	rctx, cancel := context.WithCancel(ctx)
	in := inflight{step: step, cancel: cancel}
	if d.opts.StepTimeout > 0 {
		in.timer = time.AfterFunc(d.opts.StepTimeout, func() {
			select {
			case d.timeouts <- key:
			case <-d.done:
			}
		})
	}
	d.inflight[key] = in
	if p, ok := d.peers[peerID]; ok {
		p.key = key
	}

	go func() {
		env, err := d.sig.Request(rctx, t, data)
		select {
		case d.results <- result{key: key, step: step, env: env, err: err}:
		case <-d.done:
		}
	}()
}

// settle retires key. False means the result is stale.
func (d *Driver) settle(key stepKey) bool {
	in, ok := d.inflight[key]
	if !ok {
		return false
	}
	in.stop()
	delete(d.inflight, key)
	return true
}

func (d *Driver) cancelAll() {
	for k, in := range d.inflight {
		in.stop()
		delete(d.inflight, k)
	}
}

func (d *Driver) handleTimeout(key stepKey) {
	in, ok := d.inflight[key]
	if !ok {
		return
	}
	d.settle(key)
	d.fail(key, in.step, ErrStepTimeout)
}

func (d *Driver) handleResult(ctx context.Context, r result) bool {
	if !d.settle(r.key) {
		d.logger.Debug().Str("step", r.step).Msg("stale result dropped")
		return false
	}
	if r.step == stepLeave {
		if r.err != nil {
			d.logger.Warn().Err(r.err).Msg("leave")
		}
		return true
	}
	if r.err != nil {
		d.fail(r.key, r.step, r.err)
		return false
	}
	if r.key.peer != "" {
		d.advancePeer(ctx, r)
		return false
	}
	d.advance(ctx, r)
	return false
}

// advance moves the send-side pipeline one step.
func (d *Driver) advance(ctx context.Context, r result) {
	room := d.opts.Room
	switch r.step {
	case stepCapabilities:
		var resp protocol.CapabilitiesResponse
		if err := r.env.Bind(&resp); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		if err := d.dev.Load(resp.RTPCapabilities); err != nil {
			d.fail(r.key, stepLoad, err)
			return
		}
		d.setState(StateDeviceReady, r.step, nil)
		d.setState(StateAwaitingSendTransport, "", nil)
		d.request(ctx, "", stepSendTransport, protocol.TypeCreateTransport,
			protocol.CreateTransportRequest{RoomID: room, Direction: "send"})

	case stepSendTransport:
		var resp struct {
			Params engine.TransportParameters `json:"params"`
		}
		if err := r.env.Bind(&resp); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		send, err := d.dev.NewSendTransport(resp.Params)
		if err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		d.send = send
		d.request(ctx, "", stepConnectSend, protocol.TypeConnectTransport, protocol.NewConnectTransportRequest(room, domain.TransportID(send.ID()), send.ConnectParameters()))

	case stepConnectSend:
		if err := d.send.Start(); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		d.setState(StateProducing, r.step, nil)
		kind, params, err := d.send.Produce()
		if err != nil {
			d.fail(r.key, stepProduce, err)
			return
		}
		d.request(ctx, "", stepProduce, protocol.TypeCreateProducer, protocol.CreateProducerRequest{
			RoomID:        room,
			TransportID:   domain.TransportID(d.send.ID()),
			Kind:          string(kind),
			RTPParameters: params,
		})

	case stepProduce:
		var resp protocol.ProducerResponse
		if err := r.env.Bind(&resp); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		d.producer = resp.ID
		d.setState(StateJoining, r.step, nil)
		d.request(ctx, "", stepJoin, protocol.TypeJoin, protocol.JoinRequest{RoomID: room, ProducerID: d.producer})

	case stepJoin:
		d.setState(StateJoined, r.step, nil)
		d.request(ctx, "", stepParticipants, protocol.TypeGetParticipants, protocol.RoomRequest{RoomID: room})

	case stepParticipants:
		var resp protocol.ParticipantsResponse
		if err := r.env.Bind(&resp); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		ids := make([]domain.ConnectionID, 0, len(resp.Participants))
		for id := range resp.Participants {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		for _, id := range ids {
			if id == d.sig.ConnectionID() {
				continue
			}
			d.startPeer(ctx, id, resp.Participants[id].ProducerID)
		}
	}
}

// startPeer runs the receive pipeline for one participant.
func (d *Driver) startPeer(ctx context.Context, id domain.ConnectionID, producer domain.ProducerID) {
	if p, ok := d.peers[id]; ok {
		if p.producer == producer && p.state != PeerFailed && p.state != PeerLeft {
			return
		}
		d.dropPeer(p)
	}
	p := &peer{id: id, producer: producer, state: PeerAwaitingTransport}
	d.peers[id] = p
	d.setPeer(p, "", nil)
	d.request(ctx, id, stepRecvTransport, protocol.TypeCreateTransport,
		protocol.CreateTransportRequest{RoomID: d.opts.Room, Direction: "recv"})
}

func (d *Driver) dropPeer(p *peer) {
	d.settle(p.key)
	if p.recv != nil {
		_ = p.recv.Close()
		p.recv = nil
	}
}

func (d *Driver) advancePeer(ctx context.Context, r result) {
	p, ok := d.peers[r.key.peer]
	if !ok || p.key != r.key || p.state == PeerLeft {
		return
	}
	room := d.opts.Room
	switch r.step {
	case stepRecvTransport:
		var resp struct {
			Params engine.TransportParameters `json:"params"`
		}
		if err := r.env.Bind(&resp); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		recv, err := d.dev.NewRecvTransport(resp.Params)
		if err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		p.recv = recv
		d.setPeer(p, r.step, nil, PeerConnecting)
		d.request(ctx, p.id, stepConnectRecv, protocol.TypeConnectTransport, protocol.NewConnectTransportRequest(room, domain.TransportID(recv.ID()), recv.ConnectParameters()))

	case stepConnectRecv:
		if err := p.recv.Start(); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		d.setPeer(p, r.step, nil, PeerAwaitingConsumer)
		d.request(ctx, p.id, stepConsume, protocol.TypeCreateConsumer, protocol.CreateConsumerRequest{
			RoomID:          room,
			TransportID:     domain.TransportID(p.recv.ID()),
			ProducerID:      p.producer,
			RTPCapabilities: d.dev.RTPCapabilities(),
		})

	case stepConsume:
		var resp struct {
			Params protocol.ConsumerParams `json:"params"`
		}
		if err := r.env.Bind(&resp); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		if err := p.recv.Consume(p.id, resp.Params); err != nil {
			d.fail(r.key, r.step, err)
			return
		}
		d.setPeer(p, r.step, nil, PeerConsuming)
	}
}

func (d *Driver) handleEvent(ctx context.Context, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeUserJoined:
		var m protocol.UserJoined
		if err := env.Bind(&m); err != nil {
			d.logger.Warn().Err(err).Msg("bad join notification")
			return
		}
		if m.ConnectionID == d.sig.ConnectionID() || m.ProducerID == "" {
			return
		}
		if d.state != StateJoining && d.state != StateJoined {
			d.logger.Debug().Str("peer", string(m.ConnectionID)).Str("state", d.state.String()).Msg("join notification ignored")
			return
		}
		d.logger.Info().Str("peer", string(m.ConnectionID)).Msg("peer joined")
		d.startPeer(ctx, m.ConnectionID, m.ProducerID)

	case protocol.TypeUserLeft:
		var m protocol.UserLeft
		if err := env.Bind(&m); err != nil {
			d.logger.Warn().Err(err).Msg("bad leave notification")
			return
		}
		// Bookkeeping only; the server's close cascade ends the media.
		if p, ok := d.peers[m.ConnectionID]; ok {
			d.logger.Info().Str("peer", string(m.ConnectionID)).Msg("peer left")
			d.settle(p.key)
			d.setPeer(p, "", nil, PeerLeft)
		}

	case protocol.TypeError:
		var body protocol.ErrorBody
		_ = env.Bind(&body)
		d.logger.Warn().Str("code", body.Code).Str("error", body.Error).Msg("server error")
	}
}

// fail halts the step's pipeline only. A receive-side failure leaves the
// send side and other peers alone; a send-side failure after joining is
// reported but keeps the session.
func (d *Driver) fail(key stepKey, step string, err error) {
	d.logger.Warn().Err(err).Str("step", step).Str("peer", string(key.peer)).Msg("step failed")
	if key.peer != "" {
		if p, ok := d.peers[key.peer]; ok && p.key == key && p.state != PeerLeft {
			d.setPeer(p, step, err, PeerFailed)
		}
		return
	}
	if d.state >= StateJoined {
		d.notify(Notification{State: d.state, Step: step, Err: err})
		return
	}
	d.setState(StateFailed, step, err)
}

func (d *Driver) setState(s State, step string, err error) {
	d.state = s
	d.snapMu.Lock()
	d.stateSnap = s
	d.snapMu.Unlock()
	d.logger.Debug().Str("state", s.String()).Msg("state")
	d.notify(Notification{State: s, Step: step, Err: err})
}

// setPeer records p's state; with no explicit state p keeps its own.
func (d *Driver) setPeer(p *peer, step string, err error, state ...PeerState) {
	if len(state) > 0 {
		p.state = state[0]
	}
	d.snapMu.Lock()
	d.peerSnap[p.id] = p.state
	d.snapMu.Unlock()
	d.notify(Notification{State: d.state, Peer: p.id, PeerState: p.state, Step: step, Err: err})
}

func (d *Driver) notify(n Notification) {
	select {
	case d.notes <- n:
	default:
		d.logger.Warn().Str("state", n.State.String()).Msg("notification dropped")
	}
}

func (d *Driver) teardown() {
	d.cancelAll()
	for _, p := range d.peers {
		d.dropPeer(p)
	}
	if d.send != nil {
		_ = d.send.Close()
	}
	if err := d.dev.Close(); err != nil {
		d.logger.Warn().Err(err).Msg("device close")
	}
	d.setState(StateClosed, "", nil)
}
