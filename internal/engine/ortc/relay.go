package ortc

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

type outState int32

const (
	outLive outState = iota
	outDelete
)

// rtpWriter is the sending half of a consumer.
type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// outTrack is one consumer's copy of a producer stream.
type outTrack struct {
	w     rtpWriter
	state atomic.Int32
}

func (o *outTrack) live() bool  { return outState(o.state.Load()) == outLive }
func (o *outTrack) markDelete() { o.state.Store(int32(outDelete)) }

// readFunc yields the producer's next packet.
type readFunc func() (*rtp.Packet, error)

// relay copies packets from one producer to all of its consumers.
type relay struct {
	mu   sync.RWMutex
	outs map[string]*outTrack

	forwarded atomic.Uint64
}

func newRelay() *relay {
	return &relay{outs: make(map[string]*outTrack)}
}

// run reads until src fails. Consumers are left for their own Close.
func (r *relay) run(next readFunc, logger *zerolog.Logger) {
	for {
		pkt, err := next()
		if err != nil {
			logger.Debug().Err(err).Msg("relay source ended")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outs)
	r.mu.RUnlock()

	var dirty []string
	for id, ot := range snapshot {
		if !ot.live() {
			dirty = append(dirty, id)
			continue
		}
		if err := ot.w.WriteRTP(pkt); err != nil {
			logger.Warn().Err(err).Str("consumer", id).Msg("relay write failed, dropping consumer track")
			ot.markDelete()
			dirty = append(dirty, id)
			continue
		}
		r.forwarded.Add(1)
	}
	if len(dirty) > 0 {
		r.cleanup(dirty)
	}
}

func (r *relay) cleanup(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		delete(r.outs, id)
	}
}

func (r *relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outs {
		ot.markDelete()
	}
}

func (r *relay) add(id string, w rtpWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs[id] = &outTrack{w: w}
}

func (r *relay) remove(id string) {
	r.mu.Lock()
	ot, ok := r.outs[id]
	r.mu.Unlock()
	if ok {
		ot.markDelete()
	}
}

func (r *relay) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outs)
}
