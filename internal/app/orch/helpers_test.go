package orch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/app/orch"
	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
	"github.com/dkeye/VoiceSpaces/internal/events"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
)

var (
	opusCaps   = engine.RTPCapabilities{Codecs: []engine.CodecCapability{engine.Opus()}}
	opusParams = engine.RTPParameters{
		Codecs:    []engine.CodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
		Encodings: []engine.Encoding{{SSRC: 1234}},
	}
	dtls = engine.ConnectParameters{DTLSParameters: engine.DTLSParameters{
		Role:         "client",
		Fingerprints: []engine.Fingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}}
)

// sink is a SignalConnection that keeps decoded frames.
type sink struct {
	mu     sync.Mutex
	frames []protocol.Envelope
	full   bool
	closed bool
}

func (s *sink) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	if s.full {
		return errors.New("backpressure")
	}
	env, err := protocol.Decode(f)
	if err != nil {
		return err
	}
	s.frames = append(s.frames, env)
	return nil
}

func (s *sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *sink) ofType(t protocol.MessageType) []protocol.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []protocol.Envelope
	for _, f := range s.frames {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

type fixture struct {
	o   *orch.Orchestrator
	eng *loopback.Engine
	ev  *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eng := loopback.New(2000, 2020)
	ev := &events.Recorder{}
	o := &orch.Orchestrator{
		Registry:      app.NewRegistry(),
		Rooms:         app.NewRoomDirectory(eng, []engine.CodecCapability{engine.Opus()}, app.RoomsLazy, time.Second),
		Transports:    app.NewTransportLedger(),
		Producers:     app.NewProducerLedger(),
		Consumers:     app.NewConsumerLedger(),
		Policy:        app.DropPolicy{},
		Events:        ev,
		EngineTimeout: time.Second,
	}
	return &fixture{o: o, eng: eng, ev: ev}
}

func (f *fixture) connect(t *testing.T, id domain.ConnectionID) *sink {
	t.Helper()
	s := &sink{}
	if _, err := f.o.Connect(context.Background(), id, s); err != nil {
		t.Fatalf("Connect(%s): %v", id, err)
	}
	return s
}

func (f *fixture) join(t *testing.T, id domain.ConnectionID, room domain.RoomID, producer domain.ProducerID) {
	t.Helper()
	if err := f.o.Join(context.Background(), id, room, producer); err != nil {
		t.Fatalf("Join(%s, %s): %v", id, room, err)
	}
}

func (f *fixture) transport(t *testing.T, id domain.ConnectionID, room domain.RoomID, role domain.TransportRole) domain.TransportID {
	t.Helper()
	params, err := f.o.CreateTransport(context.Background(), id, room, role)
	if err != nil {
		t.Fatalf("CreateTransport(%s, %s): %v", id, room, err)
	}
	tid := domain.TransportID(params.ID)
	if err := f.o.ConnectTransport(context.Background(), id, room, tid, dtls); err != nil {
		t.Fatalf("ConnectTransport: %v", err)
	}
	return tid
}

// produce creates a connected send transport and an audio producer on it.
func (f *fixture) produce(t *testing.T, id domain.ConnectionID, room domain.RoomID) (domain.TransportID, domain.ProducerID) {
	t.Helper()
	tid := f.transport(t, id, room, domain.RoleSend)
	pid, err := f.o.CreateProducer(context.Background(), id, room, tid, "audio", opusParams)
	if err != nil {
		t.Fatalf("CreateProducer: %v", err)
	}
	return tid, pid
}

func (f *fixture) owned(id domain.ConnectionID) int {
	return len(f.o.Transports.OwnedBy(id)) + len(f.o.Producers.OwnedBy(id)) + len(f.o.Consumers.OwnedBy(id))
}
