package loopback_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
)

var (
	opusCaps   = engine.RTPCapabilities{Codecs: []engine.CodecCapability{engine.Opus()}}
	opusParams = engine.RTPParameters{
		Codecs:    []engine.CodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
		Encodings: []engine.Encoding{{SSRC: 1111}},
	}
	dtls = engine.ConnectParameters{DTLSParameters: engine.DTLSParameters{
		Role:         "client",
		Fingerprints: []engine.Fingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
	}}
)

func newRouter(t *testing.T) (*loopback.Engine, engine.RoutingContext) {
	t.Helper()
	e := loopback.New(2000, 2020)
	r, err := e.CreateRoutingContext(context.Background(), []engine.CodecCapability{engine.Opus()})
	if err != nil {
		t.Fatalf("CreateRoutingContext: %v", err)
	}
	return e, r
}

func TestProduceConsumeAndCascade(t *testing.T) {
	ctx := context.Background()
	e, r := newRouter(t)

	send, err := r.CreateTransport(ctx)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if err := send.Connect(ctx, dtls); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := send.Connect(ctx, dtls); !errors.Is(err, loopback.ErrAlreadyConnected) {
		t.Fatalf("second Connect: got %v", err)
	}
	p, err := send.Produce(ctx, domain.KindAudio, opusParams)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}

	recv, err := r.CreateTransport(ctx)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if !r.CanConsume(p.ID(), opusCaps) {
		t.Fatalf("CanConsume: false for matching caps")
	}
	if r.CanConsume(p.ID(), engine.RTPCapabilities{}) {
		t.Fatalf("CanConsume: true for empty caps")
	}
	c, err := recv.Consume(ctx, p.ID(), opusCaps)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if c.ProducerID() != p.ID() || c.Kind() != domain.KindAudio {
		t.Fatalf("consumer mismatch: %s %s", c.ProducerID(), c.Kind())
	}

	consumerClosed := make(chan struct{})
	c.OnClose(func() { close(consumerClosed) })
	producerClosed := make(chan struct{})
	p.OnClose(func() { close(producerClosed) })

	send.Close()
	select {
	case <-producerClosed:
	case <-time.After(time.Second):
		t.Fatalf("producer not closed by transport close")
	}
	select {
	case <-consumerClosed:
	case <-time.After(time.Second):
		t.Fatalf("consumer not closed by producer close")
	}
	if r.CanConsume(p.ID(), opusCaps) {
		t.Fatalf("closed producer still consumable")
	}
	if got := e.OpenTransports(); got != 1 {
		t.Fatalf("OpenTransports: got %d, want 1", got)
	}
}

func TestConsumeUnknownProducer(t *testing.T) {
	_, r := newRouter(t)
	tr, err := r.CreateTransport(context.Background())
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if _, err := tr.Consume(context.Background(), "nope", opusCaps); !errors.Is(err, loopback.ErrNoProducer) {
		t.Fatalf("Consume: got %v", err)
	}
}

func TestFaultInjection(t *testing.T) {
	e, r := newRouter(t)
	boom := errors.New("boom")
	e.Fail(loopback.OpCreateTransport, boom)
	if _, err := r.CreateTransport(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("CreateTransport: got %v", err)
	}
	e.Fail(loopback.OpCreateTransport, nil)
	if _, err := r.CreateTransport(context.Background()); err != nil {
		t.Fatalf("CreateTransport after clear: %v", err)
	}
}

func TestKillClosesEverything(t *testing.T) {
	e, r := newRouter(t)
	tr, err := r.CreateTransport(context.Background())
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	closed := make(chan struct{})
	tr.OnClose(func() { close(closed) })

	e.Kill(errors.New("segfault"))
	select {
	case err := <-e.Died():
		if err == nil {
			t.Fatalf("Died delivered nil")
		}
	case <-time.After(time.Second):
		t.Fatalf("Died not signaled")
	}
	<-closed
	if _, err := e.CreateRoutingContext(context.Background(), nil); !errors.Is(err, loopback.ErrClosed) {
		t.Fatalf("CreateRoutingContext after kill: got %v", err)
	}
}

func TestHeldTransportIgnoresContext(t *testing.T) {
	eng, rc := newRouter(t)
	gate := eng.HoldTransports()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan engine.Transport, 1)
	go func() {
		tr, err := rc.CreateTransport(ctx)
		if err != nil {
			t.Errorf("CreateTransport: %v", err)
		}
		done <- tr
	}()
	<-gate.Entered()
	cancel()
	gate.Release()
	tr := <-done
	if tr == nil {
		t.Fatalf("held transport not created")
	}
	if eng.OpenTransports() != 1 {
		t.Fatalf("OpenTransports: got %d", eng.OpenTransports())
	}
}
