package signal_test

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/adapters/signal"
	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/app/orch"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
	"github.com/dkeye/VoiceSpaces/internal/events"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var opusParams = engine.RTPParameters{
	Codecs:    []engine.CodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
	Encodings: []engine.Encoding{{SSRC: 1111}},
}

func newServer(t *testing.T, opts signal.Options) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := loopback.New(2000, 2020)
	o := &orch.Orchestrator{
		Registry:      app.NewRegistry(),
		Rooms:         app.NewRoomDirectory(eng, []engine.CodecCapability{engine.Opus()}, app.RoomsLazy, time.Second),
		Transports:    app.NewTransportLedger(),
		Producers:     app.NewProducerLedger(),
		Consumers:     app.NewConsumerLedger(),
		Policy:        app.DropPolicy{},
		Events:        events.Nop{},
		EngineTimeout: time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := signal.NewSignalWSController(o, opts)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctrl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

type peer struct {
	t       *testing.T
	ws      *websocket.Conn
	id      domain.ConnectionID
	seq     int
	pending []protocol.Envelope
}

func dial(t *testing.T, srv *httptest.Server) *peer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })

	p := &peer{t: t, ws: ws}
	env := p.await(protocol.TypeConnectSuccess)
	var cs protocol.ConnectSuccess
	if err := env.Bind(&cs); err != nil || cs.ConnectionID == "" {
		t.Fatalf("connect-success: %+v %v", cs, err)
	}
	p.id = cs.ConnectionID
	return p
}

func (p *peer) read() protocol.Envelope {
	p.t.Helper()
	_ = p.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := p.ws.ReadMessage()
	if err != nil {
		p.t.Fatalf("read: %v", err)
	}
	env, err := protocol.Decode(data)
	if err != nil {
		p.t.Fatalf("decode %s: %v", data, err)
	}
	return env
}

func (p *peer) write(t protocol.MessageType, id string, data any) {
	p.t.Helper()
	if err := p.ws.WriteMessage(websocket.TextMessage, protocol.MustEncode(t, id, data)); err != nil {
		p.t.Fatalf("write %s: %v", t, err)
	}
}

// request sends a correlated request and returns its ack.
func (p *peer) request(t protocol.MessageType, data any) protocol.Envelope {
	p.t.Helper()
	p.seq++
	id := strconv.Itoa(p.seq)
	p.write(t, id, data)
	for {
		env := p.read()
		if env.Type == protocol.TypeAck && env.ID == id {
			return env
		}
		p.pending = append(p.pending, env)
	}
}

func (p *peer) await(t protocol.MessageType) protocol.Envelope {
	p.t.Helper()
	for i, env := range p.pending {
		if env.Type == t {
			p.pending = append(p.pending[:i], p.pending[i+1:]...)
			return env
		}
	}
	for {
		env := p.read()
		if env.Type == t {
			return env
		}
		p.pending = append(p.pending, env)
	}
}

func bind[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := env.Bind(&v); err != nil {
		t.Fatalf("bind %s: %v", env.Type, err)
	}
	return v
}

func TestPingPong(t *testing.T) {
	srv, _ := newServer(t, signal.Options{})
	a := dial(t, srv)

	a.write(protocol.TypePing, "p1", nil)
	pong := a.await(protocol.TypePong)
	if pong.ID != "p1" {
		t.Fatalf("pong id = %q", pong.ID)
	}
}

func TestUnknownTypeIsBadRequest(t *testing.T) {
	srv, _ := newServer(t, signal.Options{})
	a := dial(t, srv)

	ack := a.request("space:dance", nil)
	if body := bind[protocol.ErrorBody](t, ack); body.Code != "bad_request" {
		t.Fatalf("body = %+v", body)
	}

	a.write("space:dance", "", nil)
	errFrame := a.await(protocol.TypeError)
	if body := bind[protocol.ErrorBody](t, errFrame); body.Code != "bad_request" {
		t.Fatalf("error frame = %+v", body)
	}
}

func TestRoomSevenScenario(t *testing.T) {
	srv, o := newServer(t, signal.Options{})
	a := dial(t, srv)
	b := dial(t, srv)

	a.request(protocol.TypeJoin, protocol.JoinRequest{RoomID: "7"})
	parts := bind[protocol.ParticipantsResponse](t, a.request(protocol.TypeGetParticipants, protocol.RoomRequest{RoomID: "7"}))
	if len(parts.Participants) != 0 {
		t.Fatalf("participants before B: %+v", parts)
	}

	caps := bind[struct {
		RTPCapabilities engine.RTPCapabilities `json:"rtpCapabilities"`
	}](t, b.request(protocol.TypeGetCapabilities, protocol.RoomRequest{RoomID: "7"}))
	if len(caps.RTPCapabilities.Codecs) != 1 || caps.RTPCapabilities.Codecs[0].MimeType != "audio/opus" {
		t.Fatalf("caps = %+v", caps)
	}

	tr := bind[struct {
		Params engine.TransportParameters `json:"params"`
	}](t, b.request(protocol.TypeCreateTransport, protocol.CreateTransportRequest{RoomID: "7", Direction: "send"}))
	if tr.Params.ID == "" {
		t.Fatalf("transport params = %+v", tr)
	}
	b.request(protocol.TypeConnectTransport, protocol.ConnectTransportRequest{
		RoomID:      "7",
		TransportID: domain.TransportID(tr.Params.ID),
		DTLSParameters: engine.DTLSParameters{
			Role:         "client",
			Fingerprints: []engine.Fingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
		},
	})
	prod := bind[protocol.ProducerResponse](t, b.request(protocol.TypeCreateProducer, protocol.CreateProducerRequest{
		RoomID:        "7",
		TransportID:   domain.TransportID(tr.Params.ID),
		Kind:          "audio",
		RTPParameters: opusParams,
	}))
	if prod.ID == "" {
		t.Fatal("empty producer id")
	}
	b.request(protocol.TypeJoin, protocol.JoinRequest{RoomID: "7", ProducerID: prod.ID})

	joined := bind[protocol.UserJoined](t, a.await(protocol.TypeUserJoined))
	if joined.ConnectionID != b.id || joined.ProducerID != prod.ID {
		t.Fatalf("join notification = %+v", joined)
	}

	parts = bind[protocol.ParticipantsResponse](t, a.request(protocol.TypeGetParticipants, protocol.RoomRequest{RoomID: "7"}))
	got, ok := parts.Participants[b.id]
	if len(parts.Participants) != 1 || !ok || got.ProducerID != prod.ID {
		t.Fatalf("participants after B: %+v", parts)
	}

	// B hangs up; A hears about it and B's media is gone.
	_ = b.ws.Close()
	left := bind[protocol.UserLeft](t, a.await(protocol.TypeUserLeft))
	if left.ConnectionID != b.id {
		t.Fatalf("leave notification = %+v", left)
	}
	deadline := time.Now().Add(2 * time.Second)
	for o.Producers.Len() != 0 || o.Transports.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ledgers not drained: producers=%d transports=%d", o.Producers.Len(), o.Transports.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransportErrorIsNestedUnderParams(t *testing.T) {
	srv, _ := newServer(t, signal.Options{})
	a := dial(t, srv)

	ack := a.request(protocol.TypeCreateTransport, protocol.CreateTransportRequest{RoomID: "7", Direction: "sideways"})
	resp := bind[struct {
		Params protocol.ErrorBody `json:"params"`
	}](t, ack)
	if resp.Params.Code != "bad_request" || resp.Params.Error == "" {
		t.Fatalf("resp = %+v", resp)
	}

	ack = a.request(protocol.TypeCreateConsumer, protocol.CreateConsumerRequest{
		RoomID: "7", TransportID: "nope", ProducerID: "nope",
	})
	resp = bind[struct {
		Params protocol.ErrorBody `json:"params"`
	}](t, ack)
	if resp.Params.Code != "not_found" {
		t.Fatalf("consumer resp = %+v", resp)
	}
}

func TestConnectUnknownTransport(t *testing.T) {
	srv, _ := newServer(t, signal.Options{})
	a := dial(t, srv)

	ack := a.request(protocol.TypeConnectTransport, protocol.ConnectTransportRequest{RoomID: "7", TransportID: "ghost"})
	if body := bind[protocol.ErrorBody](t, ack); body.Code != "not_found" {
		t.Fatalf("body = %+v", body)
	}
}

func TestRateLimitedRequestsAreRejected(t *testing.T) {
	srv, _ := newServer(t, signal.Options{RateLimit: 0.001, RateBurst: 1})
	a := dial(t, srv)

	a.write(protocol.TypePing, "1", nil)
	a.await(protocol.TypePong)

	ack := a.request(protocol.TypeGetParticipants, protocol.RoomRequest{RoomID: "7"})
	if body := bind[protocol.ErrorBody](t, ack); body.Code != "rate_limited" {
		t.Fatalf("body = %+v", body)
	}
}
