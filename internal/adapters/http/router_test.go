package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/app/orch"
	"github.com/dkeye/VoiceSpaces/internal/config"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
	"github.com/dkeye/VoiceSpaces/internal/events"
	"github.com/goccy/go-json"
)

func newRouter(t *testing.T) (http.Handler, *orch.Orchestrator) {
	t.Helper()
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
	cfg := &config.Config{Mode: "release", Secret: "test", PingPeriod: time.Minute}
	return SetupRouter(context.Background(), cfg, o), o
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthz(t *testing.T) {
	h, _ := newRouter(t)
	w := get(t, h, "/healthz")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("healthz: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "ct=") {
		t.Fatalf("client token cookie not set: %q", w.Header().Get("Set-Cookie"))
	}
}

func TestSpacesListsAllocatedRooms(t *testing.T) {
	h, o := newRouter(t)
	if _, err := o.Rooms.GetOrCreate(context.Background(), "7"); err != nil {
		t.Fatal(err)
	}
	w := get(t, h, "/api/spaces")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Spaces []struct {
			ID          string `json:"id"`
			MemberCount int    `json:"member_count"`
		} `json:"spaces"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Spaces) != 1 || body.Spaces[0].ID != "7" || body.Spaces[0].MemberCount != 0 {
		t.Fatalf("spaces = %+v", body)
	}
}

func TestParticipantsOfUnknownSpace(t *testing.T) {
	h, _ := newRouter(t)
	if w := get(t, h, "/api/spaces/42/participants"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newRouter(t)
	w := get(t, h, "/metrics")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "voicespaces_") {
		t.Fatalf("metrics: %d", w.Code)
	}
}
