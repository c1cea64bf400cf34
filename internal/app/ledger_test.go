package app_test

import (
	"errors"
	"testing"

	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/core"
	"github.com/dkeye/VoiceSpaces/internal/domain"
)

func TestTransportLookupGuard(t *testing.T) {
	l := app.NewTransportLedger()
	if err := l.Add(core.TransportEntry{ID: "t1", Connection: "a", Room: "7"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Add(core.TransportEntry{ID: "t1", Connection: "a", Room: "7"}); err == nil {
		t.Fatalf("duplicate Add should fail")
	}

	cases := []struct {
		name      string
		id        domain.TransportID
		room      domain.RoomID
		conn      domain.ConnectionID
		notFound  bool
		violation bool
	}{
		{name: "ok", id: "t1", room: "7", conn: "a"},
		{name: "unknown id, right room", id: "nope", room: "7", conn: "a", notFound: true},
		{name: "unknown id, other room", id: "nope", room: "8", conn: "a", notFound: true},
		{name: "room mismatch", id: "t1", room: "8", conn: "a", notFound: true, violation: true},
		{name: "foreign owner", id: "t1", room: "7", conn: "b", violation: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Lookup(tc.id, tc.room, tc.conn)
			if got := errors.Is(err, domain.ErrNotFound); got != tc.notFound {
				t.Fatalf("NotFound: got %v (%v), want %v", got, err, tc.notFound)
			}
			if got := errors.Is(err, domain.ErrProtocolViolation); got != tc.violation {
				t.Fatalf("ProtocolViolation: got %v (%v), want %v", got, err, tc.violation)
			}
		})
	}
}

func TestTransportClaimRole(t *testing.T) {
	l := app.NewTransportLedger()
	_ = l.Add(core.TransportEntry{ID: "free", Connection: "a", Room: "7"})
	_ = l.Add(core.TransportEntry{ID: "recv", Connection: "a", Room: "7", Role: domain.RoleRecv})

	e, err := l.ClaimRole("free", domain.RoleSend)
	if err != nil || e.Role != domain.RoleSend {
		t.Fatalf("ClaimRole latch: %v %v", e.Role, err)
	}
	if _, err := l.ClaimRole("free", domain.RoleSend); err != nil {
		t.Fatalf("ClaimRole same role: %v", err)
	}
	if _, err := l.ClaimRole("free", domain.RoleRecv); !errors.Is(err, domain.ErrRoleMismatch) {
		t.Fatalf("latched send transport consumed: %v", err)
	}
	if _, err := l.ClaimRole("recv", domain.RoleSend); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Fatalf("recv transport produced: %v", err)
	}
	if _, err := l.ClaimRole("missing", domain.RoleSend); !errors.Is(err, domain.ErrTransportNotFound) {
		t.Fatalf("missing transport: %v", err)
	}
}

func TestTransportReleaseRole(t *testing.T) {
	l := app.NewTransportLedger()
	_ = l.Add(core.TransportEntry{ID: "t", Connection: "a", Room: "7"})

	if _, err := l.ClaimRole("t", domain.RoleSend); err != nil {
		t.Fatal(err)
	}
	l.ReleaseRole("t", domain.RoleRecv)
	if e, _ := l.Get("t"); e.Role != domain.RoleSend {
		t.Fatalf("release of other role changed %s", e.Role)
	}
	l.ReleaseRole("t", domain.RoleSend)
	if _, err := l.ClaimRole("t", domain.RoleRecv); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
	l.ReleaseRole("missing", domain.RoleSend)
}

func TestLedgerRemoveExactlyOnce(t *testing.T) {
	l := app.NewConsumerLedger()
	_ = l.Add(core.ConsumerEntry{ID: "c1", Connection: "a", Room: "7", Producer: "p1", Transport: "t1"})
	_ = l.Add(core.ConsumerEntry{ID: "c2", Connection: "a", Room: "8", Producer: "p2", Transport: "t2"})
	_ = l.Add(core.ConsumerEntry{ID: "c3", Connection: "b", Room: "7", Producer: "p1", Transport: "t3"})

	if got := len(l.OwnedBy("a")); got != 2 {
		t.Fatalf("OwnedBy: got %d", got)
	}
	if got := len(l.OwnedByIn("a", "7")); got != 1 {
		t.Fatalf("OwnedByIn: got %d", got)
	}
	if got := len(l.OfProducer("p1")); got != 2 {
		t.Fatalf("OfProducer: got %d", got)
	}
	if _, ok := l.Remove("c1"); !ok {
		t.Fatalf("first Remove failed")
	}
	if _, ok := l.Remove("c1"); ok {
		t.Fatalf("second Remove succeeded")
	}
	if l.Len() != 2 {
		t.Fatalf("Len: got %d", l.Len())
	}
}

func TestProducerLatest(t *testing.T) {
	l := app.NewProducerLedger()
	_ = l.Add(core.ProducerEntry{ID: "p1", Connection: "a", Room: "7"})
	_ = l.Add(core.ProducerEntry{ID: "p2", Connection: "a", Room: "7"})
	_ = l.Add(core.ProducerEntry{ID: "p3", Connection: "a", Room: "8"})

	e, ok := l.Latest("a", "7")
	if !ok || e.ID != "p2" {
		t.Fatalf("Latest: got %q %v", e.ID, ok)
	}
	l.Remove("p2")
	if e, _ := l.Latest("a", "7"); e.ID != "p1" {
		t.Fatalf("Latest after remove: got %q", e.ID)
	}
	if _, ok := l.Latest("b", "7"); ok {
		t.Fatalf("Latest for stranger")
	}
}
