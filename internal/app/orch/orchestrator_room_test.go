package orch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/VoiceSpaces/internal/app"
	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
	"github.com/dkeye/VoiceSpaces/internal/events"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
)

func TestJoinNeverNotifiesJoiner(t *testing.T) {
	f := newFixture(t)
	ids := []domain.ConnectionID{"a", "b", "c", "d"}
	sinks := map[domain.ConnectionID]*sink{}
	for _, id := range ids {
		sinks[id] = f.connect(t, id)
	}
	for _, id := range ids {
		f.join(t, id, "7", "")
	}

	// the i-th joiner hears about everyone after it
	total := 0
	for i, id := range ids {
		got := sinks[id].ofType(protocol.TypeUserJoined)
		if want := len(ids) - 1 - i; len(got) != want {
			t.Fatalf("%s: got %d join notifications, want %d", id, len(got), want)
		}
		for _, env := range got {
			var p protocol.UserJoined
			if err := env.Bind(&p); err != nil {
				t.Fatalf("Bind: %v", err)
			}
			if p.ConnectionID == id {
				t.Fatalf("%s was told about its own join", id)
			}
		}
		total += len(got)
	}
	// the last join into a room of N members yields N-1 notifications
	if total != 3+2+1 {
		t.Fatalf("total notifications: got %d", total)
	}
}

func TestMembershipFollowsLastJoin(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "a")
	f.connect(t, "b")
	f.join(t, "b", "7", "")

	f.join(t, "a", "7", "")
	f.join(t, "a", "8", "")
	if room, ok := f.o.Registry.RoomOf("a"); !ok || room != "8" {
		t.Fatalf("RoomOf: got %q %v, want 8", room, ok)
	}
	seven, _ := f.o.Rooms.Get("7")
	if seven.HasMember("a") {
		t.Fatalf("a still a member of room 7")
	}

	f.o.Leave(context.Background(), "a")
	if _, ok := f.o.Registry.RoomOf("a"); ok {
		t.Fatalf("a has a room after Leave")
	}
	// leaving again is a no-op
	f.o.Leave(context.Background(), "a")
	if len(a.ofType(protocol.TypeUserLeft)) != 0 {
		t.Fatalf("a got leave notifications from its own leave")
	}
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "a")
	b := f.connect(t, "b")
	f.join(t, "a", "7", "")
	f.join(t, "b", "7", "")

	f.o.Leave(context.Background(), "b")
	left := a.ofType(protocol.TypeUserLeft)
	if len(left) != 1 {
		t.Fatalf("a: got %d leave notifications", len(left))
	}
	var p protocol.UserLeft
	if err := left[0].Bind(&p); err != nil || p.ConnectionID != "b" {
		t.Fatalf("leave payload: %+v %v", p, err)
	}
	if len(b.ofType(protocol.TypeUserLeft)) != 0 {
		t.Fatalf("leaver was notified")
	}

	evs := f.ev.Events()
	if len(evs) != 3 || evs[2].Kind != events.KindLeft || evs[2].Connection != "b" {
		t.Fatalf("events: %+v", evs)
	}
}

func TestJoinRoomUnavailable(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a")
	f.eng.Fail(loopback.OpCreateRouter, errors.New("no workers"))

	err := f.o.Join(context.Background(), "a", "7", "")
	if !errors.Is(err, domain.ErrRoomUnavailable) {
		t.Fatalf("Join: got %v", err)
	}
	if _, ok := f.o.Registry.RoomOf("a"); ok {
		t.Fatalf("membership recorded for a failed join")
	}
}

func TestJoinRequiresOwnProducer(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a")
	f.connect(t, "b")
	_, pid := f.produce(t, "b", "7")

	if err := f.o.Join(context.Background(), "a", "7", pid); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Fatalf("join with foreign producer: got %v", err)
	}
	if err := f.o.Join(context.Background(), "a", "7", "ghost"); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Fatalf("join with unknown producer: got %v", err)
	}
	if err := f.o.Join(context.Background(), "b", "8", pid); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Fatalf("join with producer from another room: got %v", err)
	}
}

func TestParticipantsScenario(t *testing.T) {
	f := newFixture(t)
	a := f.connect(t, "a")
	f.connect(t, "b")

	f.join(t, "a", "7", "")
	got, err := f.o.Participants("7")
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Participants: got %+v, want none", got)
	}

	_, pid := f.produce(t, "b", "7")
	f.join(t, "b", "7", pid)

	joined := a.ofType(protocol.TypeUserJoined)
	if len(joined) != 1 {
		t.Fatalf("a: got %d join notifications", len(joined))
	}
	var p protocol.UserJoined
	if err := joined[0].Bind(&p); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if p.ConnectionID != "b" || p.ProducerID != pid {
		t.Fatalf("join payload: %+v", p)
	}

	got, err = f.o.Participants("7")
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" || got[0].ProducerID != pid {
		t.Fatalf("Participants: got %+v", got)
	}
}

func TestParticipantsUsesLiveProducer(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a")
	tid, pid := f.produce(t, "a", "7")
	f.join(t, "a", "7", pid)

	second, err := f.o.CreateProducer(context.Background(), "a", "7", tid, "audio", opusParams)
	if err != nil {
		t.Fatalf("CreateProducer: %v", err)
	}
	e, _ := f.o.Producers.Get(pid)
	e.Handle.Close()

	got, err := f.o.Participants("7")
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}
	if len(got) != 1 || got[0].ProducerID != second {
		t.Fatalf("Participants: got %+v, want producer %s", got, second)
	}
}

func TestParticipantsUnknownRoom(t *testing.T) {
	f := newFixture(t)
	if _, err := f.o.Participants("nowhere"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("unknown room: got %v", err)
	}
	f.connect(t, "a")
	f.join(t, "a", "7", "")
	f.o.Leave(context.Background(), "a")
	if _, err := f.o.Participants("7"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("empty room: got %v", err)
	}
}

func TestKickPolicyClosesSlowMember(t *testing.T) {
	f := newFixture(t)
	f.o.Policy = app.KickPolicy{}
	slow := f.connect(t, "slow")
	f.connect(t, "b")
	f.join(t, "slow", "7", "")
	slow.mu.Lock()
	slow.full = true
	slow.mu.Unlock()

	f.join(t, "b", "7", "")
	if !slow.isClosed() {
		t.Fatalf("slow member not kicked")
	}
}

func TestConcurrentJoinLeaveKeepsMembershipSingleValued(t *testing.T) {
	f := newFixture(t)
	const conns = 24
	rooms := []domain.RoomID{"1", "2", "3"}

	var wg sync.WaitGroup
	for i := 0; i < conns; i++ {
		id := domain.ConnectionID(fmt.Sprintf("c%d", i))
		f.connect(t, id)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				room := rooms[(i+n)%len(rooms)]
				if err := f.o.Join(context.Background(), id, room, ""); err != nil {
					t.Errorf("Join: %v", err)
					return
				}
				if n%3 == 0 {
					f.o.Leave(context.Background(), id)
				}
			}
		}(i)
	}
	wg.Wait()

	members := 0
	for _, r := range rooms {
		room, ok := f.o.Rooms.Get(r)
		if !ok {
			continue
		}
		for _, m := range room.MembersSnapshot() {
			members++
			got, ok := f.o.Registry.RoomOf(m.ID)
			if !ok || got != r {
				t.Fatalf("%s is a member of %s but registry says %q", m.ID, r, got)
			}
		}
	}
	for i := 0; i < conns; i++ {
		id := domain.ConnectionID(fmt.Sprintf("c%d", i))
		if r, ok := f.o.Registry.RoomOf(id); ok {
			room, _ := f.o.Rooms.Get(r)
			if !room.HasMember(id) {
				t.Fatalf("registry puts %s in %s but the room disagrees", id, r)
			}
		}
	}
	if members > conns {
		t.Fatalf("%d memberships for %d connections", members, conns)
	}
}
