package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dkeye/VoiceSpaces/internal/domain"
)

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: t1", domain.ErrTransportNotFound), "not_found"},
		{fmt.Errorf("%w: t1 in 8: %w", domain.ErrTransportNotFound, domain.ErrProtocolViolation), "protocol_violation"},
		{fmt.Errorf("p1: %w", domain.ErrUnconsumable), "unconsumable"},
		{domain.NewEngineError("produce", errors.New("boom")), "engine_failure"},
		{fmt.Errorf("%w: %w", domain.ErrRoomUnavailable, domain.NewEngineError("create_routing_context", errors.New("x"))), "room_unavailable"},
		{domain.ErrRoleMismatch, "protocol_violation"},
		{errors.New("whatever"), "bad_request"},
	}
	for _, tc := range cases {
		if got := domain.Code(tc.err); got != tc.want {
			t.Errorf("Code(%v): got %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestEngineErrorUnwraps(t *testing.T) {
	cause := errors.New("dtls failed")
	err := fmt.Errorf("connect: %w", domain.NewEngineError("connect_transport", cause))
	if !errors.Is(err, domain.ErrEngine) || !errors.Is(err, cause) {
		t.Fatalf("EngineError chain broken: %v", err)
	}
	if domain.NewEngineError("x", nil) != nil {
		t.Fatalf("nil cause should give nil error")
	}
}

func TestParseRoomID(t *testing.T) {
	if _, err := domain.ParseRoomID("  "); !errors.Is(err, domain.ErrRoomIDEmpty) {
		t.Fatalf("blank id: %v", err)
	}
	long := make([]byte, domain.MaxRoomIDLen+1)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := domain.ParseRoomID(string(long)); !errors.Is(err, domain.ErrRoomIDTooLong) {
		t.Fatalf("long id: %v", err)
	}
	if id, err := domain.ParseRoomID(" 7 "); err != nil || id != "7" {
		t.Fatalf("ParseRoomID: %q %v", id, err)
	}
}
