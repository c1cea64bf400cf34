package protocol_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/protocol"
)

func TestDecodeRoomIDNumberOrString(t *testing.T) {
	for _, raw := range []string{
		`{"type":"space:join","id":"1","data":{"roomId":7,"producerId":"p1"}}`,
		`{"type":"space:join","id":"1","data":{"roomId":"7","producerId":"p1"}}`,
	} {
		env, err := protocol.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", raw, err)
		}
		var req protocol.JoinRequest
		if err := env.Bind(&req); err != nil {
			t.Fatalf("Bind: %v", err)
		}
		if req.RoomID != "7" || req.ProducerID != "p1" {
			t.Fatalf("got %+v", req)
		}
	}
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	if _, err := protocol.Decode([]byte(`{"id":"1"}`)); !errors.Is(err, protocol.ErrNoType) {
		t.Fatalf("missing type: got %v", err)
	}
	if _, err := protocol.Decode([]byte(`not json`)); err == nil {
		t.Fatalf("garbage decoded")
	}
	env, err := protocol.Decode([]byte(`{"type":"space:join","data":{"roomId":{}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var req protocol.JoinRequest
	if err := env.Bind(&req); err == nil {
		t.Fatalf("object room id accepted")
	}
}

func TestEncodeErrorBody(t *testing.T) {
	b, err := protocol.Encode(protocol.TypeAck, "9", protocol.ErrorOf(domain.ErrTransportNotFound))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"type":"ack"`, `"id":"9"`, `"code":"not_found"`, `"error":"transport not found"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("%s missing %s", s, want)
		}
	}
}
