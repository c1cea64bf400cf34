package engine_test

import (
	"testing"

	"github.com/dkeye/VoiceSpaces/internal/engine"
)

func TestCompatible(t *testing.T) {
	caps := engine.RTPCapabilities{Codecs: []engine.CodecCapability{engine.Opus()}}
	opus := engine.RTPParameters{Codecs: []engine.CodecParameters{{MimeType: "audio/OPUS", PayloadType: 100, ClockRate: 48000, Channels: 2}}}
	pcmu := engine.RTPParameters{Codecs: []engine.CodecParameters{{MimeType: "audio/PCMU", PayloadType: 0, ClockRate: 8000}}}

	if !engine.Compatible(opus, caps) {
		t.Fatalf("opus should be consumable")
	}
	if engine.Compatible(pcmu, caps) {
		t.Fatalf("pcmu should not be consumable")
	}
	if engine.Compatible(opus, engine.RTPCapabilities{}) {
		t.Fatalf("empty capabilities consume nothing")
	}

	out, ok := engine.ConsumerParameters(opus, caps, 42)
	if !ok {
		t.Fatalf("ConsumerParameters: not ok")
	}
	if out.Codecs[0].PayloadType != 111 || out.Encodings[0].SSRC != 42 {
		t.Fatalf("unexpected consumer parameters: %+v", out)
	}
}

func TestCloseSignalFiresOnce(t *testing.T) {
	var s engine.CloseSignal
	n := 0
	s.OnClose(func() { n++ })
	if !s.Fire() {
		t.Fatalf("first Fire should close")
	}
	if s.Fire() {
		t.Fatalf("second Fire should be a no-op")
	}
	late := false
	s.OnClose(func() { late = true })
	if n != 1 || !late {
		t.Fatalf("listeners: n=%d late=%v", n, late)
	}
}
