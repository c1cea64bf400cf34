package audio

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

type collector struct {
	mu      sync.Mutex
	samples []media.Sample
}

func (c *collector) WriteSample(s media.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
	return nil
}

func (c *collector) count(data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, s := range c.samples {
		if bytes.Equal(s.Data, data) {
			n++
		}
	}
	return n
}

func writeOgg(t *testing.T, path string, frames int) {
	t.Helper()
	w, err := oggwriter.New(path, opusRate, opusChannels)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < frames; i++ {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Version: 2, PayloadType: 111, SequenceNumber: uint16(i), Timestamp: uint32(i * 960), SSRC: 1},
			Payload: SilenceFrame,
		}
		if err := w.WriteRTP(pkt); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOggFilePlaysEveryPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.ogg")
	writeOgg(t, path, 3)

	var c collector
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := (OggFile{Path: path}).Stream(ctx, &c); err != nil {
		t.Fatal(err)
	}
	if got := c.count(SilenceFrame); got != 3 {
		t.Fatalf("opus pages = %d, want 3", got)
	}
}

func TestOggFileMissing(t *testing.T) {
	err := (OggFile{Path: filepath.Join(t.TempDir(), "nope.ogg")}).Stream(context.Background(), &collector{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}

func TestSilenceStopsWithContext(t *testing.T) {
	var c collector
	ctx, cancel := context.WithTimeout(context.Background(), 70*time.Millisecond)
	defer cancel()
	if err := (Silence{}).Stream(ctx, &c); err != nil {
		t.Fatal(err)
	}
	if c.count(SilenceFrame) == 0 {
		t.Fatal("no silence written")
	}
}

func TestOggSinksRecordOpus(t *testing.T) {
	dir := t.TempDir()
	sinks := OggSinks(dir)

	opus := engine.CodecParameters{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}
	w, err := sinks("peer-1", opus)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRTP(&rtp.Packet{Header: rtp.Header{Version: 2, Timestamp: 960}, Payload: SilenceFrame}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "peer-1.ogg"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("OggS")) {
		t.Fatalf("not an ogg file: % x", b[:min(8, len(b))])
	}

	if _, err := sinks("peer-2", engine.CodecParameters{MimeType: "audio/PCMU", ClockRate: 8000}); !errors.Is(err, ErrUnsupportedCodec) {
		t.Fatalf("err = %v", err)
	}
}
