// Package audio holds the local Opus sources and sinks the client device
// plugs into its transports.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

const (
	// FrameDuration is one Opus page on the wire.
	FrameDuration = 20 * time.Millisecond
	opusRate      = 48000
	opusChannels  = 2
)

var ErrUnsupportedCodec = errors.New("audio: only opus can be recorded")

// SilenceFrame is an Opus TOC byte plus padding that decodes to 20ms of silence.
var SilenceFrame = []byte{0xf8, 0xff, 0xfe}

// SampleWriter is satisfied by *webrtc.TrackLocalStaticSample.
type SampleWriter interface {
	WriteSample(media.Sample) error
}

// Source feeds samples until ctx ends or it runs dry.
type Source interface {
	Stream(ctx context.Context, w SampleWriter) error
}

type Silence struct{}

func (Silence) Stream(ctx context.Context, w SampleWriter) error {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()
	for {
		if err := w.WriteSample(media.Sample{Data: SilenceFrame, Duration: FrameDuration}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// OggFile plays an Ogg/Opus file paced by page duration.
type OggFile struct {
	Path string
	Loop bool
}

func (o OggFile) Stream(ctx context.Context, w SampleWriter) error {
	for {
		if err := o.once(ctx, w); err != nil {
			return err
		}
		if !o.Loop || ctx.Err() != nil {
			return nil
		}
	}
}

func (o OggFile) once(ctx context.Context, w SampleWriter) error {
	f, err := os.Open(o.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.Path, err)
	}
	defer f.Close()

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ogg header %s: %w", o.Path, err)
	}

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()
	var lastGranule uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ogg page %s: %w", o.Path, err)
		}

		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration((samples/opusRate)*1000) * time.Millisecond

		if err := w.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SinkFactory opens where one peer's inbound audio goes.
type SinkFactory func(peer domain.ConnectionID, codec engine.CodecParameters) (media.Writer, error)

// OggSinks records each peer to dir/<peer>.ogg.
func OggSinks(dir string) SinkFactory {
	return func(peer domain.ConnectionID, codec engine.CodecParameters) (media.Writer, error) {
		if !strings.EqualFold(codec.MimeType, "audio/opus") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codec.MimeType)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		name := filepath.Join(dir, string(peer)+".ogg")
		w, err := oggwriter.New(name, opusRate, opusChannels)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		log.Info().Str("module", "client.audio").Str("peer", string(peer)).Str("file", name).Msg("recording peer")
		return w, nil
	}
}

// Discard drops every peer's audio.
func Discard(domain.ConnectionID, engine.CodecParameters) (media.Writer, error) {
	return discard{}, nil
}

type discard struct{}

func (discard) WriteRTP(*rtp.Packet) error { return nil }
func (discard) Close() error               { return nil }
