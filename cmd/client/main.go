package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/VoiceSpaces/internal/client"
	"github.com/dkeye/VoiceSpaces/internal/client/audio"
	"github.com/dkeye/VoiceSpaces/internal/client/ortcdevice"
	"github.com/dkeye/VoiceSpaces/internal/config"
	"github.com/dkeye/VoiceSpaces/internal/domain"
)

func main() {
	url := pflag.StringP("url", "u", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	room := pflag.StringP("room", "r", "1", "space to join")
	oggFile := pflag.String("ogg", "", "Ogg/Opus file to send; silence when empty")
	loop := pflag.Bool("loop", false, "replay the Ogg file until interrupted")
	outDir := pflag.StringP("out", "o", "", "directory to record peers into; discarded when empty")
	stepTimeout := pflag.Duration("step-timeout", 10*time.Second, "timeout for each signaling step")
	loopback := pflag.Bool("loopback", false, "gather loopback candidates for a local server")
	level := pflag.StringP("log-level", "l", "info", "log level")
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if err := config.ApplyLogLevel(*level); err != nil {
		log.Warn().Err(err).Msg("keeping default log level")
	}

	roomID, err := domain.ParseRoomID(*room)
	if err != nil {
		log.Fatal().Err(err).Str("room", *room).Msg("bad room id")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := ortcdevice.Options{LoopbackCandidates: *loopback}
	if *oggFile != "" {
		opts.Source = audio.OggFile{Path: *oggFile, Loop: *loop}
	}
	if *outDir != "" {
		opts.Sinks = audio.OggSinks(*outDir)
	}

	if err := run(ctx, *url, roomID, *stepTimeout, opts); err != nil {
		log.Error().Err(err).Msg("client stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, url string, room domain.RoomID, stepTimeout time.Duration, opts ortcdevice.Options) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, stepTimeout)
	sig, err := client.Dial(dialCtx, url)
	dialCancel()
	if err != nil {
		return err
	}
	defer func() { _ = sig.Close() }()
	log.Info().Str("conn", string(sig.ConnectionID())).Str("url", url).Msg("connected")

	d := client.NewDriver(sig, ortcdevice.New(opts), client.Options{Room: room, StepTimeout: stepTimeout})
	runErr := make(chan error, 1)
	go func() { runErr <- d.Run(context.Background()) }()
	d.Join()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("leaving")
			d.Leave()
			select {
			case err := <-runErr:
				return err
			case <-time.After(stepTimeout):
				d.Close()
				return <-runErr
			}
		case err := <-runErr:
			if errors.Is(err, client.ErrSignalClosed) {
				log.Warn().Msg("server closed the connection")
			}
			return err
		case n := <-d.Notifications():
			report(n)
			if n.Peer == "" && n.State == client.StateFailed {
				d.Close()
				<-runErr
				return n.Err
			}
		}
	}
}

func report(n client.Notification) {
	ev := log.Info()
	if n.Err != nil {
		ev = log.Warn().Err(n.Err)
	}
	if n.Peer != "" {
		ev.Str("peer", string(n.Peer)).Str("peer_state", n.PeerState.String())
	}
	if n.Step != "" {
		ev.Str("step", n.Step)
	}
	ev.Str("state", n.State.String()).Msg("session")
}
