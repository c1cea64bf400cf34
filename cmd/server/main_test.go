package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/engine/loopback"
)

func TestWatchEngineExitsAfterDelay(t *testing.T) {
	eng := loopback.New(2000, 2020)
	cause := errors.New("worker exited")
	const delay = 100 * time.Millisecond

	start := time.Now()
	eng.Kill(cause)
	err := watchEngine(context.Background(), eng, delay)
	if elapsed := time.Since(start); elapsed < delay {
		t.Fatalf("returned after %v, want at least %v", elapsed, delay)
	}
	if !errors.Is(err, domain.ErrFatalInfra) || !errors.Is(err, cause) {
		t.Fatalf("err = %v", err)
	}
}

func TestWatchEngineStopsWithContext(t *testing.T) {
	eng := loopback.New(2000, 2020)
	defer eng.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := watchEngine(ctx, eng, time.Hour); err != nil {
		t.Fatalf("err = %v", err)
	}
}
