package app

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/VoiceSpaces/internal/domain"
	"github.com/dkeye/VoiceSpaces/internal/metrics"
)

// EngineCall runs one engine round trip under timeout. Any failure, expiry
// included, comes back as a *domain.EngineError.
func EngineCall[T any](ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	v, err := fn(ctx)
	result := "ok"
	if err != nil {
		result = "error"
		var ee *domain.EngineError
		if !errors.As(err, &ee) {
			err = domain.NewEngineError(op, err)
		}
	}
	metrics.EngineCallDuration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
	return v, err
}
