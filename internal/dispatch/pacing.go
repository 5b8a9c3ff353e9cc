package dispatch

import (
	"context"
	mathrand "math/rand/v2"
	"time"
)

const (
	MinDelayFloor = time.Second
	MaxJitter     = 500 * time.Millisecond
)

var (
	DefaultFirstWindow      = DelayWindow{Min: 25 * time.Second, Max: 35 * time.Second}
	DefaultSubsequentWindow = DelayWindow{Min: 30 * time.Second, Max: 45 * time.Second}
)

type DelayWindow struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// NormalizeWindow builds a window from optional millisecond values. Missing
// or zero values use the default; min is floored at one second and max is
// raised to min when smaller.
func NormalizeWindow(minMs *int, maxMs *int, def DelayWindow) DelayWindow {
	w := def
	if minMs != nil && *minMs != 0 {
		w.Min = time.Duration(*minMs) * time.Millisecond
	}
	if maxMs != nil && *maxMs != 0 {
		w.Max = time.Duration(*maxMs) * time.Millisecond
	}
	if w.Min < MinDelayFloor {
		w.Min = MinDelayFloor
	}
	if w.Max < w.Min {
		w.Max = w.Min
	}
	return w
}

// Draw picks a delay uniformly in [Min, Max] plus up to MaxJitter.
func (w DelayWindow) Draw(rng *mathrand.Rand) time.Duration {
	d := w.Min
	if span := w.Max - w.Min; span > 0 {
		d += time.Duration(rng.Int64N(int64(span) + 1))
	}
	return d + time.Duration(rng.Int64N(int64(MaxJitter)))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
