package dispatch

import (
	"context"
	mathrand "math/rand/v2"
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestNormalizeWindow(t *testing.T) {
	cases := []struct {
		name     string
		min, max *int
		want     DelayWindow
	}{
		{"defaults", nil, nil, DefaultFirstWindow},
		{"zero uses default", intPtr(0), intPtr(0), DefaultFirstWindow},
		{"explicit", intPtr(2000), intPtr(4000), DelayWindow{2 * time.Second, 4 * time.Second}},
		{"min floored", intPtr(200), intPtr(3000), DelayWindow{time.Second, 3 * time.Second}},
		{"negative floored", intPtr(-5), intPtr(1500), DelayWindow{time.Second, 1500 * time.Millisecond}},
		{"max raised to min", intPtr(5000), intPtr(1000), DelayWindow{5 * time.Second, 5 * time.Second}},
		{"equal bounds", intPtr(1000), intPtr(1000), DelayWindow{time.Second, time.Second}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeWindow(tc.min, tc.max, DefaultFirstWindow); got != tc.want {
				t.Fatalf("NormalizeWindow = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDrawStaysInWindowPlusJitter(t *testing.T) {
	rng := mathrand.New(mathrand.NewPCG(1, 2))
	windows := []DelayWindow{
		{Min: time.Second, Max: time.Second},
		{Min: 25 * time.Second, Max: 35 * time.Second},
		{Min: 30 * time.Second, Max: 45 * time.Second},
	}
	for _, w := range windows {
		for i := 0; i < 2000; i++ {
			d := w.Draw(rng)
			if d < w.Min || d > w.Max+MaxJitter {
				t.Fatalf("delay %v outside [%v, %v]", d, w.Min, w.Max+MaxJitter)
			}
		}
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepContext(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep ignored cancellation")
	}
}
