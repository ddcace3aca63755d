package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingClock struct {
	waits []time.Duration
}

func (c *recordingClock) After(d time.Duration) <-chan time.Time {
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Unix(0, 0)
	return ch
}

func (c *recordingClock) Now() time.Time { return time.Unix(0, 0) }

type blockedClock struct{}

func (blockedClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }
func (blockedClock) Now() time.Time                       { return time.Unix(0, 0) }

func TestSleep_WaitsOnClock(t *testing.T) {
	clock := &recordingClock{}
	if err := Sleep(context.Background(), clock, 500*time.Millisecond); err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if len(clock.waits) != 1 || clock.waits[0] != 500*time.Millisecond {
		t.Errorf("waits = %v, want [500ms]", clock.waits)
	}
}

func TestSleep_NonPositiveSkipsClock(t *testing.T) {
	clock := &recordingClock{}
	for _, d := range []time.Duration{0, -time.Second} {
		if err := Sleep(context.Background(), clock, d); err != nil {
			t.Fatalf("Sleep(%v) error = %v", d, err)
		}
	}
	if len(clock.waits) != 0 {
		t.Errorf("clock consulted %d times, want 0", len(clock.waits))
	}
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, blockedClock{}, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "debug"},
		{"warn", "warn"},
		{"error", "error"},
		{"", "info"},
		{"bogus", "info"},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in).String(); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
