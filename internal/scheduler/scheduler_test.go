package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	if _, err := New(Options{}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestNextTickAlignment(t *testing.T) {
	s, err := New(Options{Interval: time.Minute, AlignToSlot: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2024, 1, 1, 10, 0, 30, 0, time.UTC)
	if got := s.nextTick(now); !got.Equal(time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC)) {
		t.Fatalf("nextTick = %s", got)
	}
	onSlot := time.Date(2024, 1, 1, 10, 1, 0, 0, time.UTC)
	if got := s.nextTick(onSlot); !got.Equal(onSlot.Add(time.Minute)) {
		t.Fatalf("nextTick on slot = %s", got)
	}
}

func TestRunTicksUntilCancelled(t *testing.T) {
	s, err := New(Options{Name: "test", Interval: 5 * time.Millisecond}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			if ticks.Add(1) == 3 {
				cancel()
			}
			return errors.New("tick errors are logged only")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("scheduler did not stop")
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected at least 3 ticks, got %d", ticks.Load())
	}
}
