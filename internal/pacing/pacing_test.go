package pacing

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_SpacesInitiations(t *testing.T) {
	l := New(20 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Wait(ctx); err != nil {
				t.Errorf("Wait: %v", err)
			}
		}()
	}
	wg.Wait()

	// First slot is immediate (burst 1), the remaining three are spaced.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("4 waits finished in %s, want >= ~60ms", elapsed)
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled limiter blocked for %s", elapsed)
	}
	if l.Interval() != 0 {
		t.Errorf("Interval: got %s, want 0", l.Interval())
	}
}

func TestLimiter_Nil(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait: %v", err)
	}
}

func TestLimiter_ContextCancelled(t *testing.T) {
	l := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	// Consume the burst slot.
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	cancel()
	if err := l.Wait(ctx); err == nil {
		t.Error("expected error after cancel, got nil")
	}
}
