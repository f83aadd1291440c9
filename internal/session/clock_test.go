package session

import (
	"sync"
	"testing"
	"time"
)

func TestClockCountsDownAndExpiresOnce(t *testing.T) {
	var mu sync.Mutex
	var ticks []int
	expiries := 0

	clock := NewClock(3, 2*time.Millisecond,
		func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		func() {
			mu.Lock()
			expiries++
			mu.Unlock()
		})
	clock.Start()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if expiries != 1 {
		t.Fatalf("expected exactly one expiry, got %d", expiries)
	}
	for _, r := range ticks {
		if r < 0 {
			t.Fatalf("remaining went negative: %d", r)
		}
	}
	if last := ticks[len(ticks)-1]; last != 0 {
		t.Fatalf("expected final tick at 0, got %d", last)
	}
	if clock.Remaining() != 0 {
		t.Fatalf("expected remaining 0, got %d", clock.Remaining())
	}
}

func TestClockStopHaltsCountdown(t *testing.T) {
	clock := NewClock(1000, 2*time.Millisecond, nil, func() {
		t.Error("expiry fired after stop")
	})
	clock.Start()
	time.Sleep(10 * time.Millisecond)
	clock.Stop()

	frozen := clock.Remaining()
	time.Sleep(20 * time.Millisecond)
	if got := clock.Remaining(); got != frozen {
		t.Fatalf("clock kept ticking after stop: %d != %d", got, frozen)
	}
	if frozen <= 0 || frozen >= 1000 {
		t.Fatalf("unexpected remaining after stop: %d", frozen)
	}

	// Stop is safe to repeat.
	clock.Stop()
}

func TestClockZeroDurationExpiresImmediately(t *testing.T) {
	done := make(chan struct{})
	clock := NewClock(0, time.Millisecond, nil, func() { close(done) })
	clock.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("zero-length countdown never expired")
	}
}
