package cache

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestGet_EmptyIsMiss(t *testing.T) {
	c := New[int](time.Minute)
	if _, ok := c.Get(); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestSetGet_HitWithinTTL(t *testing.T) {
	clock := newClock()
	c := New[string](30*time.Second, WithClock(clock.Now))

	c.Set("usage")
	clock.Advance(29 * time.Second)

	got, ok := c.Get()
	if !ok {
		t.Fatal("expected hit within TTL")
	}
	if got != "usage" {
		t.Fatalf("Get() = %q, want usage", got)
	}
}

func TestGet_ExpiredAtBoundary(t *testing.T) {
	clock := newClock()
	c := New[string](30*time.Second, WithClock(clock.Now))

	c.Set("usage")
	clock.Advance(30 * time.Second)

	if _, ok := c.Get(); ok {
		t.Fatal("expected miss once now == expires_at")
	}
}

func TestSet_ResetsTTL(t *testing.T) {
	clock := newClock()
	c := New[int](10*time.Second, WithClock(clock.Now))

	c.Set(1)
	clock.Advance(8 * time.Second)
	c.Set(2)
	clock.Advance(8 * time.Second)

	got, ok := c.Get()
	if !ok || got != 2 {
		t.Fatalf("Get() = (%d, %v), want (2, true)", got, ok)
	}
}

func TestSet_OverwritesExpiredEntry(t *testing.T) {
	clock := newClock()
	c := New[int](time.Second, WithClock(clock.Now))

	c.Set(1)
	clock.Advance(5 * time.Second)
	if _, ok := c.Get(); ok {
		t.Fatal("expected expired entry to be masked")
	}
	c.Set(7)
	if got, ok := c.Get(); !ok || got != 7 {
		t.Fatalf("Get() = (%d, %v), want (7, true)", got, ok)
	}
}

func TestClear_ForcesMiss(t *testing.T) {
	c := New[int](time.Hour)
	c.Set(42)
	c.Clear()
	if _, ok := c.Get(); ok {
		t.Fatal("expected miss after Clear")
	}
}

func TestNew_NonPositiveTTLUsesDefault(t *testing.T) {
	c := New[int](0)
	if c.TTL() != DefaultTTL {
		t.Fatalf("TTL = %v, want %v", c.TTL(), DefaultTTL)
	}
}

func TestGet_PanickingClockDegradesToMiss(t *testing.T) {
	clock := newClock()
	panicNext := false
	c := New[int](time.Minute, WithClock(func() time.Time {
		if panicNext {
			panicNext = false
			panic("clock failure")
		}
		return clock.Now()
	}))

	c.Set(5)
	panicNext = true
	if _, ok := c.Get(); ok {
		t.Fatal("expected miss after recovered panic")
	}

	// The lock must still be usable.
	c.Set(6)
	if got, ok := c.Get(); !ok || got != 6 {
		t.Fatalf("Get() = (%d, %v), want (6, true)", got, ok)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(3)
		go func(v int) {
			defer wg.Done()
			c.Set(v)
		}(i)
		go func() {
			defer wg.Done()
			c.Get()
		}()
		go func() {
			defer wg.Done()
			c.Clear()
		}()
	}
	wg.Wait()
}
