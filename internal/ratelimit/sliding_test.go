package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSlidingWindowThreePerMinute(t *testing.T) {
	l := NewSlidingWindow(3, time.Minute)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("10.0.0.1", start))
	assert.True(t, l.Allow("10.0.0.1", start.Add(time.Second)))
	assert.True(t, l.Allow("10.0.0.1", start.Add(2*time.Second)))
	assert.False(t, l.Allow("10.0.0.1", start.Add(3*time.Second)))

	// Other keys are independent.
	assert.True(t, l.Allow("10.0.0.2", start.Add(3*time.Second)))

	// The first timestamp expires one window after it was recorded.
	assert.False(t, l.Allow("10.0.0.1", start.Add(time.Minute-time.Millisecond)))
	assert.True(t, l.Allow("10.0.0.1", start.Add(time.Minute+time.Millisecond)))
}

func TestSlidingWindowRetryAfter(t *testing.T) {
	l := NewSlidingWindow(2, time.Minute)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Zero(t, l.RetryAfter("k", start))
	l.Allow("k", start)
	l.Allow("k", start.Add(10*time.Second))
	assert.False(t, l.Allow("k", start.Add(20*time.Second)))

	assert.Equal(t, 40*time.Second, l.RetryAfter("k", start.Add(20*time.Second)))
	assert.Zero(t, l.RetryAfter("k", start.Add(61*time.Second)))
}

func TestSlidingWindowSweepEvictsStaleKeys(t *testing.T) {
	l := NewSlidingWindow(3, time.Minute)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	l.Allow("old", start)
	l.Allow("fresh", start.Add(50*time.Second))
	assert.Equal(t, 2, l.Keys())

	assert.Equal(t, 1, l.Sweep(start.Add(70*time.Second)))
	assert.Equal(t, 1, l.Keys())
}

func TestSlidingWindowConcurrentCallers(t *testing.T) {
	l := NewSlidingWindow(50, time.Hour)
	now := time.Now()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared", now) {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestSlidingWindowRunStopsOnCancel(t *testing.T) {
	l := NewSlidingWindow(1, time.Millisecond)
	l.Allow("k", time.Now().Add(-time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Keys() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
