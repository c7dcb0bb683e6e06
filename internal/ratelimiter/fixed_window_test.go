package ratelimiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedWindow_AllowsUpToLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewFixedWindowLimiter(3, 10*time.Second)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, _ := rl.Allow("1.2.3.4")
		assert.True(t, ok)
	}

	now = now.Add(4 * time.Second)
	ok, retry := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, 6*time.Second, retry)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(6 * time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok, "window reset")
}

func TestFixedWindow_Sweep(t *testing.T) {
	now := time.Now()
	rl := NewFixedWindowLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	rl.Allow("b")
	now = now.Add(2 * time.Second)
	rl.Allow("c")

	assert.Equal(t, 2, rl.Sweep())
}

func TestFixedWindow_ConcurrentCountIsExact(t *testing.T) {
	rl := NewFixedWindowLimiter(50, time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := rl.Allow("k"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
