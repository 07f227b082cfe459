package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstTraffic(t *testing.T) {
	rl := NewRateLimiter(10, 100*time.Millisecond)

	const burstSize = 20
	allowed := 0
	limited := 0

	for i := 0; i < burstSize; i++ {
		if rl.Allow("127.0.0.1") {
			allowed++
		} else {
			limited++
		}
	}

	assert.Equal(t, 10, allowed, "Should allow up to limit")
	assert.Equal(t, 10, limited, "Should limit excess requests")
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl := NewRateLimiter(5, 100*time.Millisecond)
	ip := "192.168.1.1"

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "Request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(ip), "6th request should be denied")

	time.Sleep(110 * time.Millisecond)

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(ip), "Request %d after reset should be allowed", i+1)
	}
}

func TestRateLimiter_MultipleIPs(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)

	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.2"))
	}

	assert.False(t, rl.Allow("10.0.0.1"), "First IP should be limited")
	assert.False(t, rl.Allow("10.0.0.2"), "Second IP should be limited")
	assert.True(t, rl.Allow("10.0.0.3"), "Fresh IP should be allowed")
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(100, time.Second)
	ip := "172.16.0.1"

	var allowed atomic.Int64
	var wg sync.WaitGroup

	const goroutines = 20
	const requestsPerGoroutine = 10

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < requestsPerGoroutine; i++ {
				if rl.Allow(ip) {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// 200 requests against a limit of 100 in one window.
	assert.Equal(t, int64(100), allowed.Load())
}

func TestRateLimiter_ManyClientsPruned(t *testing.T) {
	rl := NewRateLimiter(1, 10*time.Millisecond)

	for i := 0; i < 2000; i++ {
		rl.Allow(fmt.Sprintf("10.1.%d.%d", i/256, i%256))
	}

	time.Sleep(20 * time.Millisecond)
	// A new window on any IP triggers pruning of the expired entries.
	rl.Allow("10.2.0.1")

	rl.mu.Lock()
	size := len(rl.clients)
	rl.mu.Unlock()
	assert.Less(t, size, 1024, "Expired client windows should be pruned")
}
