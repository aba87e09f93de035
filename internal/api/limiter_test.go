package api

import (
	"testing"
	"time"

	"salonbook/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		l := newRateLimiter(config.APIRateLimitConfig{})
		for i := 0; i < 100; i++ {
			assert.True(t, l.allow("a"))
		}
		var nilLimiter *rateLimiter
		assert.True(t, nilLimiter.allow("a"))
	})

	t.Run("PerClientBurst", func(t *testing.T) {
		now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
		l := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 2})
		l.now = func() time.Time { return now }

		assert.True(t, l.allow("a"))
		assert.True(t, l.allow("a"))
		assert.False(t, l.allow("a"))
		assert.True(t, l.allow("b"), "other clients keep their own bucket")

		now = now.Add(time.Second)
		assert.True(t, l.allow("a"))
	})

	t.Run("IdleBucketsEvicted", func(t *testing.T) {
		now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
		l := newRateLimiter(config.APIRateLimitConfig{RPS: 1})
		l.now = func() time.Time { return now }
		l.lastSweep = now

		l.allow("a")
		l.allow("b")
		now = now.Add(limiterIdleTTL / 2)
		l.allow("b")
		assert.Len(t, l.buckets, 2)

		now = now.Add(limiterIdleTTL / 2)
		l.allow("c")
		assert.Len(t, l.buckets, 2, "a idle for the full TTL is dropped")
		assert.NotContains(t, l.buckets, "a")
	})
}
