package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(perMinute, perHour int) (*RateLimiter, *time.Time) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(perMinute, perHour, true)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestAllowRequestPerMinute(t *testing.T) {
	rl, now := newTestLimiter(2, 0)

	assert.True(t, rl.AllowRequest("user:1"))
	assert.True(t, rl.AllowRequest("user:1"))
	assert.False(t, rl.AllowRequest("user:1"))
	assert.True(t, rl.AllowRequest("user:2"), "keys are independent")

	*now = now.Add(61 * time.Second)
	assert.True(t, rl.AllowRequest("user:1"))
}

func TestAllowRequestPerHour(t *testing.T) {
	rl, now := newTestLimiter(10, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowRequest("k"))
		*now = now.Add(5 * time.Minute)
	}
	assert.False(t, rl.AllowRequest("k"))

	*now = now.Add(46 * time.Minute)
	assert.True(t, rl.AllowRequest("k"))
}

func TestRejectedRequestsAreNotCounted(t *testing.T) {
	rl, _ := newTestLimiter(1, 0)

	assert.True(t, rl.AllowRequest("k"))
	for i := 0; i < 5; i++ {
		assert.False(t, rl.AllowRequest("k"))
	}
	stats := rl.GetStats("k")
	assert.Equal(t, 1, stats.RequestsLastMinute)
	assert.Equal(t, 0, stats.RemainingThisMinute)
	assert.Equal(t, -1, stats.RemainingThisHour)
}

func TestDisabledLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 1, false)
	for i := 0; i < 10; i++ {
		assert.True(t, rl.AllowRequest("k"))
	}
	assert.False(t, rl.GetStats("k").Enabled)
}

func TestPrune(t *testing.T) {
	rl, now := newTestLimiter(5, 50)
	rl.AllowRequest("a")
	*now = now.Add(30 * time.Minute)
	rl.AllowRequest("b")
	*now = now.Add(31 * time.Minute)

	assert.Equal(t, 1, rl.Prune())
	assert.Equal(t, 1, rl.GetStats("b").RequestsLastHour)

	rl.Reset()
	assert.Zero(t, rl.GetStats("b").RequestsLastHour)
}
