package middleware

import (
	"io"
	"testing"
	"time"

	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestLimiter(t *testing.T, max int, window, cooldown time.Duration) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(&config.RateLimitConfig{
		MaxMessages: max,
		Window:      window,
		Cooldown:    cooldown,
	}, testLogger())
	t.Cleanup(rl.Stop)
	return rl
}

func TestFirstMessageAdmitted(t *testing.T) {
	rl := newTestLimiter(t, 3, time.Minute, 5*time.Second)

	v := rl.CheckAndAdmit("u1", time.Now())
	assert.True(t, v.Admitted)
	assert.Zero(t, v.RetryAfter)
}

func TestWindowCapRejects(t *testing.T) {
	rl := newTestLimiter(t, 3, time.Minute, 5*time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		v := rl.CheckAndAdmit("u1", now.Add(time.Duration(i)*10*time.Second))
		require.True(t, v.Admitted, "message %d should be admitted", i)
	}

	v := rl.CheckAndAdmit("u1", now.Add(30*time.Second))
	assert.False(t, v.Admitted)
	assert.Greater(t, v.RetryAfter, 0)
	// Oldest timestamp leaves the window 60s after it was recorded.
	assert.Equal(t, 30, v.RetryAfter)
}

func TestWindowSlides(t *testing.T) {
	rl := newTestLimiter(t, 2, time.Minute, time.Second)
	now := time.Now()

	require.True(t, rl.CheckAndAdmit("u1", now).Admitted)
	require.True(t, rl.CheckAndAdmit("u1", now.Add(10*time.Second)).Admitted)
	require.False(t, rl.CheckAndAdmit("u1", now.Add(20*time.Second)).Admitted)

	// After the first timestamp falls out of the window a slot frees up.
	v := rl.CheckAndAdmit("u1", now.Add(61*time.Second))
	assert.True(t, v.Admitted)
}

func TestCooldownRejects(t *testing.T) {
	rl := newTestLimiter(t, 10, time.Minute, 5*time.Second)
	now := time.Now()

	require.True(t, rl.CheckAndAdmit("u1", now).Admitted)

	v := rl.CheckAndAdmit("u1", now.Add(2*time.Second))
	assert.False(t, v.Admitted)
	assert.Equal(t, 3, v.RetryAfter)

	v = rl.CheckAndAdmit("u1", now.Add(5*time.Second))
	assert.True(t, v.Admitted)
}

func TestRejectionRecordsNothing(t *testing.T) {
	rl := newTestLimiter(t, 10, time.Minute, 5*time.Second)
	now := time.Now()

	require.True(t, rl.CheckAndAdmit("u1", now).Admitted)

	// Hammering during the cooldown must not extend it.
	for i := 1; i <= 4; i++ {
		v := rl.CheckAndAdmit("u1", now.Add(time.Duration(i)*time.Second))
		require.False(t, v.Admitted)
	}

	v := rl.CheckAndAdmit("u1", now.Add(5*time.Second))
	assert.True(t, v.Admitted)
}

func TestUsersIndependent(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute, 5*time.Second)
	now := time.Now()

	require.True(t, rl.CheckAndAdmit("u1", now).Admitted)
	require.False(t, rl.CheckAndAdmit("u1", now.Add(10*time.Second)).Admitted)

	v := rl.CheckAndAdmit("u2", now.Add(10*time.Second))
	assert.True(t, v.Admitted)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	rl := newTestLimiter(t, 1, time.Minute, 5*time.Second)
	now := time.Now()

	require.True(t, rl.CheckAndAdmit("u1", now).Admitted)

	// 59.5s of window remaining rounds up to 60.
	v := rl.CheckAndAdmit("u1", now.Add(500*time.Millisecond))
	require.False(t, v.Admitted)
	assert.Equal(t, 60, v.RetryAfter)
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	rl := newTestLimiter(t, 3, time.Minute, time.Second)
	now := time.Now()

	require.True(t, rl.CheckAndAdmit("idle", now).Admitted)
	require.True(t, rl.CheckAndAdmit("active", now.Add(50*time.Second)).Admitted)

	rl.sweep(now.Add(70 * time.Second))

	rl.mu.Lock()
	_, idleKept := rl.entries["idle"]
	_, activeKept := rl.entries["active"]
	rl.mu.Unlock()

	assert.False(t, idleKept)
	assert.True(t, activeKept)
}

func TestInflightMutualExclusion(t *testing.T) {
	inflight := NewInflight()

	require.True(t, inflight.TryAcquire("u1"))
	assert.False(t, inflight.TryAcquire("u1"))
	assert.True(t, inflight.TryAcquire("u2"))

	inflight.Release("u1")
	assert.True(t, inflight.TryAcquire("u1"))
}
