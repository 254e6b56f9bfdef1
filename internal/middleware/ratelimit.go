package middleware

import (
	"sync"
	"time"

	"github.com/ds-ai-discord-bot/internal/config"
	"github.com/sirupsen/logrus"
)

// Gates that can reject a message.
const (
	GateWindow   = "window"
	GateCooldown = "cooldown"
)

// Verdict is the outcome of a rate limit check.
type Verdict struct {
	Admitted bool
	// RetryAfter is the number of whole seconds the user should wait
	// before the next attempt. Zero when admitted.
	RetryAfter int
	// Gate names the gate that rejected the message.
	Gate string
}

type userEntry struct {
	timestamps      []time.Time
	lastProcessedAt time.Time
}

// RateLimiter enforces a per-user sliding-window message cap plus a fixed
// cooldown between admitted messages. The two gates are independent: a
// message is admitted only when both pass.
//
// RateLimiter is safe for concurrent use from multiple goroutines.
type RateLimiter struct {
	mu       sync.Mutex
	entries  map[string]*userEntry
	max      int
	window   time.Duration
	cooldown time.Duration

	sweepInterval time.Duration
	stop          chan struct{}
	stopOnce      sync.Once

	logger *logrus.Logger
}

// NewRateLimiter creates a rate limiter from config and starts its
// background sweep. Call Stop to terminate the sweep goroutine.
func NewRateLimiter(cfg *config.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	rl := &RateLimiter{
		entries:       make(map[string]*userEntry),
		max:           cfg.MaxMessages,
		window:        cfg.Window,
		cooldown:      cfg.Cooldown,
		sweepInterval: cfg.SweepInterval,
		stop:          make(chan struct{}),
		logger:        logger,
	}
	if rl.sweepInterval <= 0 {
		rl.sweepInterval = rl.window
	}

	go rl.sweepLoop()

	return rl
}

// CheckAndAdmit decides whether the user's message may be processed at the
// given instant. On admission the message is counted against the window and
// lastProcessedAt is updated; a rejection records nothing.
func (r *RateLimiter) CheckAndAdmit(userID string, now time.Time) Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[userID]
	if !ok {
		entry = &userEntry{}
		r.entries[userID] = entry
	}

	// Drop timestamps that have fallen outside the window.
	cutoff := now.Add(-r.window)
	valid := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	entry.timestamps = valid

	if len(entry.timestamps) >= r.max {
		remaining := r.window - now.Sub(entry.timestamps[0])
		retry := ceilSeconds(remaining)
		r.logger.WithFields(logrus.Fields{
			"user_id":     userID,
			"retry_after": retry,
		}).Warn("Rate limit exceeded")
		return Verdict{RetryAfter: retry, Gate: GateWindow}
	}

	if !entry.lastProcessedAt.IsZero() {
		if since := now.Sub(entry.lastProcessedAt); since < r.cooldown {
			retry := ceilSeconds(r.cooldown - since)
			r.logger.WithFields(logrus.Fields{
				"user_id":     userID,
				"retry_after": retry,
			}).Debug("Cooldown active")
			return Verdict{RetryAfter: retry, Gate: GateCooldown}
		}
	}

	entry.timestamps = append(entry.timestamps, now)
	entry.lastProcessedAt = now
	return Verdict{Admitted: true}
}

// Stop terminates the background sweep goroutine.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// sweep removes entries whose window is empty, bounding the map to users
// active within the last window duration.
func (r *RateLimiter) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-r.window)
	removed := 0
	for userID, entry := range r.entries {
		live := false
		for _, ts := range entry.timestamps {
			if ts.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(r.entries, userID)
			removed++
		}
	}

	if removed > 0 {
		r.logger.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": len(r.entries),
		}).Debug("Swept idle rate limit entries")
	}
}

func (r *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// Inflight tracks users with a completion request currently outstanding.
// It is a mutual-exclusion gate, not a queue: a second message from the
// same user is rejected immediately while the first is in flight.
type Inflight struct {
	mu    sync.Mutex
	users map[string]struct{}
}

// NewInflight creates an empty in-flight set.
func NewInflight() *Inflight {
	return &Inflight{users: make(map[string]struct{})}
}

// TryAcquire marks the user as processing. It returns false if a request
// for the user is already outstanding.
func (f *Inflight) TryAcquire(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.users[userID]; busy {
		return false
	}
	f.users[userID] = struct{}{}
	return true
}

// Release clears the user's in-flight flag. It must be called exactly once
// per successful TryAcquire, regardless of the request outcome.
func (f *Inflight) Release(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, userID)
}
