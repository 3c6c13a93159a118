package router

import (
	"sync"
	"time"
)

// RateLimiter allows at most limit messages per sender in each one-minute window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	senders map[string]*senderWindow
}

type senderWindow struct {
	count int
	start time.Time
}

// NewRateLimiter creates a limiter allowing perMinute messages per sender.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limit:   perMinute,
		window:  time.Minute,
		now:     time.Now,
		senders: make(map[string]*senderWindow),
	}
}

// Allow records one message from senderID and reports whether it fits the window.
func (rl *RateLimiter) Allow(senderID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, exists := rl.senders[senderID]
	if !exists || now.Sub(w.start) >= rl.window {
		rl.senders[senderID] = &senderWindow{count: 1, start: now}
		return true
	}

	if w.count >= rl.limit {
		return false
	}
	w.count++
	return true
}

// Cleanup drops senders idle for more than five windows.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for senderID, w := range rl.senders {
		if now.Sub(w.start) > 5*rl.window {
			delete(rl.senders, senderID)
			removed++
		}
	}
	return removed
}

// Tracked returns the number of senders currently tracked.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.senders)
}
