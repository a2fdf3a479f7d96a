package ratelimit

import (
	"sync"
	"time"
)

type cooldownBucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time
}

// CooldownLimiter is a per-user limiter with a penalty period: once a user
// exceeds maxEvents inside window, every call is rejected until cooldown has
// passed. Comment posting uses it, since each comment can fan out mention
// notifications to many users.
type CooldownLimiter struct {
	mu          sync.Mutex
	buckets     map[string]*cooldownBucket
	maxEvents   int
	window      time.Duration
	cooldown    time.Duration
	now         func() time.Time
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewCooldownLimiter starts the limiter and its background cleanup goroutine.
func NewCooldownLimiter(maxEvents int, window, cooldown time.Duration) *CooldownLimiter {
	rl := &CooldownLimiter{
		buckets:     make(map[string]*cooldownBucket),
		maxEvents:   maxEvents,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow records an event for userID and reports whether it may proceed.
func (rl *CooldownLimiter) Allow(userID string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[userID]
	if !exists {
		rl.buckets[userID] = &cooldownBucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		// penalty served
		*b = cooldownBucket{count: 1, windowStart: now}
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > rl.maxEvents {
		b.cooldownUntil = now.Add(rl.cooldown)
		return false
	}
	return true
}

// CooldownSeconds is the remaining penalty for userID, rounded up, or 0.
func (rl *CooldownLimiter) CooldownSeconds(userID string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[userID]
	if !exists || b.cooldownUntil.IsZero() {
		return 0
	}

	remaining := b.cooldownUntil.Sub(rl.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (rl *CooldownLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *CooldownLimiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *CooldownLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for userID, b := range rl.buckets {
		windowExpired := now.Sub(b.windowStart) > rl.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)
		if windowExpired && cooldownExpired {
			delete(rl.buckets, userID)
		}
	}
}
