package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRateLimiter is the in-process fallback used when redis is down or
// not configured. State is lost on restart, which only resets the window.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[int64]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{entries: make(map[int64]*rateLimitEntry)}
}

func (r *MemoryRateLimiter) CheckRateLimit(ctx context.Context, clientID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[clientID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.entries[clientID] = entry
	} else {
		entry.count++
	}

	return entry.count <= limit, nil
}
