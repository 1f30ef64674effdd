// Package cooldown throttles how often one user's messages are relayed.
package cooldown

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the minimum gap between two relays from the same user.
const DefaultWindow = time.Second

type Limiter interface {
	// Allow reports whether key may act now. Only allowed calls start a new window.
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter keeps the last accepted time per key in process memory.
type MemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	now    func() time.Time
	last   map[string]time.Time
}

func NewMemoryLimiter(window time.Duration, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		window: window,
		now:    now,
		last:   make(map[string]time.Time),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.window {
		return false, nil
	}
	l.last[key] = now
	return true, nil
}
