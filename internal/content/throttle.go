package content

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSyncThrottle is the minimum spacing between unforced syncs.
const DefaultSyncThrottle = 2 * time.Minute

const syncThrottleKey = "quiz:sync:throttle"

// Throttle grants at most one holder per key within ttl.
// cache.Cache implements it on Redis so replicas share the window.
type Throttle interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryThrottle is a process-local Throttle.
type MemoryThrottle struct {
	until map[string]time.Time
	now   func() time.Time
	mu    sync.Mutex
}

// NewMemoryThrottle creates an empty MemoryThrottle.
func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (t *MemoryThrottle) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if until, ok := t.until[key]; ok && now.Before(until) {
		return false, nil
	}
	t.until[key] = now.Add(ttl)
	return true, nil
}

// ThrottledSynchronizer skips unforced syncs requested within the throttle
// window of the previous one.
type ThrottledSynchronizer struct {
	sync     *Synchronizer
	throttle Throttle
	ttl      time.Duration
	mu       sync.Mutex
}

// NewThrottledSynchronizer wraps s. A non-positive ttl uses DefaultSyncThrottle.
func NewThrottledSynchronizer(s *Synchronizer, throttle Throttle, ttl time.Duration) *ThrottledSynchronizer {
	if ttl <= 0 {
		ttl = DefaultSyncThrottle
	}
	return &ThrottledSynchronizer{sync: s, throttle: throttle, ttl: ttl}
}

// Sync runs SyncTopics unless the window is still open and force is false.
// The boolean result reports whether a sync actually ran.
func (t *ThrottledSynchronizer) Sync(ctx context.Context, force bool) (Report, bool, error) {
	if !force {
		ok, err := t.throttle.Acquire(ctx, syncThrottleKey, t.ttl)
		if err != nil {
			slog.Warn("sync throttle unavailable, syncing anyway", "error", err)
		} else if !ok {
			slog.Debug("quiz sync skipped, throttled", "ttl", t.ttl)
			return Report{}, false, nil
		}
	}

	// Serialize runs within the process; the cron job and a forced call may overlap.
	t.mu.Lock()
	defer t.mu.Unlock()

	report, err := t.sync.SyncTopics(ctx)
	return report, true, err
}
