package alerting

import (
	"context"
	"sync"
	"time"
)

// MemoryDeduper is an in-process Deduper used when no redis is configured.
// State does not survive restarts; a restart after a crash may re-send a
// recently delivered alert, which is acceptable.
type MemoryDeduper struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (d *MemoryDeduper) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if t, ok := d.last[key]; ok && now.Sub(t) < window {
		return true, nil
	}
	d.last[key] = now
	return false, nil
}
