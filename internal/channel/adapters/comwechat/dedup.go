package comwechat

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type dedupEntry struct {
	kind    string
	expires time.Time
}

// Dedup suppresses repeated deliveries of the same event id and kind within a TTL.
// Capacity is bounded; the oldest admitted id is evicted first on overflow.
type Dedup struct {
	mu    sync.Mutex
	cache *lru.Cache[string, dedupEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewDedup creates a Dedup holding at most capacity ids for ttl each.
func NewDedup(capacity int, ttl time.Duration) (*Dedup, error) {
	if capacity <= 0 {
		capacity = 200
	}
	if ttl <= 0 {
		ttl = 120 * time.Second
	}
	cache, err := lru.New[string, dedupEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &Dedup{cache: cache, ttl: ttl, now: time.Now}, nil
}

// Admit reports whether the event should be processed. A repeat of the same id
// and kind inside the TTL is rejected; a different kind replaces the stored one.
func (d *Dedup) Admit(id, kind string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	// Peek keeps insertion order so eviction stays oldest-first.
	if entry, ok := d.cache.Peek(id); ok && now.Before(entry.expires) && entry.kind == kind {
		return false
	}
	d.cache.Remove(id)
	d.cache.Add(id, dedupEntry{kind: kind, expires: now.Add(d.ttl)})
	return true
}

// Len returns the number of tracked ids, expired ones included.
func (d *Dedup) Len() int {
	return d.cache.Len()
}
