package comwechat

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Reaper deletes staged outbound files once their grace period has elapsed.
type Reaper struct {
	mu     sync.Mutex
	files  map[string]time.Time
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func NewReaper(log *slog.Logger, grace time.Duration) *Reaper {
	if log == nil {
		log = slog.Default()
	}
	if grace <= 0 {
		grace = 120 * time.Second
	}
	return &Reaper{
		files:  map[string]time.Time{},
		grace:  grace,
		now:    time.Now,
		logger: log,
	}
}

// Track registers path for deletion. Re-tracking a path restarts its grace period.
func (r *Reaper) Track(path string) {
	if path == "" {
		return
	}
	r.mu.Lock()
	r.files[path] = r.now()
	r.mu.Unlock()
}

func (r *Reaper) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.files)
}

// Sweep removes every file staged longer than the grace period ago.
// Files that are already gone are forgotten silently.
func (r *Reaper) Sweep() int {
	now := r.now()
	var expired []string
	r.mu.Lock()
	for path, stagedAt := range r.files {
		if now.Sub(stagedAt) > r.grace {
			expired = append(expired, path)
			delete(r.files, path)
		}
	}
	r.mu.Unlock()

	for _, path := range expired {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Debug("remove staged file failed", slog.String("path", path), slog.Any("error", err))
		}
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
