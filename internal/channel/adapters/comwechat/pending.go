package comwechat

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/honus/comwechat/internal/hook"
)

// VoiceFetcher reads a voice payload straight from the hook's media database.
// ok is false while the payload is not available yet.
type VoiceFetcher func(ctx context.Context, msgid string) (data []byte, ok bool, err error)

// PendingDeliver receives a settled entry. timedOut is set when the payload never appeared.
type PendingDeliver func(ctx context.Context, ev MessageEvent, path string, timedOut bool)

type pendingFile struct {
	path       string
	event      MessageEvent
	enqueuedAt time.Time

	// Last observation of the payload; guarded by PendingFiles.mu.
	seenSize    int64
	seenModTime time.Time
}

// PendingFiles holds message events whose payload is still being written to
// disk. Each entry is keyed by its expected path and settles exactly once,
// either when the file is complete or when the timeout elapses. A file counts
// as complete once two observations see the same non-zero size and mtime.
type PendingFiles struct {
	mu      sync.Mutex
	entries map[string]*pendingFile

	timeout    time.Duration
	now        func() time.Time
	fetchVoice VoiceFetcher
	deliver    PendingDeliver
	logger     *slog.Logger

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
	watched map[string]bool
}

func NewPendingFiles(log *slog.Logger, timeout time.Duration, fetchVoice VoiceFetcher, deliver PendingDeliver) *PendingFiles {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &PendingFiles{
		entries:    map[string]*pendingFile{},
		timeout:    timeout,
		now:        time.Now,
		fetchVoice: fetchVoice,
		deliver:    deliver,
		logger:     log,
		watched:    map[string]bool{},
	}
}

// Add queues ev until path exists. An entry already waiting on path is replaced.
func (p *PendingFiles) Add(path string, ev MessageEvent) {
	p.mu.Lock()
	p.entries[path] = &pendingFile{path: path, event: ev, enqueuedAt: p.now(), seenSize: -1}
	p.mu.Unlock()
	p.watch(filepath.Dir(path))
	p.logger.Debug("payload pending", slog.String("path", path), slog.String("msgid", ev.ID), slog.String("kind", string(ev.Kind)))
}

// Len returns the number of waiting entries.
func (p *PendingFiles) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Tick visits every entry queued before the call. Entries added while the tick
// runs are left for the next one.
func (p *PendingFiles) Tick(ctx context.Context) {
	p.mu.Lock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		p.visit(ctx, key)
	}
}

func (p *PendingFiles) visit(ctx context.Context, key string) {
	p.mu.Lock()
	entry, ok := p.entries[key]
	p.mu.Unlock()
	if !ok {
		return
	}

	expired := p.now().Sub(entry.enqueuedAt) > p.timeout
	if info, err := os.Stat(entry.path); err == nil && !info.IsDir() {
		if p.observe(entry, info) || expired {
			p.settle(ctx, entry, false)
		}
		return
	}

	switch {
	case expired:
		p.settle(ctx, entry, true)
	case entry.event.Kind == hook.KindVoice && p.fetchVoice != nil:
		data, found, err := p.fetchVoice(ctx, entry.event.ID)
		if err != nil {
			p.logger.Debug("voice lookup failed", slog.String("msgid", entry.event.ID), slog.Any("error", err))
			return
		}
		if !found {
			return
		}
		if err := writePayload(entry.path, data); err != nil {
			p.logger.Warn("write voice payload failed", slog.String("path", entry.path), slog.Any("error", err))
			return
		}
		p.settle(ctx, entry, false)
	}
}

// observe records the current size of the payload and reports whether it
// matches the previous observation.
func (p *PendingFiles) observe(entry *pendingFile, info os.FileInfo) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	stable := info.Size() > 0 && info.Size() == entry.seenSize && info.ModTime().Equal(entry.seenModTime)
	entry.seenSize = info.Size()
	entry.seenModTime = info.ModTime()
	return stable
}

// settle removes entry and delivers it, unless it was already settled or replaced.
func (p *PendingFiles) settle(ctx context.Context, entry *pendingFile, timedOut bool) {
	p.mu.Lock()
	if p.entries[entry.path] != entry {
		p.mu.Unlock()
		return
	}
	delete(p.entries, entry.path)
	p.mu.Unlock()

	if timedOut {
		p.logger.Info("payload timed out", slog.String("path", entry.path), slog.String("msgid", entry.event.ID))
	}
	if p.deliver != nil {
		p.deliver(ctx, entry.event, entry.path, timedOut)
	}
}

// Run polls every interval until ctx is done. Write events in watched
// directories record an extra observation of the file; the poll alone is
// enough for correctness.
func (p *PendingFiles) Run(ctx context.Context, interval time.Duration) {
	events, errs := p.startWatcher()
	defer p.stopWatcher()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !evt.Has(fsnotify.Write) {
				continue
			}
			p.mu.Lock()
			_, pending := p.entries[evt.Name]
			p.mu.Unlock()
			if pending {
				p.visit(ctx, evt.Name)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Debug("pending watcher error", slog.Any("error", err))
		}
	}
}

func (p *PendingFiles) startWatcher() (<-chan fsnotify.Event, <-chan error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warn("pending watcher unavailable", slog.Any("error", err))
		return nil, nil
	}
	p.watchMu.Lock()
	p.watcher = watcher
	dirs := make([]string, 0, len(p.watched))
	for dir, added := range p.watched {
		if !added {
			dirs = append(dirs, dir)
		}
	}
	p.watchMu.Unlock()
	for _, dir := range dirs {
		p.watch(dir)
	}
	return watcher.Events, watcher.Errors
}

func (p *PendingFiles) stopWatcher() {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	if p.watcher != nil {
		_ = p.watcher.Close()
		p.watcher = nil
	}
	for dir := range p.watched {
		p.watched[dir] = false
	}
}

func (p *PendingFiles) watch(dir string) {
	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	if p.watched[dir] {
		return
	}
	if p.watcher == nil {
		p.watched[dir] = false
		return
	}
	// The directory may not exist yet; the next Add retries.
	if err := p.watcher.Add(dir); err != nil {
		p.watched[dir] = false
		return
	}
	p.watched[dir] = true
}

func writePayload(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
