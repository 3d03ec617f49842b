package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pollBackend is the documented degradation used when native OS file
// notification is unavailable. It scans watched directories on a fixed
// interval and synthesizes create/write/remove events from stat deltas.
type pollBackend struct {
	interval time.Duration

	mu    sync.Mutex
	dirs  map[string]bool
	seen  map[string]fileState
	first map[string]bool

	events chan rawEvent
	errors chan error
	stopCh chan struct{}
	doneCh chan struct{}
}

type fileState struct {
	modTime time.Time
	size    int64
}

func newPollBackend(interval time.Duration) *pollBackend {
	b := &pollBackend{
		interval: interval,
		dirs:     make(map[string]bool),
		seen:     make(map[string]fileState),
		first:    make(map[string]bool),
		events:   make(chan rawEvent, 64),
		errors:   make(chan error, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *pollBackend) Add(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.dirs[dir] {
		b.dirs[dir] = true
		b.first[dir] = true
	}
	return nil
}

func (b *pollBackend) Remove(dir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.dirs, dir)
	for path := range b.seen {
		if filepath.Dir(path) == dir {
			delete(b.seen, path)
		}
	}
	return nil
}

func (b *pollBackend) Events() <-chan rawEvent { return b.events }
func (b *pollBackend) Errors() <-chan error    { return b.errors }

func (b *pollBackend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return nil
}

func (b *pollBackend) run() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.scan()
		}
	}
}

func (b *pollBackend) scan() {
	b.mu.Lock()
	dirs := make([]string, 0, len(b.dirs))
	for dir := range b.dirs {
		dirs = append(dirs, dir)
	}
	b.mu.Unlock()

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		b.mu.Lock()
		initial := b.first[dir]
		b.first[dir] = false
		current := make(map[string]bool)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			info, err := entry.Info()
			if err != nil {
				continue
			}
			current[path] = true
			state := fileState{modTime: info.ModTime(), size: info.Size()}
			prev, known := b.seen[path]
			b.seen[path] = state
			if !known {
				// The very first scan seeds state silently so that
				// pre-existing files do not fire a create storm.
				if !initial {
					b.emit(rawEvent{path: path, op: opCreate})
				}
				continue
			}
			if prev != state {
				b.emit(rawEvent{path: path, op: opWrite})
			}
		}
		for path := range b.seen {
			if filepath.Dir(path) != dir {
				continue
			}
			if !current[path] {
				delete(b.seen, path)
				b.emit(rawEvent{path: path, op: opRemove})
			}
		}
		b.mu.Unlock()
	}
}

func (b *pollBackend) emit(ev rawEvent) {
	select {
	case b.events <- ev:
	default:
	}
}
