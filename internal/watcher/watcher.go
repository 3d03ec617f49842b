// Package watcher observes client configuration files for changes.
//
// It debounces bursts of OS events into single ChangeEvents, folds the
// delete+recreate pair produced by atomic save patterns into one modified
// event, and classifies every change as internal (a save performed through
// the config store) or external (anything else touching the file).
// Internal changes are suppressed from the external stream so the engine
// never reacts to its own writes.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/mcpscope/mcpscope/internal/checksum"
	"github.com/mcpscope/mcpscope/internal/event"
	"github.com/mcpscope/mcpscope/internal/logging"
	"github.com/mcpscope/mcpscope/pkg/types"
)

const (
	defaultDebounce     = 400 * time.Millisecond
	defaultPollInterval = time.Second
	defaultBuffer       = 64

	// expectTTL bounds how long a registered self-write hash can linger
	// unmatched before it stops masking external edits.
	expectTTL = 30 * time.Second
)

type expectation struct {
	hash string
	at   time.Time
}

type pendingChange struct {
	timer     *time.Timer
	sawDelete bool
}

// Watcher turns raw backend events into classified ChangeEvents.
type Watcher struct {
	backend backend
	bus     *event.Bus
	log     zerolog.Logger

	debounce time.Duration
	polling  bool

	mu         sync.Mutex
	watched    map[string]bool
	dirRefs    map[string]int
	expected   map[string][]expectation
	pending    map[string]*pendingChange
	exists     map[string]bool
	wasDeleted map[string]bool
	stopped    bool

	events chan types.ChangeEvent
	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the debounce window (300-500ms in production;
// tests shrink it).
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithBackend injects a notification backend, for tests.
func WithBackend(b backend) Option {
	return func(w *Watcher) { w.backend = b }
}

// New creates a Watcher publishing external changes on bus. Native OS
// notification is used where available; if fsnotify cannot be initialized
// the watcher degrades to polling.
func New(bus *event.Bus, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		bus:        bus,
		log:        logging.ForComponent("watcher"),
		debounce:   defaultDebounce,
		watched:    make(map[string]bool),
		dirRefs:    make(map[string]int),
		expected:   make(map[string][]expectation),
		pending:    make(map[string]*pendingChange),
		exists:     make(map[string]bool),
		wasDeleted: make(map[string]bool),
		events:     make(chan types.ChangeEvent, defaultBuffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.backend == nil {
		b, err := newFsnotifyBackend()
		if err != nil {
			w.log.Warn().Err(err).Msg("native file notification unavailable, falling back to polling")
			w.backend = newPollBackend(defaultPollInterval)
			w.polling = true
		} else {
			w.backend = b
		}
	}

	go w.run()
	return w, nil
}

// Polling reports whether the watcher is running in degraded polling mode.
func (w *Watcher) Polling() bool {
	return w.polling
}

// Events is the stream of external ChangeEvents. The channel is bounded;
// if a consumer stalls, events are dropped and logged rather than
// blocking the watch loop.
func (w *Watcher) Events() <-chan types.ChangeEvent {
	return w.events
}

// Watch starts observing the given file paths. The parent directory of
// each path is registered with the backend so rename-based saves and
// recreations are seen.
func (w *Watcher) Watch(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if w.watched[path] {
			continue
		}
		dir := filepath.Dir(path)
		if w.dirRefs[dir] == 0 {
			if err := w.addDir(dir); err != nil {
				return err
			}
		}
		w.dirRefs[dir]++
		w.watched[path] = true
		_, err := os.Stat(path)
		w.exists[path] = err == nil
	}
	return nil
}

// addDir registers a directory with the backend, creating it first if it
// does not exist yet (a scope file's directory may not exist until the
// first save).
func (w *Watcher) addDir(dir string) error {
	if err := w.backend.Add(dir); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return w.backend.Add(dir)
}

// Unwatch stops observing a path.
func (w *Watcher) Unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.watched[path] {
		return
	}
	delete(w.watched, path)
	delete(w.exists, path)
	delete(w.wasDeleted, path)
	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
	dir := filepath.Dir(path)
	w.dirRefs[dir]--
	if w.dirRefs[dir] <= 0 {
		delete(w.dirRefs, dir)
		_ = w.backend.Remove(dir)
	}
}

// Expect registers the content hash an imminent internal write will
// produce for path. The next observed change matching the hash is
// classified internal and consumes the expectation, so a later identical
// external edit is still reported.
func (w *Watcher) Expect(path, hash string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	kept := w.expected[path][:0]
	for _, e := range w.expected[path] {
		if now.Sub(e.at) < expectTTL {
			kept = append(kept, e)
		}
	}
	w.expected[path] = append(kept, expectation{hash: hash, at: now})
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.backend.Events():
			if !ok {
				return
			}
			w.observe(ev)
		case err, ok := <-w.backend.Errors():
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watch backend error")
		}
	}
}

// observe folds a raw event into the per-path debounce window.
func (w *Watcher) observe(ev rawEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || !w.watched[ev.path] {
		return
	}

	p, ok := w.pending[ev.path]
	if !ok {
		path := ev.path
		p = &pendingChange{}
		p.timer = time.AfterFunc(w.debounce, func() { w.flush(path) })
		w.pending[ev.path] = p
	} else {
		p.timer.Reset(w.debounce)
	}
	if ev.op == opRemove {
		p.sawDelete = true
	}
}

// flush resolves a settled debounce window into one ChangeEvent.
func (w *Watcher) flush(path string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)

	existedBefore := w.exists[path]
	_, statErr := os.Stat(path)
	nowExists := statErr == nil
	w.exists[path] = nowExists

	var kind types.ChangeKind
	switch {
	case !nowExists:
		kind = types.ChangeDeleted
		w.wasDeleted[path] = true
	case existedBefore:
		// Covers plain writes and the delete+recreate pair of an atomic
		// save landing inside one window.
		kind = types.ChangeModified
	case w.wasDeleted[path]:
		kind = types.ChangeRecreated
		delete(w.wasDeleted, path)
	default:
		kind = types.ChangeModified
	}

	var hash string
	if nowExists {
		h, err := checksum.File(path)
		if err != nil {
			w.mu.Unlock()
			w.log.Warn().Err(err).Str("path", path).Msg("hash after change failed")
			return
		}
		hash = h
	}

	origin := types.OriginExternal
	if nowExists {
		if w.consumeExpectation(path, hash) {
			origin = types.OriginInternal
		}
	}
	w.mu.Unlock()

	ev := types.ChangeEvent{
		Path:        path,
		Kind:        kind,
		Timestamp:   time.Now().UTC(),
		Origin:      origin,
		ContentHash: hash,
	}

	if origin == types.OriginInternal {
		w.log.Debug().Str("path", path).Msg("self-write observed, suppressed")
		return
	}

	w.log.Debug().Str("path", path).Str("kind", string(kind)).Msg("external change")
	select {
	case w.events <- ev:
	default:
		w.log.Warn().Str("path", path).Msg("change event dropped: channel full")
	}
	if w.bus != nil {
		w.bus.Publish(event.Event{Type: event.ConfigChanged, Data: event.ConfigChangedData{Change: ev}})
	}

	if kind == types.ChangeDeleted {
		go w.rearm(filepath.Dir(path))
	}
}

// consumeExpectation pops the first outstanding expectation matching hash.
// Caller holds w.mu.
func (w *Watcher) consumeExpectation(path, hash string) bool {
	now := time.Now()
	list := w.expected[path]
	for i, e := range list {
		if now.Sub(e.at) >= expectTTL {
			continue
		}
		if e.hash == hash {
			w.expected[path] = append(list[:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// rearm re-registers a directory whose content vanished; editors and
// installers sometimes replace the whole directory, which silently drops
// the OS watch.
func (w *Watcher) rearm(dir string) {
	w.mu.Lock()
	if w.stopped || w.dirRefs[dir] == 0 {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second
	err := backoff.Retry(func() error {
		return w.backend.Add(dir)
	}, policy)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", dir).Msg("could not re-arm watch")
	}
}

// Stop shuts the watcher down and closes the event stream.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for _, p := range w.pending {
		p.timer.Stop()
	}
	w.pending = make(map[string]*pendingChange)
	w.mu.Unlock()

	close(w.stopCh)
	err := w.backend.Close()
	<-w.doneCh
	close(w.events)
	return err
}
