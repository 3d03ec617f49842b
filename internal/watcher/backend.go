package watcher

import (
	"github.com/fsnotify/fsnotify"
)

// rawOp is the minimal operation set the debouncer needs; both backends
// normalize to it.
type rawOp int

const (
	opCreate rawOp = iota
	opWrite
	opRemove
)

// rawEvent is an undebounced observation from a backend.
type rawEvent struct {
	path string
	op   rawOp
}

// backend is the OS notification source. The default backend wraps
// fsnotify; when the OS cannot provide native notification the watcher
// degrades to a polling backend.
type backend interface {
	// Add starts watching a directory. Directories rather than files are
	// watched so that atomic write-temp-then-rename saves are observed.
	Add(dir string) error
	Remove(dir string) error
	Events() <-chan rawEvent
	Errors() <-chan error
	Close() error
}

// fsnotifyBackend adapts fsnotify to the backend interface.
type fsnotifyBackend struct {
	fsw    *fsnotify.Watcher
	events chan rawEvent
	errors chan error
	done   chan struct{}
}

func newFsnotifyBackend() (*fsnotifyBackend, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	b := &fsnotifyBackend{
		fsw:    fsw,
		events: make(chan rawEvent, 64),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
	go b.run()
	return b, nil
}

func (b *fsnotifyBackend) run() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.fsw.Events:
			if !ok {
				close(b.events)
				return
			}
			var op rawOp
			switch {
			case ev.Op.Has(fsnotify.Create):
				op = opCreate
			case ev.Op.Has(fsnotify.Write):
				op = opWrite
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				op = opRemove
			default:
				// Chmod and friends carry no content change.
				continue
			}
			select {
			case b.events <- rawEvent{path: ev.Name, op: op}:
			default:
				// Dropping is safe: the debouncer coalesces bursts per
				// path and re-stats on flush.
			}
		case err, ok := <-b.fsw.Errors:
			if !ok {
				return
			}
			select {
			case b.errors <- err:
			default:
			}
		}
	}
}

func (b *fsnotifyBackend) Add(dir string) error    { return b.fsw.Add(dir) }
func (b *fsnotifyBackend) Remove(dir string) error { return b.fsw.Remove(dir) }

func (b *fsnotifyBackend) Events() <-chan rawEvent { return b.events }
func (b *fsnotifyBackend) Errors() <-chan error    { return b.errors }

func (b *fsnotifyBackend) Close() error {
	err := b.fsw.Close()
	<-b.done
	return err
}
