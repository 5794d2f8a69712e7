// Package filewatch watches individual regular files through the host's
// per-file event queue and keeps each watch alive across delete/replace
// cycles.
package filewatch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrClosed is returned by Poll once the event queue has been shut down.
var ErrClosed = errors.New("event queue closed")

// Handle is the watch state of one file. A handle holds at most one live
// registration; Generation increases every time that registration is
// replaced.
type Handle struct {
	ID         int
	Path       string
	Generation uint64
	Live       bool

	size  int64
	nlink uint64
}

// Event is one merged observation for a handle within a poll batch.
type Event struct {
	Handle     int
	Path       string
	Generation uint64
	Kinds      Kind
}

// Replaced reports whether the event means the registration no longer
// refers to the file at Path, so Recover should follow.
func (e Event) Replaced() bool {
	return e.Kinds.Has(replaced)
}

type Options struct {
	Logger *zerolog.Logger
}

// Watcher owns the event queue and every file registration on it. It is not
// safe for concurrent use.
type Watcher struct {
	fsw     *fsnotify.Watcher
	handles []*Handle
	byPath  map[string]int
	log     zerolog.Logger
}

// New creates the event queue and registers every file in files. Paths are
// expected to be absolute; duplicates share a handle.
func New(files []string, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create event queue")
	}

	w := &Watcher{
		fsw:    fsw,
		byPath: make(map[string]int, len(files)),
		log:    zerolog.Nop(),
	}
	if opts.Logger != nil {
		w.log = *opts.Logger
	}

	for _, path := range files {
		path = filepath.Clean(path)
		if _, ok := w.byPath[path]; ok {
			continue
		}
		h := &Handle{ID: len(w.handles), Path: path}
		if err := w.open(h); err != nil {
			fsw.Close()
			return nil, errors.Wrapf(err, "the file %s could not be opened for monitoring", path)
		}
		w.handles = append(w.handles, h)
		w.byPath[path] = h.ID
		w.log.Debug().Str("path", path).Int("handle", h.ID).Msg("Watching file")
	}

	return w, nil
}

func (w *Watcher) open(h *Handle) error {
	if err := w.fsw.Add(h.Path); err != nil {
		return err
	}
	h.Live = true
	h.size, h.nlink = observe(h.Path)
	return nil
}

func (w *Watcher) close(h *Handle) {
	if !h.Live {
		return
	}
	// The backend may already have dropped a registration whose file is gone.
	_ = w.fsw.Remove(h.Path)
	h.Live = false
}

// Poll waits up to timeout for the first event, then collects everything
// else already queued. A timeout yields an empty batch and no state change.
func (w *Watcher) Poll(timeout time.Duration) ([]Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var b batch
	select {
	case ev, ok := <-w.fsw.Events:
		if !ok {
			return nil, ErrClosed
		}
		w.collect(&b, ev)
	case err, ok := <-w.fsw.Errors:
		if !ok {
			return nil, ErrClosed
		}
		return nil, errors.Wrap(err, "event queue error")
	case <-timer.C:
		return nil, nil
	}

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil, ErrClosed
			}
			w.collect(&b, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil, ErrClosed
			}
			return nil, errors.Wrap(err, "event queue error")
		default:
			return b.events, nil
		}
	}
}

func (w *Watcher) collect(b *batch, raw fsnotify.Event) {
	id, ok := w.byPath[filepath.Clean(raw.Name)]
	if !ok {
		return
	}
	h := w.handles[id]
	if !h.Live {
		return
	}

	var kinds Kind
	if raw.Has(fsnotify.Write) {
		kinds |= Write
		if info, err := os.Stat(h.Path); err == nil {
			if info.Size() > h.size {
				kinds |= Extend
			}
			h.size = info.Size()
		}
	}
	if raw.Has(fsnotify.Chmod) {
		kinds |= Attrib
		if n, ok := linkCount(h.Path); ok && n != h.nlink {
			kinds |= Link
			h.nlink = n
		}
	}
	if raw.Has(fsnotify.Remove) {
		kinds |= Delete
	}
	if raw.Has(fsnotify.Rename) {
		kinds |= Rename
	}
	if kinds == 0 {
		return
	}

	b.add(Event{Handle: h.ID, Path: h.Path, Generation: h.Generation, Kinds: kinds})
}

// Recover re-registers the path of a handle whose file was deleted, renamed
// or revoked. It reports whether the handle has a live registration
// afterwards. Events from an older generation are ignored.
func (w *Watcher) Recover(ev Event) bool {
	if ev.Handle < 0 || ev.Handle >= len(w.handles) {
		return false
	}
	h := w.handles[ev.Handle]
	if !ev.Replaced() || ev.Generation != h.Generation {
		return h.Live
	}
	w.close(h)
	return w.reopen(h)
}

// RetryLapsed attempts to re-register every handle that lost its file, and
// returns how many came back.
func (w *Watcher) RetryLapsed() int {
	var n int
	for _, h := range w.handles {
		if !h.Live && w.reopen(h) {
			n++
		}
	}
	return n
}

func (w *Watcher) reopen(h *Handle) bool {
	if err := w.open(h); err != nil {
		w.log.Debug().Err(err).Str("path", h.Path).Msg("Watch lapsed")
		return false
	}
	h.Generation++
	w.log.Debug().Str("path", h.Path).Uint64("generation", h.Generation).Msg("Watch reopened")
	return true
}

// Handles returns a snapshot of every handle, indexed by ID.
func (w *Watcher) Handles() []Handle {
	out := make([]Handle, len(w.handles))
	for i, h := range w.handles {
		out[i] = *h
	}
	return out
}

// Len returns the number of watched files.
func (w *Watcher) Len() int {
	return len(w.handles)
}

// Close releases every registration along with the event queue.
func (w *Watcher) Close() error {
	for _, h := range w.handles {
		h.Live = false
	}
	return w.fsw.Close()
}

type batch struct {
	events []Event
	index  map[int]int
}

// add merges ev into an earlier event for the same handle and generation,
// the way a kernel queue reports one entry per descriptor.
func (b *batch) add(ev Event) {
	if b.index == nil {
		b.index = make(map[int]int)
	}
	if i, ok := b.index[ev.Handle]; ok && b.events[i].Generation == ev.Generation {
		b.events[i].Kinds |= ev.Kinds
		return
	}
	b.index[ev.Handle] = len(b.events)
	b.events = append(b.events, ev)
}

func observe(path string) (int64, uint64) {
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	nlink, _ := linkCount(path)
	return size, nlink
}
