// Package subtree watches whole directory trees and reports changes as
// latency-coalesced batches that do not say which file changed.
package subtree

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rjeczalik/notify"
	"github.com/rs/zerolog"
)

const (
	// Latency is the coalescing window: every change observed within it is
	// delivered as a single batch.
	Latency = time.Second

	rawCapacity   = 256
	maxBatchPaths = 32
)

// ErrClosed is returned by Wait once the watcher has been closed.
var ErrClosed = errors.New("subtree watcher closed")

// Batch is one coalesced notification.
type Batch struct {
	// Count is the number of underlying changes folded into the batch.
	Count int
	// Paths holds a sample of the changed paths, for diagnostics only.
	Paths []string
}

func (b *Batch) add(path string) {
	b.Count++
	if len(b.Paths) < maxBatchPaths {
		b.Paths = append(b.Paths, path)
	}
}

type Options struct {
	// Latency overrides the coalescing window. Zero means Latency.
	Latency time.Duration
	Logger  *zerolog.Logger
}

// Watcher delivers coalesced batches for a set of directory trees.
type Watcher struct {
	raw     chan notify.EventInfo
	batches chan Batch
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dirs    int
	log     zerolog.Logger
}

// New registers every directory in dirs recursively. With no directories the
// returned watcher never delivers.
func New(dirs []string, opts Options) (*Watcher, error) {
	w := &Watcher{
		raw:     make(chan notify.EventInfo, rawCapacity),
		batches: make(chan Batch),
		done:    make(chan struct{}),
		dirs:    len(dirs),
		log:     zerolog.Nop(),
	}
	if opts.Logger != nil {
		w.log = *opts.Logger
	}
	latency := opts.Latency
	if latency <= 0 {
		latency = Latency
	}

	for _, dir := range dirs {
		if err := notify.Watch(filepath.Join(dir, "..."), w.raw, notify.All); err != nil {
			notify.Stop(w.raw)
			return nil, errors.Wrapf(err, "unable to watch directory %s", dir)
		}
		w.log.Debug().Str("path", dir).Msg("Watching directory tree")
	}

	w.wg.Add(1)
	go w.coalesce(latency)
	return w, nil
}

// coalesce folds raw events into batches. The first event of a batch opens
// the window; events arriving while a finished batch waits to be taken join
// that batch.
func (w *Watcher) coalesce(latency time.Duration) {
	defer w.wg.Done()

	var (
		pending *Batch
		window  <-chan time.Time
		out     chan<- Batch
		timer   *time.Timer
	)
	for {
		var ready Batch
		if pending != nil {
			ready = *pending
		}
		select {
		case ei := <-w.raw:
			if pending == nil {
				pending = &Batch{}
				timer = time.NewTimer(latency)
				window = timer.C
			}
			pending.add(ei.Path())
		case <-window:
			window = nil
			out = w.batches
		case out <- ready:
			pending, out = nil, nil
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// Wait blocks until the next batch is available.
func (w *Watcher) Wait(ctx context.Context) (Batch, error) {
	select {
	case b := <-w.batches:
		w.log.Debug().Int("changes", b.Count).Strs("paths", b.Paths).Msg("Directory change")
		return b, nil
	case <-w.done:
		return Batch{}, ErrClosed
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	}
}

// Ready returns a finished batch if one is waiting, without blocking.
func (w *Watcher) Ready() (Batch, bool) {
	select {
	case b := <-w.batches:
		w.log.Debug().Int("changes", b.Count).Strs("paths", b.Paths).Msg("Directory change")
		return b, true
	default:
		return Batch{}, false
	}
}

// Len returns the number of watched directory trees.
func (w *Watcher) Len() int {
	return w.dirs
}

// Close stops the registrations and the coalescing goroutine.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		notify.Stop(w.raw)
		close(w.done)
		w.wg.Wait()
	})
	return nil
}
