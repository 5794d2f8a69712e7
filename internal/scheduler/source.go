package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fswatch/internal/dispatch"
	"fswatch/internal/filewatch"
	"fswatch/internal/subtree"
)

// PollTimeout bounds each wait on the file event queue.
const PollTimeout = 500 * time.Millisecond

// Delivery is a trigger plus the follow-up work its source needs once the
// reaction has finished.
type Delivery struct {
	Trigger dispatch.Trigger
	Settle  func()
}

// Source delivers batches of triggers.
type Source interface {
	// Next returns the next batch, which may be empty.
	Next(ctx context.Context) ([]Delivery, error)
	Close() error
}

// Drainer is a Source whose Next blocks, which can also hand over a ready
// batch without blocking.
type Drainer interface {
	Source
	Drain() []Delivery
}

// FileSource adapts a filewatch.Watcher: each Next is one bounded poll.
type FileSource struct {
	Watcher *filewatch.Watcher
	Timeout time.Duration
	// RetryLapsed re-registers lapsed files before every poll.
	RetryLapsed bool
	Logger      *zerolog.Logger
}

func (s *FileSource) Next(ctx context.Context) ([]Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.RetryLapsed {
		if n := s.Watcher.RetryLapsed(); n > 0 && s.Logger != nil {
			s.Logger.Info().Int("files", n).Msg("Resumed watching")
		}
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = PollTimeout
	}
	events, err := s.Watcher.Poll(timeout)
	if err != nil {
		return nil, err
	}

	batch := make([]Delivery, 0, len(events))
	for _, ev := range events {
		ev := ev
		d := Delivery{Trigger: dispatch.Trigger{SourcePath: ev.Path}}
		if ev.Replaced() {
			d.Settle = func() {
				if !s.Watcher.Recover(ev) && s.Logger != nil {
					s.Logger.Warn().Str("path", ev.Path).Msg("File is gone, watch lapsed")
				}
			}
		}
		batch = append(batch, d)
	}
	return batch, nil
}

func (s *FileSource) Close() error {
	return s.Watcher.Close()
}

// SubtreeSource adapts a subtree.Watcher: one trigger without a path per
// coalesced batch.
type SubtreeSource struct {
	Watcher *subtree.Watcher
}

func (s *SubtreeSource) Next(ctx context.Context) ([]Delivery, error) {
	if _, err := s.Watcher.Wait(ctx); err != nil {
		return nil, err
	}
	return []Delivery{{}}, nil
}

func (s *SubtreeSource) Drain() []Delivery {
	if _, ok := s.Watcher.Ready(); ok {
		return []Delivery{{}}
	}
	return nil
}

func (s *SubtreeSource) Close() error {
	return s.Watcher.Close()
}
