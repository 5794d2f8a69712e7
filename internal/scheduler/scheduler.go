// Package scheduler drives the watch sources and hands every trigger to the
// dispatcher, one reaction at a time.
package scheduler

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"fswatch/internal/dispatch"
)

// Mode is fixed when the loop is built.
type Mode int

const (
	// Idle: nothing to watch.
	Idle Mode = iota
	// PollMode wakes at least every poll timeout to service file watches,
	// and picks up ready directory batches on the way.
	PollMode
	// BlockingMode waits on directory notifications only.
	BlockingMode
)

func (m Mode) String() string {
	switch m {
	case PollMode:
		return "poll"
	case BlockingMode:
		return "blocking"
	default:
		return "idle"
	}
}

// Firer runs the reaction for one trigger.
type Firer interface {
	Fire(dispatch.Trigger) (dispatch.Result, error)
}

type Config struct {
	// Files is the poll-based source, nil when no files are watched.
	Files Source
	// Dirs is the push-based source, nil when no directories are watched.
	Dirs       Drainer
	Dispatcher Firer
	Logger     *zerolog.Logger
}

type Loop struct {
	mode  Mode
	files Source
	dirs  Drainer
	fire  Firer
	log   zerolog.Logger
}

func New(cfg Config) *Loop {
	l := &Loop{
		files: cfg.Files,
		dirs:  cfg.Dirs,
		fire:  cfg.Dispatcher,
		log:   zerolog.Nop(),
	}
	if cfg.Logger != nil {
		l.log = *cfg.Logger
	}
	switch {
	case l.files != nil:
		l.mode = PollMode
	case l.dirs != nil:
		l.mode = BlockingMode
	default:
		l.mode = Idle
	}
	return l
}

func (l *Loop) Mode() Mode {
	return l.mode
}

// Run services the sources until a fatal error occurs or ctx is done. The
// sources are closed before it returns.
func (l *Loop) Run(ctx context.Context) error {
	defer l.close()

	l.log.Debug().Stringer("mode", l.mode).Msg("Starting scheduler")
	switch l.mode {
	case PollMode:
		return l.poll(ctx)
	case BlockingMode:
		return l.block(ctx)
	default:
		l.log.Warn().Msg("Nothing to watch")
		return nil
	}
}

func (l *Loop) poll(ctx context.Context) error {
	for {
		batch, err := l.files.Next(ctx)
		if err != nil {
			return errors.Wrap(err, "file watch failed")
		}
		if err := l.dispatch(batch); err != nil {
			return err
		}
		if l.dirs != nil {
			if err := l.dispatch(l.dirs.Drain()); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) block(ctx context.Context) error {
	for {
		batch, err := l.dirs.Next(ctx)
		if err != nil {
			return errors.Wrap(err, "directory watch failed")
		}
		if err := l.dispatch(batch); err != nil {
			return err
		}
	}
}

// dispatch fires the batch in order, settling each delivery after its
// reaction has exited.
func (l *Loop) dispatch(batch []Delivery) error {
	for _, d := range batch {
		if _, err := l.fire.Fire(d.Trigger); err != nil {
			return err
		}
		if d.Settle != nil {
			d.Settle()
		}
	}
	return nil
}

func (l *Loop) close() {
	if l.files != nil {
		if err := l.files.Close(); err != nil {
			l.log.Debug().Err(err).Msg("Closing file watches")
		}
	}
	if l.dirs != nil {
		if err := l.dirs.Close(); err != nil {
			l.log.Debug().Err(err).Msg("Closing directory watches")
		}
	}
}
