// Package dispatch runs the reaction command, one invocation at a time.
package dispatch

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bitfield/script"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// TriggerFileEnv names the variable carrying the triggering file path.
	TriggerFileEnv = "WATCH_TRIGGER_FILE"
	// LegacyTriggerFileEnv is the name older scripts read.
	LegacyTriggerFileEnv = "FSFILE"

	defaultShell = "/bin/sh"
)

// Trigger is one accepted change. SourcePath is empty when the changed file
// is unknown, as with directory tree notifications.
type Trigger struct {
	SourcePath string
}

// Result describes a finished reaction.
type Result struct {
	ExitStatus int
	Duration   time.Duration
}

type Options struct {
	// Shell is the interpreter run with -c. Defaults to /bin/sh.
	Shell string
	// Legacy also exports the path as FSFILE.
	Legacy bool
	Stdout io.Writer
	Stderr io.Writer
	// Environ supplies the inherited environment. Defaults to os.Environ.
	Environ func() []string
	Logger  *zerolog.Logger
}

// Dispatcher runs a shell command line for each trigger and waits for it.
type Dispatcher struct {
	command string
	shell   string
	legacy  bool
	stdout  io.Writer
	stderr  io.Writer
	environ func() []string
	log     zerolog.Logger

	// slot is held for the lifetime of each child process.
	slot sync.Mutex
}

func New(command string, opts Options) *Dispatcher {
	d := &Dispatcher{
		command: command,
		shell:   opts.Shell,
		legacy:  opts.Legacy,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
		environ: opts.Environ,
		log:     zerolog.Nop(),
	}
	if d.shell == "" {
		d.shell = defaultShell
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.stderr == nil {
		d.stderr = os.Stderr
	}
	if d.environ == nil {
		d.environ = os.Environ
	}
	if opts.Logger != nil {
		d.log = *opts.Logger
	}
	return d
}

// Command returns the reaction command line.
func (d *Dispatcher) Command() string {
	return d.command
}

// Fire runs the command for t and blocks until it exits. A non-zero exit
// status is reported in the result, not as an error; an error means the
// interpreter could not be started at all.
func (d *Dispatcher) Fire(t Trigger) (Result, error) {
	d.slot.Lock()
	defer d.slot.Unlock()

	if t.SourcePath != "" {
		d.log.Info().Str("path", t.SourcePath).Msg("Modified")
	} else {
		d.log.Info().Msg("Modified")
	}
	d.log.Info().Str("command", d.command).Msg("Executing")

	start := time.Now()
	p := script.NewPipe().
		WithEnv(d.env(t)).
		WithStdout(d.stdout).
		WithStderr(d.stderr).
		Exec(d.shell + " -c " + Escape(d.command))
	_, _ = p.Stdout()
	res := Result{Duration: time.Since(start)}

	if err := p.Error(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return res, errors.Wrap(err, "couldn't fork")
		}
		res.ExitStatus = exitErr.ExitCode()
		d.log.Warn().Int("status", res.ExitStatus).Dur("took", res.Duration).Msg("Command failed")
		return res, nil
	}
	d.log.Debug().Dur("took", res.Duration).Msg("Command finished")
	return res, nil
}

// env builds the child environment: the inherited one without any trigger
// variables, plus the trigger path when there is one.
func (d *Dispatcher) env(t Trigger) []string {
	inherited := d.environ()
	env := make([]string, 0, len(inherited)+2)
	for _, kv := range inherited {
		if strings.HasPrefix(kv, TriggerFileEnv+"=") ||
			(d.legacy && strings.HasPrefix(kv, LegacyTriggerFileEnv+"=")) {
			continue
		}
		env = append(env, kv)
	}
	if t.SourcePath != "" {
		env = append(env, TriggerFileEnv+"="+t.SourcePath)
		if d.legacy {
			env = append(env, LegacyTriggerFileEnv+"="+t.SourcePath)
		}
	}
	return env
}

// Escape single-quotes arg for a POSIX shell.
func Escape(arg string) string {
	arg = strings.ReplaceAll(arg, "'", "'\\''")
	return fmt.Sprintf("'%s'", arg)
}
