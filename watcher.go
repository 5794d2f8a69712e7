package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fswatch/internal/dispatch"
	"fswatch/internal/filewatch"
	"fswatch/internal/scheduler"
	"fswatch/internal/subtree"
	"fswatch/internal/target"
)

const usage = `Usage:

fswatch /path/to/file /path/to/dir "echo something changed"
fswatch /path/to/file /path/to/dir -- echo "something changed"

The command runs through /bin/sh once per change. For file changes,
WATCH_TRIGGER_FILE holds the absolute path of the file that changed.`

type usageError struct {
	error
}

type options struct {
	verbose     bool
	retryLapsed bool
	legacyEnv   bool
}

// parseArgs splits positional arguments into watch paths and the command.
// dash is the index of the first argument after "--", or -1: without it the
// last argument is the command line.
func parseArgs(args []string, dash int) ([]string, string, error) {
	var paths, exec []string
	if dash >= 0 {
		paths, exec = args[:dash], args[dash:]
	} else if len(args) > 0 {
		paths, exec = args[:len(args)-1], args[len(args)-1:]
	}
	if len(paths) < 1 {
		return nil, "", usageError{errors.New("No paths to watch")}
	}
	if len(exec) < 1 || strings.TrimSpace(exec[0]) == "" {
		return nil, "", usageError{errors.New("No action to perform")}
	}
	if dash < 0 {
		return paths, exec[0], nil
	}
	return paths, parseScript(exec), nil
}

func parseScript(args []string) string {
	exec := []string{args[0]}
	for _, arg := range args[1:] {
		exec = append(exec, dispatch.Escape(arg))
	}
	return strings.Join(exec, " ")
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func newRootCommand() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:           "fswatch <path>... <command>",
		Short:         "Run a command whenever a file or directory changes",
		Long:          usage,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args, cmd.ArgsLenAtDash(), opts)
		},
	}
	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log every event and reaction")
	flags.BoolVar(&opts.retryLapsed, "retry-lapsed", false, "keep trying to re-watch files that were deleted")
	flags.BoolVar(&opts.legacyEnv, "legacy-env", false, "also export the changed file as FSFILE")
	return cmd
}

func run(ctx context.Context, args []string, dash int, opts options) error {
	paths, exec, err := parseArgs(args, dash)
	if err != nil {
		return err
	}

	logger := newLogger(opts.verbose)

	set, err := target.Classify(paths, &logger)
	if err != nil {
		return err
	}

	var cfg scheduler.Config
	if len(set.Files) > 0 {
		fw, err := filewatch.New(set.Files, filewatch.Options{Logger: &logger})
		if err != nil {
			return err
		}
		cfg.Files = &scheduler.FileSource{Watcher: fw, RetryLapsed: opts.retryLapsed, Logger: &logger}
	}
	if len(set.Dirs) > 0 {
		sw, err := subtree.New(set.Dirs, subtree.Options{Logger: &logger})
		if err != nil {
			if cfg.Files == nil {
				return err
			}
			logger.Error().Err(err).Msg("Directory watching disabled")
		} else {
			cfg.Dirs = &scheduler.SubtreeSource{Watcher: sw}
		}
	}
	cfg.Dispatcher = dispatch.New(exec, dispatch.Options{Legacy: opts.legacyEnv, Logger: &logger})
	cfg.Logger = &logger

	logger.Info().
		Int("dirs", len(set.Dirs)).
		Int("files", len(set.Files)).
		Str("command", exec).
		Msg("Watching")

	if ctx == nil {
		ctx = context.Background()
	}
	return scheduler.New(cfg).Run(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		var uerr usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n\n%s\n", err, usage)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
