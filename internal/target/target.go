// Package target sorts watch paths into directories and regular files.
package target

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type Kind int

const (
	Directory Kind = iota
	File
)

func (k Kind) String() string {
	if k == Directory {
		return "directory"
	}
	return "file"
}

// Target is a watch path and what it refers to.
type Target struct {
	Path string
	Kind Kind
}

// Set is the outcome of Classify, each list in argument order.
type Set struct {
	Dirs  []string
	Files []string
}

func (s Set) Empty() bool {
	return len(s.Dirs) == 0 && len(s.Files) == 0
}

// Targets returns every classified path as a Target, directories first.
func (s Set) Targets() []Target {
	out := make([]Target, 0, len(s.Dirs)+len(s.Files))
	for _, p := range s.Dirs {
		out = append(out, Target{Path: p, Kind: Directory})
	}
	for _, p := range s.Files {
		out = append(out, Target{Path: p, Kind: File})
	}
	return out
}

// Classify stats every path, following symbolic links, and partitions them.
// Paths are made absolute and duplicates dropped. Anything that is neither a
// directory nor a regular file is skipped with a warning; a path that cannot
// be stat'ed is an error.
func Classify(paths []string, logger *zerolog.Logger) (Set, error) {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}

	var set Set
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return Set{}, errors.Wrapf(err, "cannot resolve %s", path)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		info, err := os.Stat(abs)
		if err != nil {
			return Set{}, errors.Wrapf(err, "cannot get file info: %s", path)
		}
		switch mode := info.Mode(); {
		case mode.IsDir():
			set.Dirs = append(set.Dirs, abs)
		case mode.IsRegular():
			set.Files = append(set.Files, abs)
		default:
			log.Warn().Str("path", path).Stringer("mode", mode.Type()).Msg("Unsupported file type, skipping")
		}
	}
	return set, nil
}
