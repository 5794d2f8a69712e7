package target

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	sub := filepath.Join(dir, "pkg")
	require.NoError(t, os.Mkdir(sub, 0o755))

	set, err := Classify([]string{file, sub, dir, file}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{sub, dir}, set.Dirs)
	assert.Equal(t, []string{file}, set.Files)
	assert.False(t, set.Empty())
	assert.Equal(t, []Target{
		{Path: sub, Kind: Directory},
		{Path: dir, Kind: Directory},
		{Path: file, Kind: File},
	}, set.Targets())
}

func TestClassifyRelative(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	set, err := Classify([]string{"a.txt", "./a.txt"}, nil)
	require.NoError(t, err)
	require.Len(t, set.Files, 1)
	assert.True(t, filepath.IsAbs(set.Files[0]))
	assert.Equal(t, "a.txt", filepath.Base(set.Files[0]))
}

func TestClassifySymlinkFollowsTarget(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "real")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(file, link))

	set, err := Classify([]string{link}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{link}, set.Files)
}

func TestClassifyMissing(t *testing.T) {
	_, err := Classify([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot get file info")
}

func TestEmptySet(t *testing.T) {
	set, err := Classify(nil, nil)
	require.NoError(t, err)
	assert.True(t, set.Empty())
	assert.Empty(t, set.Targets())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "directory", Directory.String())
	assert.Equal(t, "file", File.String())
}
