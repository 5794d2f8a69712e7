package subtree

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLatency = 200 * time.Millisecond

func newWatcher(t *testing.T, dirs ...string) *Watcher {
	t.Helper()
	w, err := New(dirs, Options{Latency: testLatency})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func waitBatch(t *testing.T, w *Watcher, timeout time.Duration) (Batch, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.Wait(ctx)
}

func TestCoalescesBurstIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, dir)

	// create + write + close of one file, plus a second file, inside the window
	f, err := os.Create(filepath.Join(dir, "new.txt"))
	require.NoError(t, err)
	_, err = f.WriteString("changed")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	b, err := waitBatch(t, w, 5*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Count, 2)
	assert.NotEmpty(t, b.Paths)

	_, err = waitBatch(t, w, 3*testLatency)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNestedChange(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	w := newWatcher(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(nested, "deep.txt"), []byte("x"), 0o644))

	b, err := waitBatch(t, w, 5*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, b.Count, 1)
}

func TestReadyDoesNotBlock(t *testing.T) {
	dir := t.TempDir()
	w := newWatcher(t, dir)

	_, ok := w.Ready()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "x"), []byte("x"), 0o644))
	assert.Eventually(t, func() bool {
		_, ok := w.Ready()
		return ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEmptyNeverDelivers(t *testing.T) {
	w := newWatcher(t)
	assert.Equal(t, 0, w.Len())

	_, err := waitBatch(t, w, 2*testLatency)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMissingDirectory(t *testing.T) {
	_, err := New([]string{filepath.Join(t.TempDir(), "missing")}, Options{})
	assert.Error(t, err)
}

func TestWaitAfterClose(t *testing.T) {
	w, err := New([]string{t.TempDir()}, Options{Latency: testLatency})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Wait(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBatchCapsPaths(t *testing.T) {
	var b Batch
	for i := 0; i < maxBatchPaths+10; i++ {
		b.add("p")
	}
	assert.Equal(t, maxBatchPaths+10, b.Count)
	assert.Len(t, b.Paths, maxBatchPaths)
}
