package cleanup

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (c *countingSweeper) Sweep() int {
	c.calls.Add(1)
	return 1
}

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	ts := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestRunOnce_RemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "old.m4a")
	fresh := filepath.Join(dir, "new.m4a")
	nested := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(nested, 0755))
	staleNested := filepath.Join(nested, "old.webm")

	writeAged(t, stale, 3*time.Hour)
	writeAged(t, staleNested, 5*time.Hour)
	writeAged(t, fresh, time.Minute)

	sw := &countingSweeper{}
	s := NewScheduler(dir, time.Hour, 2*time.Hour, nil, sw)

	assert.Equal(t, 2, s.RunOnce())
	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, staleNested)
	assert.FileExists(t, fresh)
	assert.DirExists(t, nested)
	assert.Equal(t, int32(1), sw.calls.Load())
}

func TestRunOnce_MissingDirIsHarmless(t *testing.T) {
	s := NewScheduler(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Hour, nil)
	assert.Equal(t, 0, s.RunOnce())
}

func TestStartStop(t *testing.T) {
	sw := &countingSweeper{}
	s := NewScheduler(t.TempDir(), 5*time.Millisecond, time.Hour, nil, sw)

	s.Start()
	assert.Eventually(t, func() bool { return sw.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}
