package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

func testArtifact() Artifact {
	return Artifact{
		JobID:     "job-42",
		Source:    types.SourceUpload,
		Level:     types.LevelShort,
		Summary:   "# Summary\n\nBody.",
		CreatedAt: time.Date(2025, 1, 23, 14, 30, 22, 0, time.UTC),
	}
}

func TestLocalStorage_SaveSummary(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)

	path, err := ls.SaveSummary(testArtifact())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2025", "01", "23", "20250123_143022_job-42.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Summary\n\nBody.", string(data))
	assert.FileExists(t, filepath.Join(dir, "2025", "01", "23", "20250123_143022_job-42_meta.json"))
}

func TestLocalStorage_SaveSummaryUsesDatedDirectories(t *testing.T) {
	dir := t.TempDir()
	ls := NewLocalStorage(dir)
	at := time.Date(2024, 12, 5, 8, 4, 9, 0, time.UTC)

	path, err := ls.SaveSummary(Artifact{JobID: "a/b", Summary: "# hi", CreatedAt: at})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024", "12", "05", "20241205_080409_a_b.md"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(body))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeFilename("a/b:c"))
	assert.Len(t, sanitizeFilename(string(make([]byte, 150))), 100)
}

type flakyUploader struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyUploader) Upload(ctx context.Context, a Artifact) (string, error) {
	n := f.calls.Add(1)
	if n <= f.failures {
		return "", errors.New("backend error")
	}
	return "https://drive.google.com/file/d/x/view", nil
}

func noBackoff(ar *Archiver) {
	ar.backoff = func(int) time.Duration { return 0 }
}

func TestArchiver_RetriesRemote(t *testing.T) {
	up := &flakyUploader{failures: 2}
	ar := NewArchiver(NewLocalStorage(t.TempDir()), up, nil)
	noBackoff(ar)

	ar.Archive(context.Background(), testArtifact())
	assert.Equal(t, int32(3), up.calls.Load())
}

func TestArchiver_GivesUpAfterThreeAttempts(t *testing.T) {
	up := &flakyUploader{failures: 10}
	dir := t.TempDir()
	ar := NewArchiver(NewLocalStorage(dir), up, nil)
	noBackoff(ar)

	ar.Archive(context.Background(), testArtifact())
	assert.Equal(t, int32(3), up.calls.Load())
	assert.FileExists(t, filepath.Join(dir, "2025", "01", "23", "20250123_143022_job-42.md"))
}

func TestArchiver_NothingConfigured(t *testing.T) {
	ar := NewArchiver(nil, nil, nil)
	assert.NotPanics(t, func() { ar.Archive(context.Background(), testArtifact()) })
}

func TestTempFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "tmp")
	require.NoError(t, EnsureTempDir(dir))

	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 123), 0644))

	size, err := FileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(123), size)

	RemoveTemp(nil, path)
	assert.NoFileExists(t, path)
	assert.NotPanics(t, func() { RemoveTemp(nil, path) })
	assert.NotPanics(t, func() { RemoveTemp(nil, "") })
}
