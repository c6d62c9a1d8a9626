package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// EnsureTempDir creates the temp directory if it doesn't exist
func EnsureTempDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create temp dir %s: %w", dir, err)
	}
	return nil
}

// FileSize returns the size of path in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RemoveTemp deletes path. Missing files are fine; other failures are
// logged and swallowed.
func RemoveTemp(logger *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("failed to remove temp file", "path", path, "error", err)
	}
}
