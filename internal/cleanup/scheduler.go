package cleanup

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sweepable is periodically pruned alongside the temp directory.
type Sweepable interface {
	Sweep() int
}

// Scheduler periodically removes stale temp files and prunes idle state
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	extra    []Sweepable
	logger   *slog.Logger
	now      func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, interval, maxAge time.Duration, logger *slog.Logger, extra ...Sweepable) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if maxAge <= 0 {
		maxAge = 2 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tempDir:  tempDir,
		interval: interval,
		maxAge:   maxAge,
		extra:    extra,
		logger:   logger.With("component", "cleanup"),
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval.
func (s *Scheduler) Start() {
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce()
			case <-s.stopChan:
				return
			}
		}
	}()

	s.logger.Info("cleanup scheduler started", "interval", s.interval, "maxAge", s.maxAge)
}

// Stop stops the scheduler and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info("cleanup scheduler stopped")
	})
}

// RunOnce performs a single sweep and returns the number of files removed.
func (s *Scheduler) RunOnce() int {
	removed := s.cleanOldFiles()
	for _, sw := range s.extra {
		if n := sw.Sweep(); n > 0 {
			s.logger.Debug("pruned idle entries", "count", n)
		}
	}
	return removed
}

// cleanOldFiles removes files older than maxAge from the temp directory
func (s *Scheduler) cleanOldFiles() int {
	now := s.now()

	var deletedCount int
	var deletedSize int64

	err := filepath.WalkDir(s.tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn("failed to delete old file", "path", path, "error", err)
			return nil
		}
		deletedCount++
		deletedSize += info.Size()
		s.logger.Debug("deleted old temp file", "file", filepath.Base(path), "age", age.Round(time.Minute))
		return nil
	})
	if err != nil {
		s.logger.Error("error during cleanup", "error", err)
	}

	if deletedCount > 0 {
		s.logger.Info("cleanup complete", "files", deletedCount, "freedMB", float64(deletedSize)/(1024*1024))
	}
	return deletedCount
}
