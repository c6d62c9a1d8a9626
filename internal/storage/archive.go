package storage

import (
	"context"
	"log/slog"
	"time"
)

// RemoteUploader pushes an artifact to remote storage and returns its URL.
type RemoteUploader interface {
	Upload(ctx context.Context, a Artifact) (string, error)
}

// Archiver saves finished summaries locally and, when configured,
// uploads them with retries. Failures are logged, never returned.
type Archiver struct {
	local    *LocalStorage
	remote   RemoteUploader
	attempts int
	backoff  func(attempt int) time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an archiver. local and remote may each be nil.
func NewArchiver(local *LocalStorage, remote RemoteUploader, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		local:    local,
		remote:   remote,
		attempts: 3,
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * time.Second
		},
		logger: logger.With("component", "archive"),
	}
}

// Archive stores the artifact everywhere configured.
func (ar *Archiver) Archive(ctx context.Context, a Artifact) {
	log := ar.logger.With("jobId", a.JobID)

	if ar.local != nil {
		path, err := ar.local.SaveSummary(a)
		if err != nil {
			log.Error("local archive failed", "error", err)
		} else {
			log.Info("summary archived", "path", path)
		}
	}

	if ar.remote == nil {
		return
	}

	var err error
	for attempt := 1; attempt <= ar.attempts; attempt++ {
		var url string
		url, err = ar.remote.Upload(ctx, a)
		if err == nil {
			log.Info("summary uploaded", "url", url)
			return
		}
		log.Warn("remote upload failed", "attempt", attempt, "of", ar.attempts, "error", err)
		if attempt < ar.attempts {
			select {
			case <-ctx.Done():
				log.Warn("remote upload abandoned", "error", ctx.Err())
				return
			case <-time.After(ar.backoff(attempt)):
			}
		}
	}
	log.Error("remote upload failed after retries, local copy only", "error", err)
}
