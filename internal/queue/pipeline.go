package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// CompletedMessage is the message stored with a READY status.
const CompletedMessage = "Job completed!"

// processJob handles the complete pipeline
func (p *Processor) processJob(ctx context.Context, log *slog.Logger, desc types.Descriptor) {
	log.Info("processing job", "source", sourceKind(desc.Source), "level", desc.Level)

	rec := newRecorder(p.now)
	defer func() { p.saveMetrics(ctx, log, desc.JobID, rec.finish()) }()

	// every file listed here is owned by this job and removed on exit
	var temps []string
	defer func() {
		for _, path := range temps {
			storage.RemoveTemp(log, path)
		}
	}()

	summary, err := p.run(ctx, desc, rec, &temps)
	if err != nil {
		log.Error("job failed", "error", err)
		p.fail(ctx, desc, err)
		return
	}

	for _, path := range temps {
		storage.RemoveTemp(log, path)
	}
	temps = nil

	p.set(ctx, desc, types.StateReady, types.ProgressDone, CompletedMessage, summary)
	log.Info("job completed", "summaryChars", len(summary))

	if p.deps.Archiver != nil {
		p.deps.Archiver.Archive(ctx, storage.Artifact{
			JobID:     desc.JobID,
			OwnerID:   desc.OwnerID,
			Source:    sourceKind(desc.Source),
			Level:     desc.Level,
			Summary:   summary,
			Metrics:   rec.snapshot(),
			CreatedAt: p.now(),
		})
	}
}

// run executes the stages and returns the summary. Each state is written
// before its work starts.
func (p *Processor) run(ctx context.Context, desc types.Descriptor, rec *recorder, temps *[]string) (string, error) {
	var audioPath string

	switch src := desc.Source.(type) {
	case types.YouTubeSource:
		p.set(ctx, desc, types.StateDownloading, types.ProgressDownloading, "Downloading audio", "")
		err := rec.time(&rec.m.DownloadMs, func() error {
			path, err := p.deps.Fetcher.FetchMedia(ctx, src.URL, desc.JobID, p.fetch)
			audioPath = path
			return err
		})
		if audioPath != "" {
			*temps = append(*temps, audioPath)
		}
		if err != nil {
			return "", err
		}
	case types.UploadSource:
		audioPath = src.Path
		*temps = append(*temps, audioPath)
	default:
		return "", fmt.Errorf("%w: %T", types.ErrInvalidSource, desc.Source)
	}

	size, err := storage.FileSize(audioPath)
	if err != nil {
		return "", fmt.Errorf("audio file unavailable: %w", err)
	}
	rec.m.InputBytes = size
	rec.m.OutputBytes = size

	p.set(ctx, desc, types.StateTranscribing, types.ProgressTranscribing, "Transcribing audio", "")

	if p.deps.Compressor != nil && size > p.deps.Compressor.Ceiling() {
		err := rec.time(&rec.m.TranscodeMs, func() error {
			compressed, err := p.deps.Compressor.Compress(ctx, audioPath)
			if err != nil {
				return err
			}
			*temps = append(*temps, compressed)
			audioPath = compressed
			return nil
		})
		if err != nil {
			return "", err
		}
		if size, err = storage.FileSize(audioPath); err == nil {
			rec.m.OutputBytes = size
		}
	}

	var transcript string
	err = rec.time(&rec.m.TranscribeMs, func() error {
		var err error
		transcript, err = p.deps.Transcriber.Transcribe(ctx, audioPath)
		return err
	})
	if err != nil {
		return "", err
	}

	p.set(ctx, desc, types.StateSummarizing, types.ProgressSummarizing, "Generating summary", "")

	var summary string
	err = rec.time(&rec.m.SummarizeMs, func() error {
		var err error
		summary, err = p.deps.Summarizer.Summarize(ctx, transcript, desc.Level)
		return err
	})
	if err != nil {
		return "", err
	}
	return summary, nil
}

func sourceKind(src types.Source) string {
	if src == nil {
		return ""
	}
	return src.Kind()
}
