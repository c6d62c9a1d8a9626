package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/briefly/internal/media"
	"github.com/codebuildervaibhav/briefly/internal/status"
	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// Fetcher downloads remote media to a local file.
type Fetcher interface {
	FetchMedia(ctx context.Context, url, jobID string, opts media.FetchOptions) (string, error)
}

// Compressor shrinks audio above its ceiling.
type Compressor interface {
	Compress(ctx context.Context, inputPath string) (string, error)
	Ceiling() int64
}

// Transcriber turns an audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Summarizer turns a transcript into markdown.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string, level types.SummaryLevel) (string, error)
}

// MetricsSink persists the per-job metrics record.
type MetricsSink interface {
	SaveMetrics(ctx context.Context, jobID string, m types.Metrics, finishedAt time.Time) error
}

// Archiver keeps a copy of finished summaries.
type Archiver interface {
	Archive(ctx context.Context, a storage.Artifact)
}

// Deps are the collaborators of a Processor. Store is required; Fetcher,
// Transcriber and Summarizer are required unless simulating.
type Deps struct {
	Store       *status.Store
	Fetcher     Fetcher
	Compressor  Compressor
	Transcriber Transcriber
	Summarizer  Summarizer
	Metrics     MetricsSink
	Archiver    Archiver
	Logger      *slog.Logger
}

// Config tunes a Processor.
type Config struct {
	// Workers bounds how many jobs run at once. Extra jobs wait in PENDING.
	Workers    int
	Fetch      media.FetchOptions
	Simulation SimulationConfig
}

// Processor drives job descriptors through the pipeline. It is the only
// writer of a job's status after submission.
type Processor struct {
	deps   Deps
	fetch  media.FetchOptions
	sim    *simulator
	slots  chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor creates a processor.
func NewProcessor(cfg Config, deps Deps) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		deps:   deps,
		fetch:  cfg.Fetch,
		slots:  make(chan struct{}, cfg.Workers),
		logger: logger.With("component", "processor"),
		now:    time.Now,
	}
	if cfg.Simulation.Enabled {
		p.sim = newSimulator(cfg.Simulation)
	}

	p.logger.Info("processor ready", "workers", cfg.Workers, "simulation", cfg.Simulation.Enabled)
	return p
}

// Simulated reports whether external calls are replaced by sleeps.
func (p *Processor) Simulated() bool {
	return p.sim != nil
}

// Process starts the job on its own goroutine and returns immediately.
// The goroutine owns the job from here on, including its terminal status
// and temp file cleanup.
func (p *Processor) Process(desc types.Descriptor) {
	p.wg.Add(1)
	go p.worker(desc)
}

// Wait blocks until every started job has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// worker runs one job inside a concurrency slot
func (p *Processor) worker(desc types.Descriptor) {
	defer p.wg.Done()

	p.slots <- struct{}{}
	defer func() { <-p.slots }()

	log := p.logger.With("jobId", desc.JobID)
	ctx := context.Background()

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			log.Error("worker panic", "panic", r, "stack", string(debug.Stack()))
			p.removeTemp(desc.Source)
			p.fail(ctx, desc, fmt.Errorf("worker panic: %v", r))
		}
	}()

	if _, ok := p.deps.Store.Get(desc.JobID); !ok {
		log.Info("job no longer tracked, skipping")
		return
	}

	if p.sim != nil {
		p.simulate(ctx, log, desc)
		return
	}
	p.processJob(ctx, log, desc)
}

// set writes a transition through the status store, keeping attribution.
func (p *Processor) set(ctx context.Context, desc types.Descriptor, state types.State, progress int, message, summary string) {
	st := types.JobStatus{
		JobID:      desc.JobID,
		Status:     state,
		Progress:   progress,
		Message:    message,
		Summary:    summary,
		OwnerEmail: desc.OwnerEmail,
		OwnerID:    desc.OwnerID,
	}
	p.deps.Store.Set(ctx, desc.JobID, st, desc.OwnerID)
}

// fail writes the single FAILED status for a job.
func (p *Processor) fail(ctx context.Context, desc types.Descriptor, err error) {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	if cur, ok := p.deps.Store.Get(desc.JobID); ok && cur.Status.IsTerminal() {
		return
	}
	p.set(ctx, desc, types.StateFailed, types.ProgressDone, msg, "")
}

// saveMetrics persists m; failures are logged only.
func (p *Processor) saveMetrics(ctx context.Context, log *slog.Logger, jobID string, m types.Metrics) {
	if p.deps.Metrics == nil {
		return
	}
	if err := p.deps.Metrics.SaveMetrics(ctx, jobID, m, p.now()); err != nil {
		log.Warn("failed to save metrics", "error", err)
	}
}

// removeTemp deletes the uploaded file handed over with the descriptor.
func (p *Processor) removeTemp(src types.Source) {
	if up, ok := src.(types.UploadSource); ok {
		storage.RemoveTemp(p.logger, up.Path)
	}
}
