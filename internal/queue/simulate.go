package queue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

// SimStage is a point where simulation mode can inject a failure.
type SimStage string

const (
	SimDownloading  SimStage = "DOWNLOADING"
	SimTranscribing SimStage = "TRANSCRIBING"
	SimSummarizing  SimStage = "SUMMARIZING"
	SimBeforeReady  SimStage = "BEFORE_READY"
)

// Messages written in simulation mode.
const (
	SimCompletedMessage = "Completed in economy mode (no OpenAI calls)."
	SimPlaceholder      = "Processing disabled. This is a placeholder summary from economy mode."
)

var simFailure = map[SimStage]string{
	SimDownloading:  "Economy mode: simulated failure at download stage (network timeout).",
	SimTranscribing: "Economy mode: simulated failure at transcription stage (decoder error).",
	SimSummarizing:  "Economy mode: simulated failure at summarization stage (rate-limited).",
	SimBeforeReady:  "Economy mode: simulated failure while finalizing results (write error).",
}

// Random is the randomness simulation mode draws from.
type Random interface {
	Float64() float64
	IntN(n int) int
}

// SimulationConfig replaces every external call with a sleep.
type SimulationConfig struct {
	Enabled bool
	// Stage sleeps at the short level; longer levels scale them up.
	Download   time.Duration
	Transcribe time.Duration
	Summarize  time.Duration
	// FailProb is the chance a job fails at a random applicable stage.
	FailProb float64
	// FailAt forces a failure at that stage, ignoring FailProb.
	FailAt SimStage
	// Rand overrides the random source.
	Rand Random
}

// levelFactor scales simulated work with the requested verbosity.
func levelFactor(level types.SummaryLevel) float64 {
	switch level {
	case types.LevelMedium:
		return 1.5
	case types.LevelDetailed:
		return 2
	case types.LevelExtreme:
		return 3
	default:
		return 1
	}
}

type simulator struct {
	cfg SimulationConfig
	mu  sync.Mutex // guards rnd
	rnd Random
}

func newSimulator(cfg SimulationConfig) *simulator {
	if cfg.Download <= 0 {
		cfg.Download = 15 * time.Second
	}
	if cfg.Transcribe <= 0 {
		cfg.Transcribe = 25 * time.Second
	}
	if cfg.Summarize <= 0 {
		cfg.Summarize = 20 * time.Second
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &simulator{cfg: cfg, rnd: rnd}
}

// pickFailure decides up front where a job fails, or "" for success.
// Uploads have no download stage to fail in.
func (s *simulator) pickFailure(src types.Source) SimStage {
	stages := []SimStage{SimTranscribing, SimSummarizing, SimBeforeReady}
	if _, ok := src.(types.YouTubeSource); ok {
		stages = append([]SimStage{SimDownloading}, stages...)
	}

	if s.cfg.FailAt != "" {
		for _, st := range stages {
			if st == s.cfg.FailAt {
				return st
			}
		}
		return ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rnd.Float64() >= s.cfg.FailProb {
		return ""
	}
	return stages[s.rnd.IntN(len(stages))]
}

func (s *simulator) duration(base time.Duration, level types.SummaryLevel) time.Duration {
	return time.Duration(float64(base) * levelFactor(level))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// simulate walks the same state sequence as processJob without calling
// any external service.
func (p *Processor) simulate(ctx context.Context, log *slog.Logger, desc types.Descriptor) {
	log.Info("simulating job", "source", sourceKind(desc.Source), "level", desc.Level)

	rec := newRecorder(p.now)
	defer func() { p.saveMetrics(ctx, log, desc.JobID, rec.finish()) }()
	defer p.removeTemp(desc.Source)

	failAt := p.sim.pickFailure(desc.Source)
	if err := p.simulateStages(ctx, desc, rec, failAt); err != nil {
		log.Info("simulated job failed", "error", err)
		p.fail(ctx, desc, err)
		return
	}

	p.set(ctx, desc, types.StateReady, types.ProgressDone, SimCompletedMessage, SimPlaceholder)
	log.Info("simulated job completed")
}

func (p *Processor) simulateStages(ctx context.Context, desc types.Descriptor, rec *recorder, failAt SimStage) error {
	cfg := p.sim.cfg

	stage := func(state types.State, progress int, msg string, base time.Duration, field *int64, at SimStage) error {
		p.set(ctx, desc, state, progress, msg, "")
		err := rec.time(field, func() error {
			return sleepCtx(ctx, p.sim.duration(base, desc.Level))
		})
		if err != nil {
			return err
		}
		if failAt == at {
			return errors.New(simFailure[at])
		}
		return nil
	}

	switch src := desc.Source.(type) {
	case types.YouTubeSource:
		if err := stage(types.StateDownloading, types.ProgressDownloading,
			"Economy mode: simulating download…", cfg.Download, &rec.m.DownloadMs, SimDownloading); err != nil {
			return err
		}
	case types.UploadSource:
		if size, err := storage.FileSize(src.Path); err == nil {
			rec.m.InputBytes = size
		}
	default:
		return types.ErrInvalidSource
	}

	if err := stage(types.StateTranscribing, types.ProgressTranscribing,
		"Economy mode: simulating transcription…", cfg.Transcribe, &rec.m.TranscribeMs, SimTranscribing); err != nil {
		return err
	}
	if err := stage(types.StateSummarizing, types.ProgressSummarizing,
		"Economy mode: simulating summary…", cfg.Summarize, &rec.m.SummarizeMs, SimSummarizing); err != nil {
		return err
	}
	if failAt == SimBeforeReady {
		return errors.New(simFailure[SimBeforeReady])
	}
	return nil
}
