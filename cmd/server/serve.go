package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/openai/openai-go/v3/option"
	"github.com/urfave/cli/v3"

	"github.com/codebuildervaibhav/briefly/internal/cleanup"
	"github.com/codebuildervaibhav/briefly/internal/config"
	"github.com/codebuildervaibhav/briefly/internal/googleauth"
	"github.com/codebuildervaibhav/briefly/internal/handlers"
	"github.com/codebuildervaibhav/briefly/internal/media"
	"github.com/codebuildervaibhav/briefly/internal/notify"
	"github.com/codebuildervaibhav/briefly/internal/queue"
	"github.com/codebuildervaibhav/briefly/internal/ratelimit"
	"github.com/codebuildervaibhav/briefly/internal/status"
	"github.com/codebuildervaibhav/briefly/internal/storage"
	"github.com/codebuildervaibhav/briefly/internal/summarize"
	"github.com/codebuildervaibhav/briefly/internal/transcription"
	"github.com/codebuildervaibhav/briefly/internal/types"
)

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}

	// Ensure directories exist
	if err := storage.EnsureTempDir(cfg.Storage.TempDir); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := os.MkdirAll(cfg.Storage.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	log.Info("initializing components", "simulation", cfg.Simulation.Enabled, "mirror", cfg.Mirror.Driver)

	// Database
	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	lister, closeLister, err := openLister(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("failed to open %s mirror: %w", cfg.Mirror.Driver, err)
	}
	defer closeLister()

	var mirror status.Mirror
	if m, ok := lister.(status.Mirror); ok {
		mirror = m
	}

	// Google APIs are optional and share one cached token
	googleClient := googleHTTPClient(ctx, cfg, log)

	notifier, err := newNotifier(ctx, cfg, googleClient, log)
	if err != nil {
		return err
	}

	store := status.NewStore(status.Options{
		Mirror:    mirror,
		Notifier:  notifier,
		Retention: cfg.Retention(),
		NotifyOn:  notifyStates(cfg.Notify.On),
		Logger:    log,
	})
	defer store.Close()

	limiter := ratelimit.New(cfg.Limits.RateLimitPerMin, ratelimit.DefaultWindow)
	downloader := newDownloader(cfg, log)

	var remote storage.RemoteUploader
	if cfg.GoogleDrive.Enabled && googleClient != nil {
		drive, err := storage.NewDriveClient(ctx, googleClient, cfg.GoogleDrive.FolderName)
		if err != nil {
			log.Warn("google drive not available, summaries are saved locally only", "error", err)
		} else {
			remote = drive
			log.Info("google drive integration enabled", "folder", cfg.GoogleDrive.FolderName)
		}
	}

	deps := queue.Deps{
		Store:    store,
		Fetcher:  downloader,
		Metrics:  db,
		Archiver: storage.NewArchiver(storage.NewLocalStorage(cfg.Storage.OutputDir), remote, log),
		Logger:   log,
	}
	if !cfg.Simulation.Enabled {
		deps.Compressor = transcription.NewTranscoder(transcription.TranscoderConfig{
			FFmpegPath:  cfg.FFmpeg.Path,
			SampleRate:  cfg.FFmpeg.SampleRate,
			BitrateKbps: cfg.FFmpeg.BitrateKbps,
			Timeout:     time.Duration(cfg.FFmpeg.TimeoutMinutes) * time.Minute,
		}, nil, log)
		deps.Transcriber = newTranscriber(cfg, log)
		deps.Summarizer = summarize.NewOpenAISummarizer(cfg.OpenAI.APIKey, cfg.OpenAI.SummaryModel, openAIOptions(cfg)...)
	}

	processor := queue.NewProcessor(queue.Config{
		Workers: cfg.Workers.Count,
		Fetch: media.FetchOptions{
			MaxDuration: time.Duration(cfg.Limits.MaxDurationMinutes) * time.Minute,
			CookiesPath: cfg.YtDlp.CookiesPath,
		},
		Simulation: queue.SimulationConfig{
			Enabled:    cfg.Simulation.Enabled,
			Download:   time.Duration(cfg.Simulation.DownloadSeconds) * time.Second,
			Transcribe: time.Duration(cfg.Simulation.TranscribeSeconds) * time.Second,
			Summarize:  time.Duration(cfg.Simulation.SummarizeSeconds) * time.Second,
			FailProb:   cfg.Simulation.FailProb,
			FailAt:     queue.SimStage(cfg.Simulation.FailAt),
		},
	}, deps)

	// Cleanup scheduler also prunes idle rate-limit buckets
	scheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		log,
		limiter,
	)
	scheduler.Start()
	defer scheduler.Stop()

	sub := handlers.NewSubmitter(store, processor, limiter, db, log)

	app := fiber.New(fiber.Config{
		BodyLimit:             (cfg.Limits.MaxFileSizeMB + 1) * 1024 * 1024,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	var cookies *handlers.CookiesHandler
	if cfg.Admin.Token != "" {
		cookies = handlers.NewCookiesHandler(cfg.YtDlp.CookiesPath, cfg.Admin.Token, log)
	}

	handlers.Routes{
		Upload:  handlers.NewUploadHandler(sub, cfg.Storage.TempDir, cfg.Limits.MaxFileSizeMB),
		YouTube: handlers.NewYouTubeHandler(sub, downloader, cfg.Limits.MaxDurationMinutes, media.ProbeOptions{CookiesPath: cfg.YtDlp.CookiesPath}),
		Jobs:    handlers.NewJobsHandler(store, lister, processor.Simulated(), log),
		Stream:  handlers.NewStreamHandler(store, log),
		Cookies: cookies,
	}.Register(app)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	addr := cfg.Addr()
	log.Info("server starting", "addr", addr,
		"endpoints", []string{"POST /upload", "POST /youtube", "GET /status/:jobId", "GET /ws/status/:jobId", "GET /jobs", "GET /health"})

	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("waiting for running jobs")
	processor.Wait()
	return nil
}

func openAIOptions(cfg *config.Config) []option.RequestOption {
	if cfg.OpenAI.BaseURL == "" {
		return nil
	}
	return []option.RequestOption{option.WithBaseURL(cfg.OpenAI.BaseURL)}
}

func newTranscriber(cfg *config.Config, log *slog.Logger) queue.Transcriber {
	if cfg.Transcription.Backend == "whisper-cli" {
		return transcription.NewWhisperCLI(cfg.Whisper.Python, cfg.Whisper.Model, cfg.Whisper.Language, nil, log)
	}
	return transcription.NewOpenAITranscriber(cfg.OpenAI.APIKey, cfg.OpenAI.TranscribeModel, openAIOptions(cfg)...)
}

// googleHTTPClient returns nil when Google APIs are not set up.
func googleHTTPClient(ctx context.Context, cfg *config.Config, log *slog.Logger) *http.Client {
	if !cfg.GoogleDrive.Enabled && cfg.Notify.Driver != "gmail" {
		return nil
	}
	if _, err := os.Stat(cfg.Google.CredentialsFile); err != nil {
		log.Warn("google credentials not found", "file", cfg.Google.CredentialsFile)
		return nil
	}
	client, err := googleauth.NewClient(ctx, cfg.Google.CredentialsFile, cfg.Google.TokenFile, googleScopes...)
	if errors.Is(err, googleauth.ErrNoToken) {
		log.Warn("google token missing, run the google-auth command", "file", cfg.Google.TokenFile)
		return nil
	}
	if err != nil {
		log.Warn("google client unavailable", "error", err)
		return nil
	}
	return client
}

func newNotifier(ctx context.Context, cfg *config.Config, googleClient *http.Client, log *slog.Logger) (status.Notifier, error) {
	switch cfg.Notify.Driver {
	case "gmail":
		if googleClient == nil {
			log.Warn("gmail notifier unavailable, falling back to log notices")
			return notify.NewLogNotifier(cfg.Server.AppURL, log), nil
		}
		n, err := notify.NewGmailNotifier(ctx, googleClient, cfg.Notify.From, cfg.Server.AppURL)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "log":
		return notify.NewLogNotifier(cfg.Server.AppURL, log), nil
	default:
		return nil, nil
	}
}

func notifyStates(names []string) []types.State {
	out := make([]types.State, 0, len(names))
	for _, n := range names {
		out = append(out, types.State(n))
	}
	return out
}
