package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/codebuildervaibhav/briefly/internal/config"
	"github.com/codebuildervaibhav/briefly/internal/googleauth"
	"github.com/codebuildervaibhav/briefly/internal/handlers"
	"github.com/codebuildervaibhav/briefly/internal/logger"
	"github.com/codebuildervaibhav/briefly/internal/media"
	"github.com/codebuildervaibhav/briefly/internal/notify"
	"github.com/codebuildervaibhav/briefly/internal/storage"
)

// setup loads the configuration named by the command flags and installs
// the default logger.
func setup(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env"))
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})
	return cfg, log, nil
}

func newDownloader(cfg *config.Config, log *slog.Logger) *media.Downloader {
	return media.NewDownloader(media.Config{
		Binary:       cfg.YtDlp.Path,
		TempDir:      cfg.Storage.TempDir,
		CookiesPath:  cfg.YtDlp.CookiesPath,
		Fallbacks:    cfg.YtDlp.Fallbacks,
		FetchTimeout: time.Duration(cfg.YtDlp.FetchTimeoutMinutes) * time.Minute,
		ProbeTimeout: time.Duration(cfg.YtDlp.ProbeTimeoutSeconds) * time.Second,
	}, nil, log)
}

// openLister returns the read side of the configured durable mirror.
func openLister(ctx context.Context, cfg *config.Config, db *storage.MetadataDB) (handlers.JobLister, func(), error) {
	switch cfg.Mirror.Driver {
	case "redis":
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		ttl := time.Duration(cfg.Redis.TTLHours) * time.Hour
		return storage.NewRedisMirror(client, ttl), func() { client.Close() }, nil
	case "sqlite":
		return db, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

// googleScopes covers every Google API the server may call with the
// shared token.
var googleScopes = []string{storage.DriveScope, notify.GmailScope}

func probeAction(ctx context.Context, cmd *cli.Command) error {
	url := cmd.Args().First()
	if url == "" {
		return errors.New("usage: probe <url>")
	}
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	if !media.IsYouTubeURL(url) {
		return fmt.Errorf("not a YouTube URL: %s", url)
	}

	seconds, err := newDownloader(cfg, log).ProbeDuration(ctx, url, media.ProbeOptions{})
	if err != nil {
		return err
	}
	allowed := seconds <= float64(cfg.Limits.MaxDurationMinutes*60)
	fmt.Printf("duration: %.0fs (%.1f min), accepted: %t\n", seconds, seconds/60, allowed)
	return nil
}

func jobsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}

	db, err := storage.NewMetadataDB(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	lister, closeLister, err := openLister(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeLister()
	if lister == nil {
		lister = db
	}

	jobs, err := lister.ListJobs(ctx, cmd.String("owner"), cmd.Int("limit"))
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "Status", "Progress", "Source", "Level", "Updated At")
	for _, j := range jobs {
		table.Append(
			j.JobID,
			string(j.Status),
			fmt.Sprintf("%d%%", j.Progress),
			j.Source,
			string(j.Level),
			j.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	return table.Render()
}

func googleAuthAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	oauthCfg, err := googleauth.LoadConfig(cfg.Google.CredentialsFile, googleScopes...)
	if err != nil {
		return err
	}

	code := cmd.String("code")
	if code == "" {
		fmt.Printf("Open this link in your browser, then paste the authorization code:\n%s\n> ", googleauth.AuthCodeURL(oauthCfg))
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("unable to read authorization code: %w", err)
		}
		code = strings.TrimSpace(line)
	}

	if err := googleauth.ExchangeAndSave(ctx, oauthCfg, code, cfg.Google.TokenFile); err != nil {
		return err
	}
	log.Info("google token saved", "file", cfg.Google.TokenFile)
	return nil
}
