package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/codebuildervaibhav/briefly/internal/process"
)

var (
	// ErrRestricted marks a failure caused by an access policy (403,
	// sign-in wall, age or region lock).
	ErrRestricted = errors.New("access restricted")
	// ErrTimeout marks a subprocess killed after its wall-clock budget.
	ErrTimeout = errors.New("tool timed out")
	// ErrNoDuration is returned when probe output has no numeric duration.
	ErrNoDuration = errors.New("could not determine video duration from yt-dlp metadata")
)

var restrictionMarkers = regexp.MustCompile(`(?i)HTTP Error 403|Sign in to confirm|age-restricted|region`)

// Defaults for the yt-dlp invocations.
const (
	DefaultBinary       = "yt-dlp"
	DefaultFetchTimeout = 15 * time.Minute
	DefaultProbeTimeout = 2 * time.Minute
	PrimaryStrategy     = "web"
)

// DefaultFallbacks is the client-identity ladder tried after a restricted
// primary attempt.
var DefaultFallbacks = []string{"android"}

// ToolError describes a failed external tool invocation.
type ToolError struct {
	Tool       string
	Strategy   string
	ExitCode   int
	Stderr     string
	Restricted bool
	TimedOut   bool
	Err        error
}

// Error formats the failure for logs and job messages.
func (e *ToolError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] ", e.Tool, e.Strategy)
	switch {
	case e.TimedOut:
		b.WriteString("timed out")
	default:
		fmt.Fprintf(&b, "exited with code %d", e.ExitCode)
	}
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		b.WriteString(": ")
		b.WriteString(stderr)
	}
	return b.String()
}

// Unwrap exposes the underlying process error.
func (e *ToolError) Unwrap() error { return e.Err }

// Is matches the ErrRestricted and ErrTimeout classes.
func (e *ToolError) Is(target error) bool {
	switch target {
	case ErrRestricted:
		return e.Restricted
	case ErrTimeout:
		return e.TimedOut
	}
	return false
}

// FetchOptions tunes one FetchMedia call.
type FetchOptions struct {
	// MaxDuration trims the download to the first MaxDuration of media.
	MaxDuration time.Duration
	// CookiesPath is passed to yt-dlp when the file exists.
	CookiesPath string
}

// ProbeOptions tunes one ProbeDuration call.
type ProbeOptions struct {
	CookiesPath string
}

// Config configures a Downloader.
type Config struct {
	Binary       string
	TempDir      string
	CookiesPath  string
	Fallbacks    []string
	FetchTimeout time.Duration
	ProbeTimeout time.Duration
}

// Downloader wraps yt-dlp with a client-identity fallback ladder.
type Downloader struct {
	cfg    Config
	runner process.Runner
	logger *slog.Logger
}

// NewDownloader constructs a yt-dlp wrapper. A nil runner uses os/exec.
func NewDownloader(cfg Config, runner process.Runner, logger *slog.Logger) *Downloader {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.TempDir == "" {
		cfg.TempDir = filepath.Join(os.TempDir(), "briefly")
	}
	if cfg.Fallbacks == nil {
		cfg.Fallbacks = DefaultFallbacks
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{cfg: cfg, runner: runner, logger: logger.With("component", "ytdlp")}
}

// FetchMedia downloads the audio track of url into the temp directory and
// returns the local path.
func (d *Downloader) FetchMedia(ctx context.Context, url, jobID string, opts FetchOptions) (string, error) {
	if err := os.MkdirAll(d.cfg.TempDir, 0755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	outputPath := filepath.Join(d.cfg.TempDir, jobID+".m4a")

	args := []string{
		"--no-playlist",
		"-f", "bestaudio/best",
		"-N", "4",
		"-R", "10",
		"--fragment-retries", "10",
		"--retry-sleep", "1",
		"-4",
		"--extract-audio",
		"--audio-format", "m4a",
		"--audio-quality", "5",
		"--no-continue",
		"--no-part",
		"-o", outputPath,
		"--add-header", "Referer:https://www.youtube.com/",
		"--add-header", "Accept-Language: en-US,en;q=0.9",
	}
	if opts.MaxDuration > 0 {
		secs := int(math.Ceil(opts.MaxDuration.Seconds()))
		args = append(args, "--download-sections", "*0-"+strconv.Itoa(secs))
	}
	args = append(args, d.cookieArgs(opts.CookiesPath)...)

	_, err := d.runLadder(ctx, d.cfg.FetchTimeout, args, url)
	if err != nil {
		// --no-part writes straight to outputPath, so a failed run can leave a partial file
		if rmErr := os.Remove(outputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			d.logger.Warn("failed to remove partial download", "path", outputPath, "error", rmErr)
		}
		return "", err
	}
	return outputPath, nil
}

// ProbeDuration reads the video duration in seconds without downloading.
func (d *Downloader) ProbeDuration(ctx context.Context, url string, opts ProbeOptions) (float64, error) {
	args := []string{"--no-playlist", "--skip-download", "-j"}
	args = append(args, d.cookieArgs(opts.CookiesPath)...)

	res, err := d.runLadder(ctx, d.cfg.ProbeTimeout, args, url)
	if err != nil {
		return 0, err
	}
	return parseDuration(res.Stdout)
}

// runLadder runs the primary strategy and walks the fallbacks only while
// the previous attempt failed with a restriction marker.
func (d *Downloader) runLadder(ctx context.Context, timeout time.Duration, baseArgs []string, url string) (process.Result, error) {
	strategies := append([]string{PrimaryStrategy}, d.cfg.Fallbacks...)

	var lastErr error
	for i, strategy := range strategies {
		args := append([]string{}, baseArgs...)
		if strategy != PrimaryStrategy {
			args = append(args, "--extractor-args", "youtube:player_client="+strategy)
		}
		args = append(args, url)

		res, err := d.runOnce(ctx, timeout, strategy, args)
		if err == nil {
			if i > 0 {
				d.logger.Info("fallback strategy succeeded", "strategy", strategy, "url", url)
			}
			return res, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRestricted) {
			return process.Result{}, err
		}
		d.logger.Warn("restricted response, trying next client", "strategy", strategy, "url", url)
	}
	return process.Result{}, lastErr
}

func (d *Downloader) runOnce(ctx context.Context, timeout time.Duration, strategy string, args []string) (process.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := d.runner.Run(runCtx, d.cfg.Binary, args...)
	if err == nil {
		return res, nil
	}

	toolErr := &ToolError{
		Tool:     "yt-dlp",
		Strategy: strategy,
		ExitCode: res.ExitCode,
		Stderr:   res.Stderr,
		Err:      err,
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		toolErr.TimedOut = true
		return res, toolErr
	}
	toolErr.Restricted = restrictionMarkers.MatchString(res.Stderr) || restrictionMarkers.MatchString(err.Error())
	return res, toolErr
}

func (d *Downloader) cookieArgs(override string) []string {
	path := override
	if path == "" {
		path = d.cfg.CookiesPath
	}
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return []string{"--cookies", path}
}

// parseDuration returns the first numeric duration among the JSON lines.
func parseDuration(stdout string) (float64, error) {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var meta struct {
			Duration *float64 `json:"duration"`
		}
		if err := json.Unmarshal([]byte(line), &meta); err != nil {
			continue
		}
		if meta.Duration != nil && !math.IsNaN(*meta.Duration) && !math.IsInf(*meta.Duration, 0) {
			return *meta.Duration, nil
		}
	}
	return 0, ErrNoDuration
}
