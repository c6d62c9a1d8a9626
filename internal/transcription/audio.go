package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codebuildervaibhav/briefly/internal/process"
)

// MaxTranscribeBytes is the upload ceiling of the transcription API.
const MaxTranscribeBytes int64 = 25 * 1024 * 1024

// ErrTooLarge is returned when audio exceeds the transcription ceiling.
var ErrTooLarge = errors.New("audio exceeds transcription size limit")

// TranscoderConfig configures the ffmpeg re-encode.
type TranscoderConfig struct {
	FFmpegPath  string
	SampleRate  int
	BitrateKbps int
	Ceiling     int64
	Timeout     time.Duration
}

// Transcoder shrinks oversized audio to mono, low-bitrate AAC.
type Transcoder struct {
	cfg    TranscoderConfig
	runner process.Runner
	logger *slog.Logger
}

// NewTranscoder creates a transcoder. A nil runner uses os/exec.
func NewTranscoder(cfg TranscoderConfig, runner process.Runner, logger *slog.Logger) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.BitrateKbps <= 0 {
		cfg.BitrateKbps = 48
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = MaxTranscribeBytes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{cfg: cfg, runner: runner, logger: logger.With("component", "ffmpeg")}
}

// Ceiling returns the byte threshold above which Compress is needed.
func (t *Transcoder) Ceiling() int64 {
	return t.cfg.Ceiling
}

// Compress re-encodes inputPath next to itself and returns the new path.
// It fails if ffmpeg exits non-zero or the result is still too large.
func (t *Transcoder) Compress(ctx context.Context, inputPath string) (string, error) {
	outputPath := compressedPath(inputPath)

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", strconv.Itoa(t.cfg.SampleRate),
		"-b:a", strconv.Itoa(t.cfg.BitrateKbps) + "k",
		outputPath,
	}

	res, err := t.runner.Run(ctx, t.cfg.FFmpegPath, args...)
	if err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg exit %d: %w | %s", res.ExitCode, err, strings.TrimSpace(res.Stderr))
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return "", fmt.Errorf("ffmpeg completed but output is missing: %w", err)
	}
	if info.Size() > t.cfg.Ceiling {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("%w: %d bytes after compression (limit %d)", ErrTooLarge, info.Size(), t.cfg.Ceiling)
	}

	t.logger.Info("audio compressed", "input", inputPath, "output", outputPath, "bytes", info.Size())
	return outputPath, nil
}

// compressedPath swaps the extension for .m4a, avoiding a collision with
// an input that already is .m4a.
func compressedPath(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	if strings.EqualFold(ext, ".m4a") {
		return base + ".whisper.m4a"
	}
	return base + ".m4a"
}

// ValidateAudioFormat checks if the file format is supported
func ValidateAudioFormat(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	supportedFormats := []string{".mp3", ".wav", ".m4a", ".ogg", ".flac", ".webm", ".aac", ".mp4", ".mpeg", ".mpga", ".opus"}

	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}
