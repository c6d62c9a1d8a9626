package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codebuildervaibhav/briefly/internal/process"
)

// WhisperCLI transcribes locally through `python -m whisper`.
type WhisperCLI struct {
	python   string
	model    string
	language string
	runner   process.Runner
	logger   *slog.Logger
	mu       sync.Mutex // whisper saturates the CPU, one run at a time
}

// NewWhisperCLI creates a local transcriber. An empty language lets
// whisper auto-detect.
func NewWhisperCLI(python, model, language string, runner process.Runner, logger *slog.Logger) *WhisperCLI {
	if python == "" {
		python = "python"
	}
	if model == "" {
		model = "small"
	}
	if runner == nil {
		runner = process.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperCLI{
		python:   python,
		model:    model,
		language: language,
		runner:   runner,
		logger:   logger.With("component", "whisper"),
	}
}

// whisperOutput matches Python Whisper's JSON output format
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe runs whisper on audioPath and returns the transcript text.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	absAudioPath, err := filepath.Abs(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcription error: %w", err)
	}

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return "", fmt.Errorf("transcription error: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{"-m", "whisper",
		absAudioPath,
		"--model", w.model,
		"--output_dir", outDir,
		"--output_format", "json",
		"--fp16", "False",
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}

	res, err := w.runner.Run(ctx, w.python, args...)
	if err != nil {
		return "", fmt.Errorf("transcription error: whisper exit %d: %w | %s", res.ExitCode, err, strings.TrimSpace(res.Stderr))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, baseName+".json"))
	if err != nil {
		return "", fmt.Errorf("transcription error: read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("transcription error: parse whisper output: %w", err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("transcription error: %w", ErrEmptyTranscript)
	}
	w.logger.Info("transcription completed", "path", audioPath, "language", out.Language, "chars", len(text))
	return text, nil
}
