package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// ErrEmptyTranscript is returned when the model produced no text.
var ErrEmptyTranscript = errors.New("empty transcription")

// DefaultModel is the hosted speech-to-text model.
const DefaultModel = "whisper-1"

// OpenAITranscriber calls the hosted transcription endpoint.
type OpenAITranscriber struct {
	client  openai.Client
	model   string
	ceiling int64
	timeout time.Duration
}

// NewOpenAITranscriber creates a transcriber for the given key and model.
func NewOpenAITranscriber(apiKey, model string, opts ...option.RequestOption) *OpenAITranscriber {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAITranscriber{
		client:  openai.NewClient(opts...),
		model:   model,
		ceiling: MaxTranscribeBytes,
		timeout: 10 * time.Minute,
	}
}

// Transcribe uploads the audio file and returns the transcript text.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcription error: %w", err)
	}
	if info.Size() > t.ceiling {
		return "", fmt.Errorf("transcription error: %w (%d bytes)", ErrTooLarge, info.Size())
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcription error: %w", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(t.model),
	})
	if err != nil {
		return "", fmt.Errorf("transcription error: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("transcription error: %w", ErrEmptyTranscript)
	}
	return text, nil
}
