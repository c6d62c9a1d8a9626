package transcription

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/briefly/internal/process"
)

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestWhisperCLI_Transcribe(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "job-7.m4a")
	require.NoError(t, os.WriteFile(audio, []byte("audio"), 0644))

	var seen []string
	runner := process.RunnerFunc(func(ctx context.Context, name string, args ...string) (process.Result, error) {
		seen = args
		out := filepath.Join(argAfter(args, "--output_dir"), "job-7.json")
		return process.Result{}, os.WriteFile(out, []byte(`{"text":"  hello world ","language":"en"}`), 0644)
	})

	w := NewWhisperCLI("", "tiny", "en", runner, nil)
	text, err := w.Transcribe(context.Background(), audio)
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "tiny", argAfter(seen, "--model"))
	assert.Equal(t, "en", argAfter(seen, "--language"))
}

func TestWhisperCLI_EmptyTranscript(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "silence.wav")
	runner := process.RunnerFunc(func(ctx context.Context, name string, args ...string) (process.Result, error) {
		out := filepath.Join(argAfter(args, "--output_dir"), "silence.json")
		return process.Result{}, os.WriteFile(out, []byte(`{"text":"   "}`), 0644)
	})

	_, err := NewWhisperCLI("", "", "", runner, nil).Transcribe(context.Background(), audio)
	assert.ErrorIs(t, err, ErrEmptyTranscript)
}

func TestWhisperCLI_ProcessFailure(t *testing.T) {
	runner := process.RunnerFunc(func(ctx context.Context, name string, args ...string) (process.Result, error) {
		return process.Result{ExitCode: 2, Stderr: "No module named whisper"}, errors.New("exit status 2")
	})

	_, err := NewWhisperCLI("", "", "", runner, nil).Transcribe(context.Background(), "a.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No module named whisper")
}

func TestOpenAITranscriber_RejectsOversizedFile(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "big.m4a")
	require.NoError(t, os.WriteFile(audio, make([]byte, 64), 0644))

	tr := NewOpenAITranscriber("sk-test", "")
	tr.ceiling = 32

	_, err := tr.Transcribe(context.Background(), audio)
	assert.ErrorIs(t, err, ErrTooLarge)
}
