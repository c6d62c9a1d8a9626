// Package summarize turns transcripts into markdown summaries.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/codebuildervaibhav/briefly/internal/types"
)

// ErrEmptySummary is returned when the model produced no content.
var ErrEmptySummary = errors.New("empty summary from model")

const (
	// DefaultModel is the chat model used for summaries.
	DefaultModel = "gpt-4o-mini"

	// MaxTranscriptChars bounds the transcript sent to the model.
	MaxTranscriptChars = 120_000
)

// OpenAISummarizer generates summaries through chat completions.
type OpenAISummarizer struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAISummarizer creates a summarizer for the given key and model.
func NewOpenAISummarizer(apiKey, model string, opts ...option.RequestOption) *OpenAISummarizer {
	if model == "" {
		model = DefaultModel
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAISummarizer{
		client:  openai.NewClient(opts...),
		model:   model,
		timeout: 5 * time.Minute,
	}
}

// Summarize returns a markdown summary of transcript at the given level.
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string, level types.SummaryLevel) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(UserPrompt(SanitizeTranscript(transcript), level)),
		},
	}

	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("summary request failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", ErrEmptySummary
	}

	summary := strings.TrimSpace(completion.Choices[0].Message.Content)
	if summary == "" {
		return "", ErrEmptySummary
	}
	return summary, nil
}

var (
	urlPattern       = regexp.MustCompile(`(?i)https?://\S+`)
	timestampPattern = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\b`)
	bracketPattern   = regexp.MustCompile(`\[[^\]]+\]`)
	creditsPattern   = regexp.MustCompile(`(?im)^(?:subtitles?|captions?).*(?:created|made).*(?:community|crowd)`)
	spacePattern     = regexp.MustCompile(`\s+`)
)

// SanitizeTranscript strips links, timestamps, bracketed cues and subtitle
// credits, then collapses whitespace.
func SanitizeTranscript(raw string) string {
	t := raw
	if len(t) > MaxTranscriptChars {
		t = strings.ToValidUTF8(t[:MaxTranscriptChars], "")
	}
	t = urlPattern.ReplaceAllString(t, " ")
	t = timestampPattern.ReplaceAllString(t, " ")
	t = bracketPattern.ReplaceAllString(t, " ")
	t = creditsPattern.ReplaceAllString(t, " ")
	t = spacePattern.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

var levelGuidance = map[types.SummaryLevel]string{
	types.LevelShort:    "Very brief version covering only the main idea (cap at about 5-6 sentences even for long content).",
	types.LevelMedium:   "One concise paragraph, up to 8-12 sentences.",
	types.LevelDetailed: "Multi-section summary with headings, bullet points, numbered lists, and key quotes or examples.",
	types.LevelExtreme:  "In-depth notes with clear sections, bullet points, and timestamps if present.",
}

const systemPrompt = `You are a helpful assistant that summarizes audio transcripts for the user.
Use clear, grammatically correct language.

The summary must strictly match the level requested by the user,
while adjusting length proportionally to the total length of the transcript.

- short: Very brief version covering only the main idea (cap at about 5-6 sentences even for long content).
- medium: One concise paragraph, up to 8-12 sentences.
- detailed: Multi-section summary with headings, bullet points, numbered lists, and key quotes or examples.
- extreme: In-depth notes with clear sections, bullet points, and timestamps if present.

Formatting rules (return pure Markdown only, no code fences, no preamble):
- Start with an H1 title in the transcript language, e.g. "# Summary".
- Use "##" for main sections.
- Use bullet/numbered lists for details.
- Do not include ads, promo codes, watermarks, credits, or unrelated content.
- Do not invent facts; only use information present in the transcript.

Ignore subtitle credits, outro credits, watermarks, or any non-content text.`

// UserPrompt builds the per-job instruction around a sanitized transcript.
func UserPrompt(clean string, level types.SummaryLevel) string {
	var b strings.Builder
	b.WriteString("Detect the transcript's main language and answer strictly in that language.\n\n")
	b.WriteString("Transcript:\n\"\"\"\n")
	b.WriteString(clean)
	b.WriteString("\n\"\"\"\n\n")
	fmt.Fprintf(&b, "Generate a **%s** summary. %s\n", level, levelGuidance[level])
	b.WriteString("Adjust length proportionally to the transcript's length.\n")
	b.WriteString("Follow the formatting instructions strictly.\n")
	b.WriteString("Return only Markdown starting with an H1. Do not wrap in backticks.")
	return b.String()
}
