// Package transcribe turns uploaded audio into text plus simple speech
// metrics used by the interview coach.
package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	botel "github.com/DawoodTahir/MCP-Chatbot/internal/otel"
)

var tracer = botel.Tracer("github.com/DawoodTahir/MCP-Chatbot/internal/transcribe")

// TimeoutTranscription bounds a single transcription call.
const TimeoutTranscription = 60 * time.Second

// Result carries the transcript and the speech metrics derived from it.
type Result struct {
	Text        string  `json:"text"`
	DurationSec float64 `json:"duration_sec"`
	WPM         float64 `json:"wpm"`
}

// Transcriber converts an audio file on disk into a Result.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// WhisperTranscriber uses the OpenAI audio transcription API.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

// NewWhisperTranscriber creates a transcriber backed by Whisper.
func NewWhisperTranscriber(apiKey string) *WhisperTranscriber {
	return &WhisperTranscriber{
		client: openai.NewClient(apiKey),
		model:  openai.Whisper1,
	}
}

// NewWhisperTranscriberWithClient is used in tests with a mock API server.
func NewWhisperTranscriberWithClient(client *openai.Client) *WhisperTranscriber {
	return &WhisperTranscriber{client: client, model: openai.Whisper1}
}

// Transcribe sends the file to the transcription API. An empty transcript is
// not an error; callers decide how to respond to silence.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	ctx, span := tracer.Start(ctx, "transcribe.whisper")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutTranscription)
	defer cancel()

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("transcription api call: %w", err)
	}

	result := &Result{
		Text:        strings.TrimSpace(resp.Text),
		DurationSec: resp.Duration,
	}
	if result.DurationSec > 0 {
		words := len(strings.Fields(result.Text))
		result.WPM = float64(words) / (result.DurationSec / 60.0)
	}

	span.SetAttributes(
		attribute.Float64("transcribe.duration_sec", result.DurationSec),
		attribute.Int("transcribe.chars", len(result.Text)),
	)
	return result, nil
}
