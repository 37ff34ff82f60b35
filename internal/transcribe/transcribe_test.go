package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func whisperClient(t *testing.T, text string, duration float64) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"task":     "transcribe",
			"language": "english",
			"duration": duration,
			"text":     text,
		})
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func audioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFFfakewavdata"), 0o600))
	return path
}

func TestTranscribeComputesWPM(t *testing.T) {
	// 30 words over 12 seconds = 150 wpm.
	words := "one two three four five six seven eight nine ten " +
		"one two three four five six seven eight nine ten " +
		"one two three four five six seven eight nine ten"
	tr := NewWhisperTranscriberWithClient(whisperClient(t, words, 12))

	result, err := tr.Transcribe(context.Background(), audioFixture(t))
	require.NoError(t, err)
	assert.Equal(t, words, result.Text)
	assert.Equal(t, 12.0, result.DurationSec)
	assert.InDelta(t, 150.0, result.WPM, 0.01)
}

func TestTranscribeEmptyAudio(t *testing.T) {
	tr := NewWhisperTranscriberWithClient(whisperClient(t, "  ", 0.4))

	result, err := tr.Transcribe(context.Background(), audioFixture(t))
	require.NoError(t, err, "silence is not an error")
	assert.Empty(t, result.Text)
	assert.Zero(t, result.WPM)
}

func TestTranscribeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad audio"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"

	tr := NewWhisperTranscriberWithClient(openai.NewClientWithConfig(cfg))
	_, err := tr.Transcribe(context.Background(), audioFixture(t))
	require.Error(t, err)
}
