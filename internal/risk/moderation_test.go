package risk

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DawoodTahir/MCP-Chatbot/internal/testutil"
)

func moderationClient(t *testing.T, flagged bool) *openai.Client {
	t.Helper()
	srv := testutil.NewModerationServer(flagged)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestModerationBackendFlagged(t *testing.T) {
	b := newModerationBackendWithClient(moderationClient(t, true))

	cats, err := b.Moderate(context.Background(), "some violent text")
	require.NoError(t, err)
	assert.Contains(t, cats, "violence")
}

func TestModerationBackendClean(t *testing.T) {
	b := newModerationBackendWithClient(moderationClient(t, false))

	cats, err := b.Moderate(context.Background(), "a friendly question")
	require.NoError(t, err)
	assert.Empty(t, cats)
}
