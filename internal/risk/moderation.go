package risk

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// TimeoutModeration bounds every moderation backend call.
const TimeoutModeration = 10 * time.Second

// ModerationBackend implements HarmfulBackend using the OpenAI moderation API.
type ModerationBackend struct {
	client *openai.Client
}

// NewModerationBackend creates a moderation backend with the given API key.
func NewModerationBackend(apiKey string) *ModerationBackend {
	return &ModerationBackend{client: openai.NewClient(apiKey)}
}

// newModerationBackendWithClient is used in tests to inject httptest-based clients.
func newModerationBackendWithClient(client *openai.Client) *ModerationBackend {
	return &ModerationBackend{client: client}
}

// Moderate returns the flagged category names for text, empty when clean.
func (b *ModerationBackend) Moderate(ctx context.Context, text string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, TimeoutModeration)
	defer cancel()

	resp, err := b.client.Moderations(ctx, openai.ModerationRequest{
		Model: openai.ModerationTextStable,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("moderation api call: %w", err)
	}

	var cats []string
	for _, result := range resp.Results {
		if !result.Flagged {
			continue
		}
		c := result.Categories
		if c.Violence || c.ViolenceGraphic {
			cats = append(cats, "violence")
		}
		if c.SelfHarm || c.SelfHarmIntent || c.SelfHarmInstructions {
			cats = append(cats, "self_harm")
		}
		if c.Hate || c.HateThreatening {
			cats = append(cats, "hate")
		}
		if c.Sexual || c.SexualMinors {
			cats = append(cats, "sexual")
		}
		if c.Harassment || c.HarassmentThreatening {
			cats = append(cats, "harassment")
		}
	}
	return cats, nil
}
