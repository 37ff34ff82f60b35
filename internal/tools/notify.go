package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// WhatsApp Cloud API credentials come from the environment. Their absence
// fails the individual notify call, never the tool server process.
const (
	EnvWhatsAppToken   = "WHATSAPP_TOKEN"
	EnvWhatsAppPhoneID = "WHATSAPP_PHONE_ID"

	whatsAppAPIBase = "https://graph.facebook.com/v21.0"
	notifyTimeout   = 10 * time.Second
)

// ErrCredentialsNotConfigured is returned by notify_user when the WhatsApp
// environment variables are unset.
var ErrCredentialsNotConfigured = errors.New("whatsapp credentials not configured")

// NotifyTool delivers a text message to a WhatsApp recipient.
type NotifyTool struct {
	apiBase    string
	httpClient *http.Client
}

// NewNotifyTool creates the notify_user tool against the production API.
func NewNotifyTool() *NotifyTool {
	return &NotifyTool{
		apiBase:    whatsAppAPIBase,
		httpClient: &http.Client{Timeout: notifyTimeout},
	}
}

// NewNotifyToolWithBase is used in tests to point at a mock server.
func NewNotifyToolWithBase(apiBase string) *NotifyTool {
	return &NotifyTool{
		apiBase:    apiBase,
		httpClient: &http.Client{Timeout: notifyTimeout},
	}
}

// Name implements Tool.
func (t *NotifyTool) Name() string { return "notify_user" }

// Description implements Tool.
func (t *NotifyTool) Description() string {
	return "Send a WhatsApp text message to a user or the owner"
}

// InputSchema implements Tool.
func (t *NotifyTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"user_phone": {"type": "string", "description": "Recipient phone number"},
			"message": {"type": "string", "description": "Message body to deliver"}
		},
		"required": ["message"]
	}`)
}

type notifyParams struct {
	UserPhone string `json:"user_phone"`
	Message   string `json:"message"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             whatsAppText `json:"text"`
}

// Execute sends the message through the WhatsApp Cloud API.
func (t *NotifyTool) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p notifyParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid notify_user params: %w", err)
		}
	}
	if p.Message == "" {
		return nil, fmt.Errorf("notify_user: message is required")
	}

	token := os.Getenv(EnvWhatsAppToken)
	phoneID := os.Getenv(EnvWhatsAppPhoneID)
	if token == "" || phoneID == "" {
		log.Error().Msg("whatsapp_credentials_missing")
		return nil, ErrCredentialsNotConfigured
	}

	to := p.UserPhone
	if to == "" {
		to = "owner"
	}
	log.Info().Str("to", to).Msg("sending_whatsapp_message")

	payload, err := json.Marshal(whatsAppPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             whatsAppText{Body: p.Message},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", t.apiBase, phoneID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp api call: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whatsapp api call: status %d: %s", resp.StatusCode, string(body))
	}
	return json.RawMessage(body), nil
}
