// Package config holds operator-level configuration for a chatbot deployment.
//
// This is infrastructure config set by whoever runs the process: data and
// upload directories, the frontend bundle location, LLM backend selection,
// and the tool server command line. Set via env vars (CHATBOT_*) or a
// chatbot.config.yaml file.
//
// Tool credentials (WHATSAPP_TOKEN, WHATSAPP_PHONE_ID) are read by the tool
// server process itself; their absence fails the individual tool call, never
// process startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the CHATBOT_ prefix
// (e.g. "uploads_dir" -> CHATBOT_UPLOADS_DIR) and to a YAML field in
// chatbot.config.yaml.
const (
	KeyDataDir           = "data_dir"
	KeyUploadsDir        = "uploads_dir"
	KeyFrontendDist      = "frontend_dist"
	KeyLLMProvider       = "llm_provider"
	KeyLLMModel          = "llm_model"
	KeyOpenAIAPIKey      = "openai_api_key"
	KeyOllamaBaseURL     = "ollama_base_url"
	KeyToolServerCmd     = "tool_server_cmd"
	KeyToolTimeout       = "tool_timeout"
	KeyMaxUploadMB       = "max_upload_mb"
	KeySessionTTL        = "session_ttl"
	KeyModerationEnabled = "moderation_enabled"
)

// Defaults.
const (
	DefaultLLMProvider = "openai"
	DefaultLLMModel    = "gpt-4.1-mini"
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultMaxUploadMB = 10
	DefaultToolTimeout = 15 * time.Second
	DefaultSessionTTL  = 12 * time.Hour
)

// Config holds resolved operator-level configuration for a chatbot process.
type Config struct {
	DataDir           string        // Base directory for all state (~/.chatbot)
	UploadsDir        string        // Directory for uploaded files and temp audio
	FrontendDist      string        // Path to the pre-built frontend bundle
	LLMProvider       string        // "openai" or "ollama"
	LLMModel          string        // Model name passed to the provider
	OpenAIAPIKey      string        // Quickstart fallback; OPENAI_API_KEY also honored
	OllamaBaseURL     string        // Ollama API endpoint
	ToolServerCmd     []string      // Command line for the tool server subprocess
	ToolTimeout       time.Duration // Per tool-call timeout
	MaxUploadMB       int           // Maximum upload size in MB
	SessionTTL        time.Duration // Idle time before a conversation session is evicted
	ModerationEnabled bool          // Use the OpenAI moderation backend in the risk classifier
}

// IndexDBPath returns the full path to the retrieval index SQLite database.
func (c *Config) IndexDBPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// EnsureDirs creates the data and uploads directories if they don't exist.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.DataDir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := os.MkdirAll(c.UploadsDir, 0o700); err != nil {
		return fmt.Errorf("creating uploads dir: %w", err)
	}
	return nil
}

func init() {
	viper.SetEnvPrefix("CHATBOT")
	viper.AutomaticEnv()
	viper.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	viper.SetDefault(KeyLLMModel, DefaultLLMModel)
	viper.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	viper.SetDefault(KeyMaxUploadMB, DefaultMaxUploadMB)
	viper.SetDefault(KeyToolTimeout, DefaultToolTimeout.String())
	viper.SetDefault(KeySessionTTL, DefaultSessionTTL.String())
	viper.SetDefault(KeyModerationEnabled, false)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           resolveDataDir(),
		UploadsDir:        viper.GetString(KeyUploadsDir),
		FrontendDist:      viper.GetString(KeyFrontendDist),
		LLMProvider:       viper.GetString(KeyLLMProvider),
		LLMModel:          viper.GetString(KeyLLMModel),
		OpenAIAPIKey:      resolveOpenAIKey(),
		OllamaBaseURL:     viper.GetString(KeyOllamaBaseURL),
		ToolServerCmd:     viper.GetStringSlice(KeyToolServerCmd),
		ToolTimeout:       viper.GetDuration(KeyToolTimeout),
		MaxUploadMB:       viper.GetInt(KeyMaxUploadMB),
		SessionTTL:        viper.GetDuration(KeySessionTTL),
		ModerationEnabled: viper.GetBool(KeyModerationEnabled),
	}

	if cfg.UploadsDir == "" {
		cfg.UploadsDir = filepath.Join(cfg.DataDir, "uploads")
	}
	if cfg.FrontendDist == "" {
		cfg.FrontendDist = filepath.Join("frontend", "dist")
	}
	if len(cfg.ToolServerCmd) == 0 {
		self, err := os.Executable()
		if err != nil {
			self = "chatbot"
		}
		cfg.ToolServerCmd = []string{self, "tool-server"}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatbot"
	}
	return filepath.Join(home, ".chatbot")
}

// resolveOpenAIKey prefers the CHATBOT_OPENAI_API_KEY setting but falls back
// to the conventional OPENAI_API_KEY env var for quickstart setups.
func resolveOpenAIKey() string {
	if k := viper.GetString(KeyOpenAIAPIKey); k != "" {
		return k
	}
	return os.Getenv("OPENAI_API_KEY")
}

func (c *Config) validate() error {
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("llm_provider must be openai or ollama (got %q)", c.LLMProvider)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be positive")
	}
	if c.ToolTimeout <= 0 {
		return fmt.Errorf("tool_timeout must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session_ttl must be positive")
	}
	return nil
}
