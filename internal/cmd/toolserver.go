package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/DawoodTahir/MCP-Chatbot/internal/config"
	"github.com/DawoodTahir/MCP-Chatbot/internal/llm"
	"github.com/DawoodTahir/MCP-Chatbot/internal/mcp"
	"github.com/DawoodTahir/MCP-Chatbot/internal/tools"
)

var toolServerCmd = &cobra.Command{
	Use:   "tool-server",
	Short: "Run the JSON-RPC tool server over stdio",
	Long: `Runs the tool server the serve command launches as a subprocess.

Speaks newline-delimited JSON-RPC 2.0 on stdin/stdout; all logs go to
stderr. Tool credentials come from the environment (WHATSAPP_TOKEN,
WHATSAPP_PHONE_ID); a missing credential fails the individual call only.`,
	RunE: runToolServer,
}

func init() {
	rootCmd.AddCommand(toolServerCmd)
}

func runToolServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Tools that rewrite text share the serving LLM; without one they fall
	// back to raw labels.
	var provider llm.Provider
	if p, err := llm.Resolve(cfg.LLMProvider, cfg.OpenAIAPIKey, cfg.OllamaBaseURL); err == nil {
		provider = p
	} else {
		log.Warn().Err(err).Msg("tool_server_llm_unavailable")
	}

	registry := tools.NewRegistry()
	registry.Register(tools.NewNotifyTool())
	registry.Register(tools.NewSkillsTool(provider, cfg.LLMModel))
	registry.Register(tools.NewAttitudeTool(provider, cfg.LLMModel))

	log.Info().Int("tools", len(registry.List())).Msg("tool_server_started")

	srv := mcp.NewServer(registry, os.Stdin, os.Stdout)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tool server: %w", err)
	}
	log.Info().Msg("tool_server_stopped")
	return nil
}
