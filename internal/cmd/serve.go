package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/DawoodTahir/MCP-Chatbot/internal/agent"
	"github.com/DawoodTahir/MCP-Chatbot/internal/config"
	"github.com/DawoodTahir/MCP-Chatbot/internal/extract"
	"github.com/DawoodTahir/MCP-Chatbot/internal/llm"
	"github.com/DawoodTahir/MCP-Chatbot/internal/mcp"
	"github.com/DawoodTahir/MCP-Chatbot/internal/retrieval"
	"github.com/DawoodTahir/MCP-Chatbot/internal/risk"
	"github.com/DawoodTahir/MCP-Chatbot/internal/server"
	"github.com/DawoodTahir/MCP-Chatbot/internal/session"
	"github.com/DawoodTahir/MCP-Chatbot/internal/transcribe"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatbot HTTP server and its tool server subprocess",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}

	var riskOpts []risk.Option
	if cfg.ModerationEnabled {
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("moderation_enabled_without_api_key")
		} else {
			riskOpts = append(riskOpts, risk.WithHarmfulBackend(risk.NewModerationBackend(cfg.OpenAIAPIKey)))
		}
	}
	classifier, err := risk.NewClassifier(riskOpts...)
	if err != nil {
		return fmt.Errorf("building risk classifier: %w", err)
	}

	provider, err := llm.Resolve(cfg.LLMProvider, cfg.OpenAIAPIKey, cfg.OllamaBaseURL)
	if err != nil {
		return fmt.Errorf("resolving llm provider: %w", err)
	}

	index, err := retrieval.NewIndex(cfg.IndexDBPath())
	if err != nil {
		return fmt.Errorf("opening retrieval index: %w", err)
	}
	defer index.Close()

	sessions := session.NewStore(cfg.SessionTTL)
	stopSweeper := sessions.StartSweeper()
	defer stopSweeper()

	gateway := mcp.NewClient(cfg.ToolServerCmd, cfg.ToolTimeout)
	if err := gateway.Connect(ctx); err != nil {
		// The chat loop degrades without tools; keep serving.
		log.Warn().Err(err).Msg("tool_server_unavailable")
	}
	defer gateway.Close()

	coach := agent.New(provider, cfg.LLMModel, sessions, index, gateway)

	var transcriber transcribe.Transcriber
	if cfg.OpenAIAPIKey != "" {
		transcriber = transcribe.NewWhisperTranscriber(cfg.OpenAIAPIKey)
	} else {
		log.Warn().Msg("voice_disabled_no_api_key")
	}

	srv := server.NewServer(classifier, coach, sessions,
		server.WithIndex(index),
		server.WithExtractor(extract.NewExtractor(cfg.MaxUploadMB)),
		server.WithTranscriber(transcriber),
		server.WithUploadsDir(cfg.UploadsDir),
		server.WithFrontendDist(cfg.FrontendDist),
		server.WithMaxUploadMB(cfg.MaxUploadMB),
	)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("provider", provider.Name()).
		Str("model", cfg.LLMModel).
		Bool("moderation", cfg.ModerationEnabled).
		Bool("voice", transcriber != nil).
		Msg("chatbot_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
