// Package server exposes the chat API over HTTP: /chat, /voice, /upload,
// /health, and the static frontend. Both gates of the risk check live here so
// no user text enters or leaves the agent unchecked.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DawoodTahir/MCP-Chatbot/internal/agent"
	"github.com/DawoodTahir/MCP-Chatbot/internal/otel"
	"github.com/DawoodTahir/MCP-Chatbot/internal/risk"
	"github.com/DawoodTahir/MCP-Chatbot/internal/session"
	"github.com/DawoodTahir/MCP-Chatbot/internal/transcribe"
)

const defaultTimeout = 120 * time.Second

// Classifier is the slice of the risk package the server needs.
type Classifier interface {
	Classify(ctx context.Context, text string) *risk.Verdict
}

// AgentRunner runs one conversation turn.
type AgentRunner interface {
	HandleMessage(ctx context.Context, userID, message string, audio *agent.AudioMetrics) (*agent.Result, error)
}

// Indexer ingests a plain-text artifact into the retrieval index.
type Indexer interface {
	Index(ctx context.Context, path string) (string, error)
}

// Extractor converts an uploaded document into a plain-text artifact.
type Extractor interface {
	ExtractToText(ctx context.Context, path string) (string, error)
}

// Server holds all dependencies for the HTTP API.
type Server struct {
	router       *chi.Mux
	classifier   Classifier
	agent        AgentRunner
	sessions     *session.Store
	index        Indexer
	transcriber  transcribe.Transcriber
	extractor    Extractor
	uploadsDir   string
	frontendDist string
	maxUploadMB  int
	startTime    time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithIndex sets the retrieval index used by /upload.
func WithIndex(idx Indexer) Option {
	return func(s *Server) { s.index = idx }
}

// WithTranscriber sets the audio transcriber used by /voice.
func WithTranscriber(t transcribe.Transcriber) Option {
	return func(s *Server) { s.transcriber = t }
}

// WithExtractor sets the document extractor used by /upload.
func WithExtractor(e Extractor) Option {
	return func(s *Server) { s.extractor = e }
}

// WithUploadsDir sets where uploaded files are staged.
func WithUploadsDir(dir string) Option {
	return func(s *Server) { s.uploadsDir = dir }
}

// WithFrontendDist sets the directory holding the built frontend.
func WithFrontendDist(dir string) Option {
	return func(s *Server) { s.frontendDist = dir }
}

// WithMaxUploadMB caps multipart upload size.
func WithMaxUploadMB(mb int) Option {
	return func(s *Server) { s.maxUploadMB = mb }
}

// NewServer builds a Server with the required dependencies and optional Option(s).
func NewServer(classifier Classifier, agentRunner AgentRunner, sessions *session.Store, opts ...Option) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		classifier:  classifier,
		agent:       agentRunner,
		sessions:    sessions,
		maxUploadMB: 10,
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.MiddlewareWithStatus())
	r.Use(middleware.Timeout(defaultTimeout))

	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Post("/voice", s.handleVoice)
	r.Post("/upload", s.handleUpload)

	// Everything else is the frontend.
	r.NotFound(s.handleStatic)

	return r
}
