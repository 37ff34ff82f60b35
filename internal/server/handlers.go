package server

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/DawoodTahir/MCP-Chatbot/internal/agent"
	"github.com/DawoodTahir/MCP-Chatbot/internal/requestctx"
	"github.com/DawoodTahir/MCP-Chatbot/internal/risk"
	"github.com/DawoodTahir/MCP-Chatbot/internal/session"
)

// Fixed user-facing strings. The blocked replies are constant so a blocked
// turn leaks nothing about what tripped the gate.
const (
	blockedInputAnswer  = "I can’t follow those instructions, but I can still help with normal questions."
	blockedOutputAnswer = "I'm not able to provide that response. Please try asking in a different way."
	emptyAudioAnswer    = "I couldn't hear you clearly. Could you repeat that?"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// chatRequest is the /chat body.
type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// chatResponse is the body of /chat and /voice. Blocked turns still return
// 200 with Flagged set; HTTP errors are reserved for malformed requests.
type chatResponse struct {
	Answer         string                 `json:"answer"`
	InterviewState *session.State         `json:"interview_state"`
	ToolCalls      []agent.ToolCallRecord `json:"tool_calls"`
	Flagged        bool                   `json:"flagged"`
	Reason         string                 `json:"reason,omitempty"`
	Risk           *risk.Verdict          `json:"risk"`
	Transcription  *string                `json:"transcription,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	resp := s.runTurn(r, userID, req.Message, nil)
	s.logRequest(r, "chat", userID, http.StatusOK, start, func(e *zerolog.Event) {
		e.Bool("flagged", resp.Flagged)
	})
	writeJSON(w, http.StatusOK, resp)
}

// runTurn applies the input gate, runs the agent, and applies the output
// gate. The same classifier judges both directions.
func (s *Server) runTurn(r *http.Request, userID, message string, audio *agent.AudioMetrics) *chatResponse {
	ctx := requestctx.SetUserID(r.Context(), userID)
	ctx = requestctx.SetRequestID(ctx, middleware.GetReqID(r.Context()))

	inVerdict := s.classifier.Classify(ctx, message)
	if !inVerdict.Allowed {
		s.logBlocked(r, userID, "input", inVerdict)
		// Blocked input never touched the session, so no state is exposed.
		return &chatResponse{
			Answer:    blockedInputAnswer,
			ToolCalls: []agent.ToolCallRecord{},
			Flagged:   true,
			Reason:    "input_blocked",
			Risk:      inVerdict,
		}
	}

	result, err := s.agent.HandleMessage(ctx, userID, message, audio)
	if err != nil {
		// The agent degrades internally; an error here is a programming bug,
		// not a user condition.
		log.Error().Err(err).Str("user_id", userID).Msg("agent_turn_failed")
		return &chatResponse{
			Answer:         blockedOutputAnswer,
			InterviewState: s.sessions.Peek(userID),
			ToolCalls:      []agent.ToolCallRecord{},
			Flagged:        true,
			Reason:         "internal_error",
			Risk:           inVerdict,
		}
	}

	outVerdict := s.classifier.Classify(ctx, result.Answer)
	resp := &chatResponse{
		Answer:         result.Answer,
		InterviewState: result.State,
		ToolCalls:      result.ToolCalls,
		Risk:           outVerdict,
	}
	if resp.ToolCalls == nil {
		resp.ToolCalls = []agent.ToolCallRecord{}
	}
	if !outVerdict.Allowed {
		s.logBlocked(r, userID, "output", outVerdict)
		resp.Answer = blockedOutputAnswer
		resp.Flagged = true
		resp.Reason = "output_blocked"
	}
	return resp
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(int64(s.maxUploadMB) << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no audio part")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "empty filename")
		return
	}
	userID := r.FormValue("user_id")
	if userID == "" {
		userID = "anonymous"
	}

	audioPath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		log.Error().Err(err).Msg("voice_save_failed")
		writeError(w, http.StatusInternalServerError, "could not store audio")
		return
	}
	defer os.Remove(audioPath)

	if s.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription not configured")
		return
	}
	tr, err := s.transcriber.Transcribe(r.Context(), audioPath)
	if err != nil {
		log.Error().Err(err).Msg("transcription_failed")
		writeError(w, http.StatusInternalServerError, "transcription failed")
		return
	}

	if tr.Text == "" {
		// Nothing was said, so nothing was classified: the risk field stays null.
		transcription := ""
		resp := &chatResponse{
			Answer:         emptyAudioAnswer,
			InterviewState: s.sessions.Peek(userID),
			ToolCalls:      []agent.ToolCallRecord{},
			Transcription:  &transcription,
		}
		s.logRequest(r, "voice", userID, http.StatusOK, start, nil)
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp := s.runTurn(r, userID, tr.Text, &agent.AudioMetrics{
		DurationSec: tr.DurationSec,
		WPM:         tr.WPM,
	})
	resp.Transcription = &tr.Text
	s.logRequest(r, "voice", userID, http.StatusOK, start, func(e *zerolog.Event) {
		e.Bool("flagged", resp.Flagged).Float64("audio_sec", tr.DurationSec)
	})
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(int64(s.maxUploadMB) << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file part")
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "no filename found")
		return
	}
	if s.extractor == nil || s.index == nil {
		writeError(w, http.StatusServiceUnavailable, "document indexing not configured")
		return
	}

	uploadPath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		log.Error().Err(err).Msg("upload_save_failed")
		writeError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	textPath, err := s.extractor.ExtractToText(r.Context(), uploadPath)
	if err != nil {
		os.Remove(uploadPath)
		log.Error().Err(err).Str("file", header.Filename).Msg("extraction_failed")
		writeError(w, http.StatusBadRequest, "could not extract text: "+err.Error())
		return
	}
	// The raw upload is only needed until a text artifact exists.
	if textPath != uploadPath {
		defer os.Remove(uploadPath)
	}
	if _, err := s.index.Index(r.Context(), textPath); err != nil {
		log.Error().Err(err).Str("file", header.Filename).Msg("indexing_failed")
		writeError(w, http.StatusInternalServerError, "could not index document")
		return
	}

	s.logRequest(r, "upload", "", http.StatusOK, start, func(e *zerolog.Event) {
		e.Str("file", header.Filename)
	})
	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "ok",
		"indexed_path": textPath,
	})
}

// saveUpload writes a multipart part to the uploads dir under its base name.
func (s *Server) saveUpload(file multipart.File, filename string) (string, error) {
	name := filepath.Base(filepath.Clean(filename))
	dst := filepath.Join(s.uploadsDir, name)
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// logRequest emits the per-request record shared by all endpoints.
func (s *Server) logRequest(r *http.Request, endpoint, userID string, status int, start time.Time, extra func(e *zerolog.Event)) {
	e := log.Info().
		Str("type", "request").
		Str("endpoint", endpoint).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).
		Int64("latency_ms", time.Since(start).Milliseconds())
	if userID != "" {
		e = e.Str("user_id", userID)
	}
	if extra != nil {
		extra(e)
	}
	e.Msg("request_completed")
}

// logBlocked records a gate trip at warn level.
func (s *Server) logBlocked(r *http.Request, userID, direction string, v *risk.Verdict) {
	log.Warn().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("user_id", userID).
		Str("direction", direction).
		Bool("heuristic", v.HeuristicFlag).
		Bool("harmful", v.HarmfulFlag).
		Strs("categories", v.Categories).
		Msg("risk_gate_blocked")
}
