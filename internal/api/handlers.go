// Package api provides HTTP handlers for U-Well endpoints.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/UWellLabs/uwell/internal/insights"
	"github.com/UWellLabs/uwell/internal/models"
	"github.com/UWellLabs/uwell/internal/posture"
	"github.com/UWellLabs/uwell/internal/vision"
)

// multipartMemoryLimit is the in-memory parse budget for uploads; larger
// parts spill to disk up to the request body cap.
const multipartMemoryLimit = 8 << 20

// chatHandler handles POST /api/chat.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.chatHandler: processing chat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.chatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.chatHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.chatHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	reply, err := s.orchestrator.Respond(r.Context(), req)
	if err != nil {
		// Final fallback past the soft-apology path.
		slog.Error("Server.chatHandler: orchestrator produced no reply", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, http.StatusTooManyRequests, models.Error("Quota exceeded"))
		return
	}

	s.recordTurns(req, reply)

	slog.Info("Server.chatHandler: reply sent", "type", reply.Type, "sessionID", req.SessionID, "request_photo", reply.RequestPhoto)
	writeJSONResponse(w, http.StatusOK, reply)
}

// recordTurns appends the exchanged turns to the history store, best-effort.
func (s *Server) recordTurns(req models.ChatRequest, reply models.ChatReply) {
	if s.st == nil || req.SessionID == "" {
		return
	}
	if err := s.st.AddTurn(req.SessionID, req.Lang, models.Turn{Role: models.RoleUser, Text: req.Message}); err != nil {
		slog.Error("Server.recordTurns: failed to record user turn", "error", err, "sessionID", req.SessionID)
		return
	}
	if err := s.st.AddTurn(req.SessionID, req.Lang, models.Turn{Role: models.RoleModel, Text: reply.Text}); err != nil {
		slog.Error("Server.recordTurns: failed to record model turn", "error", err, "sessionID", req.SessionID)
	}
}

// analyzeHandler handles POST /api/analyze. Upstream failures never surface
// to the client; only a missing file is a client error.
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.analyzeHandler: processing analysis request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.analyzeHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Bound the upload; the multipart envelope needs a little headroom.
	r.Body = http.MaxBytesReader(w, r.Body, models.MaxImageBytes+multipartMemoryLimit)
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		slog.Warn("Server.analyzeHandler: failed to parse multipart form", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing image file"))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		slog.Warn("Server.analyzeHandler: no image file attached", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing image file"))
		return
	}
	defer file.Close()

	lang := models.NormalizeLang(r.FormValue("lang"))
	sessionID := r.FormValue("sessionId")
	slog.Debug("Server.analyzeHandler: relaying image", "filename", header.Filename, "size", header.Size, "lang", lang, "sessionID", sessionID)

	result, analyzeErr := s.analyze(r, file, header.Filename, sessionID, lang)
	if analyzeErr != nil {
		// Fallback-over-failure: the client-visible contract never surfaces
		// a hard error for this step.
		slog.Warn("Server.analyzeHandler: substituting fallback analysis", "error", analyzeErr, "sessionID", sessionID)
		result = vision.Fallback(lang)
	}

	if s.st != nil && sessionID != "" {
		if err := s.st.AddAnalysis(sessionID, result); err != nil {
			slog.Error("Server.analyzeHandler: failed to record analysis", "error", err, "sessionID", sessionID)
		}
	}

	slog.Info("Server.analyzeHandler: analysis returned", "score", result.Score, "recommendations", len(result.Recommendations), "fallback", analyzeErr != nil)
	writeJSONResponse(w, http.StatusOK, result)
}

// errNoUpstream marks the vision client being unconfigured.
var errNoUpstream = errors.New("pose-analysis upstream not configured")

func (s *Server) analyze(r *http.Request, image io.Reader, filename, sessionID, lang string) (models.AnalysisResult, error) {
	if s.vision == nil {
		return models.AnalysisResult{}, errNoUpstream
	}
	return s.vision.Analyze(r.Context(), image, filename, sessionID, lang)
}

// postureHandler handles POST /api/posture.
func (s *Server) postureHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.postureHandler: processing posture frame", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.postureHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.PostureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.postureHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.postureHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing landmarks"))
		return
	}

	lang := models.NormalizeLang(r.URL.Query().Get("lang"))
	resp := posture.Assess(req.Landmarks, lang)
	slog.Debug("Server.postureHandler: frame assessed", "score", resp.Score, "sessionID", req.SessionID)
	writeJSONResponse(w, http.StatusOK, resp)
}

// insightsHandler handles POST /api/insights.
func (s *Server) insightsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.insightsHandler: processing insights request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.insightsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.InsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.insightsHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	insight := insights.Pick(req.Entries, req.Lang)
	writeJSONResponse(w, http.StatusOK, models.InsightsResponse{Insight: insight})
}

// healthHandler provides a health check endpoint for monitoring.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "ok",
		"service":   "uwell-proxy",
		"uptime":    time.Since(s.started).Round(time.Second).Seconds(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSONResponse(w, http.StatusOK, healthData)
}
