package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/UWellLabs/uwell/internal/chat"
	"github.com/UWellLabs/uwell/internal/models"
	"github.com/UWellLabs/uwell/internal/store"
	"github.com/UWellLabs/uwell/internal/vision"
)

// stubProvider returns a fixed reply or error for every call.
type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(ctx context.Context, history []models.Turn, message, lang string) (string, error) {
	return p.reply, p.err
}

func instantBackOff() backoff.BackOff {
	return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, chat.MaxAttempts-1)
}

func newTestServer(t *testing.T, p *stubProvider, visionClient *vision.Client) (*Server, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	orchestrator := chat.NewOrchestrator(p, chat.WithBackOffFactory(instantBackOff))
	return NewServer(orchestrator, visionClient, st, t.TempDir()), st
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestChatHandlerMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{reply: "hello"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	w := httptest.NewRecorder()
	s.chatHandler(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", w.Code)
	}
	if allow := w.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Expected Allow: POST header, got %q", allow)
	}
}

func TestChatHandlerInvalidJSON(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{reply: "hello"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	s.chatHandler(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid JSON, got %d", w.Code)
	}
}

func TestChatHandlerEmptyMessage(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{reply: "hello"}, nil)

	w := postJSON(t, s.chatHandler, "/api/chat", models.ChatRequest{Message: "  "})

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty message, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Error == "" {
		t.Error("Expected error message in response")
	}
}

func TestChatHandlerSuccessRecordsTurns(t *testing.T) {
	s, st := newTestServer(t, &stubProvider{reply: "That sounds tough."}, nil)

	w := postJSON(t, s.chatHandler, "/api/chat", models.ChatRequest{
		SessionID: "sess_1",
		Message:   "long day at work",
		Lang:      "en",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var reply models.ChatReply
	if err := json.NewDecoder(w.Body).Decode(&reply); err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	if reply.Type != models.ReplyTypeReply || reply.Text != "That sounds tough." {
		t.Errorf("Unexpected reply: %+v", reply)
	}

	turns, err := st.GetTurns("sess_1")
	if err != nil {
		t.Fatalf("GetTurns failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("Expected user and model turn recorded, got %d", len(turns))
	}
	if turns[0].Role != models.RoleUser || turns[1].Role != models.RoleModel {
		t.Errorf("Unexpected recorded roles: %+v", turns)
	}
}

func TestChatHandlerCrisisScenario(t *testing.T) {
	// Provider answers normally, but the raw input carries a crisis keyword.
	s, _ := newTestServer(t, &stubProvider{reply: "Have you tried a walk?"}, nil)

	w := postJSON(t, s.chatHandler, "/api/chat", models.ChatRequest{
		Message: "I feel hopeless",
		Lang:    "en",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var reply models.ChatReply
	if err := json.NewDecoder(w.Body).Decode(&reply); err != nil {
		t.Fatalf("Failed to decode reply: %v", err)
	}
	if reply.Type != models.ReplyTypeCrisis {
		t.Errorf("Expected crisis reply, got %q", reply.Type)
	}
	names := map[string]bool{}
	for _, h := range reply.Helplines {
		names[h.Name] = true
	}
	if !names["AASRA"] || !names["NIMHANS"] {
		t.Errorf("Expected AASRA and NIMHANS helplines, got %+v", reply.Helplines)
	}
}

func TestChatHandlerQuotaExceeded(t *testing.T) {
	// A nil provider is the only hard-failure path out of the orchestrator.
	st := store.NewInMemoryStore()
	s := NewServer(chat.NewOrchestrator(nil), nil, st, t.TempDir())

	w := postJSON(t, s.chatHandler, "/api/chat", models.ChatRequest{Message: "hello"})

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Error != "Quota exceeded" {
		t.Errorf("Expected Quota exceeded, got %q", resp.Error)
	}
}

func multipartImageRequest(t *testing.T, withImage bool, lang, sessionID string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if withImage {
		part, err := writer.CreateFormFile("image", "pose.jpg")
		if err != nil {
			t.Fatalf("Failed to create image part: %v", err)
		}
		part.Write([]byte("fake-image-bytes"))
	}
	if lang != "" {
		writer.WriteField("lang", lang)
	}
	if sessionID != "" {
		writer.WriteField("sessionId", sessionID)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAnalyzeHandlerMissingImage(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{}, nil)

	w := httptest.NewRecorder()
	s.analyzeHandler(w, multipartImageRequest(t, false, "en", ""))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing image, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Error != "Missing image file" {
		t.Errorf("Expected Missing image file, got %q", resp.Error)
	}
}

func TestAnalyzeHandlerFallbackWhenNoUpstream(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{}, nil)

	w := httptest.NewRecorder()
	s.analyzeHandler(w, multipartImageRequest(t, true, "en", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with fallback, got %d", w.Code)
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Type != models.ReplyTypeAnalysis {
		t.Errorf("Expected analysis type, got %q", result.Type)
	}
	if result.Score != 75 {
		t.Errorf("Expected canned score 75, got %d", result.Score)
	}
	if len(result.Recommendations) == 0 {
		t.Error("Fallback recommendations must never be empty")
	}
}

func TestAnalyzeHandlerFallbackWhenUpstreamFails(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	visionClient, err := vision.NewClient(vision.WithBaseURL(upstream.URL))
	if err != nil {
		t.Fatalf("Failed to create vision client: %v", err)
	}
	s, _ := newTestServer(t, &stubProvider{}, visionClient)

	w := httptest.NewRecorder()
	s.analyzeHandler(w, multipartImageRequest(t, true, "hi", ""))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with fallback, got %d", w.Code)
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Score != 75 {
		t.Errorf("Expected canned fallback, got %+v", result)
	}
}

func TestAnalyzeHandlerRelaysUpstreamResult(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"summary":"Slight slouch","score":68,"recommendations":["Sit upright"]}`))
	}))
	defer upstream.Close()

	visionClient, err := vision.NewClient(vision.WithBaseURL(upstream.URL))
	if err != nil {
		t.Fatalf("Failed to create vision client: %v", err)
	}
	s, st := newTestServer(t, &stubProvider{}, visionClient)

	w := httptest.NewRecorder()
	s.analyzeHandler(w, multipartImageRequest(t, true, "en", "sess_1"))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var result models.AnalysisResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Score != 68 || result.Summary != "Slight slouch" {
		t.Errorf("Unexpected relayed result: %+v", result)
	}

	// The analysis was recorded for the session, so a future-cutoff prune
	// removes exactly one row.
	removed, err := st.PruneBefore(timeAfterNow())
	if err != nil {
		t.Fatalf("PruneBefore failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 recorded analysis, got %d pruned rows", removed)
	}
}

func timeAfterNow() time.Time {
	return time.Now().Add(time.Minute)
}

func TestPostureHandlerMissingLandmarks(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{}, nil)

	w := postJSON(t, s.postureHandler, "/api/posture", models.PostureRequest{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing landmarks, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	if resp.Error != "Missing landmarks" {
		t.Errorf("Expected Missing landmarks, got %q", resp.Error)
	}
}

func TestPostureHandlerScoresFrame(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{}, nil)

	w := postJSON(t, s.postureHandler, "/api/posture", models.PostureRequest{
		Landmarks: []models.Landmark{{X: 0.5, Y: 0.5, Visibility: 0.9}},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp models.PostureResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode posture response: %v", err)
	}
	if resp.Score < 0 || resp.Score > 100 {
		t.Errorf("Score out of range: %d", resp.Score)
	}
	if len(resp.Recommendations) == 0 {
		t.Error("Expected at least one recommendation")
	}
}

func TestInsightsHandler(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{}, nil)

	w := postJSON(t, s.insightsHandler, "/api/insights", models.InsightsRequest{
		Entries: []models.JournalEntry{{Mood: "ok", Text: "steady week"}},
		Lang:    "en",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp models.InsightsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode insights response: %v", err)
	}
	if resp.Insight == "" {
		t.Error("Expected non-empty insight")
	}
}

func TestHealthHandler(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.healthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}

	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	w = httptest.NewRecorder()
	s.healthHandler(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for POST /health, got %d", w.Code)
	}
}

func TestHandlerServesStaticFiles(t *testing.T) {
	staticDir := t.TempDir()
	content := "<html><body>U-Well</body></html>"
	if err := os.WriteFile(filepath.Join(staticDir, "index.html"), []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write static file: %v", err)
	}

	orchestrator := chat.NewOrchestrator(&stubProvider{reply: "hi"}, chat.WithBackOffFactory(instantBackOff))
	s := NewServer(orchestrator, nil, store.NewInMemoryStore(), staticDir)
	handler := s.Handler(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for static index, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "U-Well") {
		t.Errorf("Expected index content, got %q", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header from middleware")
	}
}

func TestHandlerCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, &stubProvider{reply: "hi"}, nil)
	handler := s.Handler([]string{"*"})

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("Expected origin echoed, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Errorf("Expected POST allowed, got %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}
