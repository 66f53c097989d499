package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UWellLabs/uwell/internal/models"
)

// geminiTestServer captures the request body and serves a fixed response.
func geminiTestServer(t *testing.T, status int, responseBody string, captured *geminiRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("Expected generateContent path, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") == "" {
			t.Error("Expected API key in query string")
		}
		if captured != nil {
			raw, _ := io.ReadAll(r.Body)
			if err := json.Unmarshal(raw, captured); err != nil {
				t.Errorf("Failed to decode request body: %v", err)
			}
		}
		w.WriteHeader(status)
		w.Write([]byte(responseBody))
	}))
}

func candidateBody(text string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	})
	return string(body)
}

func TestGeminiGenerateExtractsCandidateText(t *testing.T) {
	server := geminiTestServer(t, http.StatusOK, candidateBody("You are doing great."), nil)
	defer server.Close()

	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	reply, err := p.Generate(context.Background(), nil, "how do I sit better?", "en")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != "You are doing great." {
		t.Errorf("Expected candidate text, got %q", reply)
	}
}

func TestGeminiGenerateUnwrapsFencedJSONString(t *testing.T) {
	// Gemini frequently wraps the reply in a fenced, JSON-encoded string.
	fenced := "```json\n\"{\\\"type\\\":\\\"reply\\\",\\\"text\\\":\\\"hello\\\"}\"\n```"
	server := geminiTestServer(t, http.StatusOK, candidateBody(fenced), nil)
	defer server.Close()

	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	reply, err := p.Generate(context.Background(), nil, "hi", "en")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply != `{"type":"reply","text":"hello"}` {
		t.Errorf("Expected unwrapped JSON payload, got %q", reply)
	}
}

func TestGeminiGeneratePromptFlattensHistory(t *testing.T) {
	var captured geminiRequest
	server := geminiTestServer(t, http.StatusOK, candidateBody("ok"), &captured)
	defer server.Close()

	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	history := []models.Turn{
		{Role: models.RoleUser, Text: "my back hurts"},
		{Role: models.RoleModel, Text: "try stretching"},
	}
	if _, err := p.Generate(context.Background(), history, "it still hurts", "hi"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 1 {
		t.Fatalf("Expected single content with single part, got %+v", captured)
	}
	prompt := captured.Contents[0].Parts[0].Text
	for _, want := range []string{
		"user: my back hurts\n",
		"model: try stretching\n",
		"user: it still hurts",
		"Respond in Hindi.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("Prompt missing %q:\n%s", want, prompt)
		}
	}
	if !strings.HasSuffix(prompt, "user: it still hurts") {
		t.Errorf("Expected new message last, got:\n%s", prompt)
	}
}

func TestGeminiGenerateNonOKStatusIsError(t *testing.T) {
	server := geminiTestServer(t, http.StatusTooManyRequests, `{"error":{"message":"quota"}}`, nil)
	defer server.Close()

	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	if _, err := p.Generate(context.Background(), nil, "hi", "en"); err == nil {
		t.Error("Expected error for non-OK status, got nil")
	}
}

func TestGeminiGenerateNoCandidatesIsEmptySuccess(t *testing.T) {
	server := geminiTestServer(t, http.StatusOK, `{"candidates":[]}`, nil)
	defer server.Close()

	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	reply, err := p.Generate(context.Background(), nil, "hi", "en")
	if err != nil {
		t.Errorf("Expected empty success for missing candidates, got error %v", err)
	}
	if reply != "" {
		t.Errorf("Expected empty reply, got %q", reply)
	}
}

func TestGeminiGenerateUnparseableBodyIsEmptySuccess(t *testing.T) {
	server := geminiTestServer(t, http.StatusOK, "not json at all", nil)
	defer server.Close()

	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	reply, err := p.Generate(context.Background(), nil, "hi", "en")
	if err != nil {
		t.Errorf("Expected empty success for unparseable body, got error %v", err)
	}
	if reply != "" {
		t.Errorf("Expected empty reply, got %q", reply)
	}
}

func TestGeminiGenerateUnreachableUpstreamIsError(t *testing.T) {
	p, err := NewGemini(WithAPIKey("test-key"), WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("Failed to create gemini adapter: %v", err)
	}

	if _, err := p.Generate(context.Background(), nil, "hi", "en"); err == nil {
		t.Error("Expected transport error for unreachable upstream, got nil")
	}
}
