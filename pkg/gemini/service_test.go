package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateContent(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("missing api key")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Hi Jane"}]}}]}`))
	}))
	defer srv.Close()

	g := NewGeminiService("k", "gemini-test").WithBaseURL(srv.URL + "/")
	out, err := g.GenerateContent(context.Background(), "be brief", []Content{
		{Role: "user", Text: "hello"},
		{Role: "model", Text: "hi"},
		{Role: "user", Text: "book a demo"},
	})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if out != "Hi Jane" {
		t.Errorf("unexpected output %q", out)
	}
	if turns, _ := got["contents"].([]interface{}); len(turns) != 3 {
		t.Errorf("expected 3 turns, got %v", got["contents"])
	}
	if _, ok := got["systemInstruction"]; !ok {
		t.Error("expected system instruction")
	}
}

func TestGenerateContent_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	g := NewGeminiService("k", "m").WithBaseURL(srv.URL + "/")
	_, err := g.GenerateContent(context.Background(), "", []Content{{Role: "user", Text: "x"}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
