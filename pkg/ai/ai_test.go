package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type stubGenerator struct {
	replies []string
	errs    []error
	calls   int
}

func (s *stubGenerator) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return "", errors.New("unexpected call")
}

func TestFallback_PrimarySucceeds(t *testing.T) {
	primary := &stubGenerator{replies: []string{"from primary"}}
	fallback := &stubGenerator{}
	out, err := NewFallbackService(primary, fallback).GenerateReply(context.Background(), ReplyRequest{Message: "hi"})
	if err != nil || out != "from primary" {
		t.Fatalf("unexpected %q, %v", out, err)
	}
	if fallback.calls != 0 {
		t.Error("fallback must not be called")
	}
}

func TestFallback_UsesFallbackOnError(t *testing.T) {
	primary := &stubGenerator{errs: []error{errors.New("Gemini API error (500)")}}
	fallback := &stubGenerator{replies: []string{"from fallback"}}
	out, err := NewFallbackService(primary, fallback).GenerateReply(context.Background(), ReplyRequest{})
	if err != nil || out != "from fallback" {
		t.Fatalf("unexpected %q, %v", out, err)
	}
}

func TestFallback_RetriesPrimaryAfterQuotaAndUnreachableFallback(t *testing.T) {
	primary := &stubGenerator{
		errs:    []error{errors.New("Gemini API error (429): RESOURCE_EXHAUSTED"), nil},
		replies: []string{"", "second try"},
	}
	fallback := &stubGenerator{errs: []error{errors.New("dial tcp 127.0.0.1:11434: connection refused")}}
	out, err := NewFallbackService(primary, fallback).GenerateReply(context.Background(), ReplyRequest{})
	if err != nil || out != "second try" {
		t.Fatalf("unexpected %q, %v", out, err)
	}
	if primary.calls != 2 {
		t.Errorf("expected 2 primary calls, got %d", primary.calls)
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	p := BuildSystemPrompt(ReplyRequest{
		SystemPrompt: "You represent Acme.",
		Channel:      "whatsapp",
		Now:          now,
		Similar:      []string{"Our demo lasts 30 minutes."},
	})
	for _, want := range []string{"You represent Acme.", "whatsapp", "2026-05-04 10:00", "is_scheduling_request", "Our demo lasts 30 minutes."} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestOllama_GenerateReply(t *testing.T) {
	var got struct {
		Messages []ollamaMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"Sure!"},"done":true}`))
	}))
	defer srv.Close()

	o := NewOllamaService(srv.URL, "llama3")
	out, err := o.GenerateReply(context.Background(), ReplyRequest{
		History: []Turn{{FromCustomer: true, Text: "hello"}, {Text: "hi, how can I help?"}},
		Message: "can we talk tomorrow?",
	})
	if err != nil || out != "Sure!" {
		t.Fatalf("unexpected %q, %v", out, err)
	}
	if len(got.Messages) != 4 {
		t.Fatalf("expected system + 2 history + message, got %d", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[2].Role != "assistant" || got.Messages[3].Role != "user" {
		t.Errorf("unexpected roles %+v", got.Messages)
	}
}

func TestNewReplyGenerator(t *testing.T) {
	if _, err := NewReplyGenerator(Config{Provider: ProviderGemini}, nil); err == nil {
		t.Error("expected error without gemini key")
	}
	g, err := NewReplyGenerator(Config{Provider: ProviderAuto, GeminiAPIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, ok := g.(*FallbackService); !ok {
		t.Errorf("expected fallback service, got %T", g)
	}
	g, _ = NewReplyGenerator(Config{}, nil)
	if _, ok := g.(*OllamaService); !ok {
		t.Errorf("expected ollama service, got %T", g)
	}
}
