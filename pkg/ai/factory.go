package ai

import (
	"context"
	"fmt"

	"relaydesk-backend/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama" or "auto"

	// Gemini config
	GeminiAPIKey string
	GeminiModel  string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// GeminiGenerator adapts the Gemini REST client to ReplyGenerator.
type GeminiGenerator struct {
	client *gemini.GeminiService
}

func NewGeminiGenerator(client *gemini.GeminiService) *GeminiGenerator {
	return &GeminiGenerator{client: client}
}

func (g *GeminiGenerator) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	contents := make([]gemini.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := "model"
		if t.FromCustomer {
			role = "user"
		}
		contents = append(contents, gemini.Content{Role: role, Text: t.Text})
	}
	contents = append(contents, gemini.Content{Role: "user", Text: req.Message})
	return g.client.GenerateContent(ctx, BuildSystemPrompt(req), contents)
}

// NewReplyGenerator creates a ReplyGenerator based on the config.
// "auto" uses Gemini with Ollama as fallback when a key is present.
func NewReplyGenerator(cfg Config, ollama *OllamaService) (ReplyGenerator, error) {
	if ollama == nil {
		ollama = NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
	}
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiGenerator(gemini.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)), nil

	case ProviderOllama:
		return ollama, nil

	default:
		if cfg.GeminiAPIKey != "" {
			return NewFallbackService(NewGeminiGenerator(gemini.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel)), ollama), nil
		}
		return ollama, nil
	}
}
