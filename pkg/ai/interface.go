package ai

import (
	"context"
	"time"
)

// Turn is one prior message in the conversation.
type Turn struct {
	FromCustomer bool
	Text         string
}

// ReplyRequest is everything a provider needs to draft one reply.
type ReplyRequest struct {
	SystemPrompt string
	Channel      string
	History      []Turn
	Similar      []string // past replies to similar questions
	Message      string
	Now          time.Time
}

// ReplyGenerator drafts a reply to the latest customer message.
// Implement this interface to add new AI providers.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, req ReplyRequest) (string, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
