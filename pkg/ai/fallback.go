package ai

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
)

// FallbackService routes replies to Gemini first and falls back to Ollama
type FallbackService struct {
	primary  ReplyGenerator
	fallback ReplyGenerator
}

// NewFallbackService creates a new fallback service with both providers
func NewFallbackService(primary, fallback ReplyGenerator) *FallbackService {
	return &FallbackService{
		primary:  primary,
		fallback: fallback,
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// GenerateReply tries the primary provider, then the fallback. When the
// fallback cannot be reached at all and the primary only hit a quota,
// the primary is retried once.
func (f *FallbackService) GenerateReply(ctx context.Context, req ReplyRequest) (string, error) {
	var primaryErr error
	if f.primary != nil {
		result, err := f.primary.GenerateReply(ctx, req)
		if err == nil {
			return result, nil
		}
		primaryErr = err
		if isQuotaError(err) {
			log.Printf("[AI] primary quota exhausted: %v, falling back", err)
		} else {
			log.Printf("[AI] primary error: %v, falling back", err)
		}
	}

	if f.fallback != nil {
		result, err := f.fallback.GenerateReply(ctx, req)
		if err == nil {
			return result, nil
		}
		if isConnectionError(err) && isQuotaError(primaryErr) && ctx.Err() == nil {
			log.Printf("[AI] fallback unreachable: %v, retrying primary", err)
			return f.primary.GenerateReply(ctx, req)
		}
		return "", fmt.Errorf("fallback reply generation failed: %w", err)
	}

	if primaryErr != nil {
		return "", fmt.Errorf("reply generation failed: %w", primaryErr)
	}
	return "", fmt.Errorf("no AI provider available for replies")
}
