package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/"

// Content is one conversation turn. Role is "user" or "model".
type Content struct {
	Role string
	Text string
}

type GeminiService struct {
	ApiKey  string
	Model   string
	baseURL string
}

func NewGeminiService(apiKey, model string) *GeminiService {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiService{ApiKey: apiKey, Model: model, baseURL: defaultBaseURL}
}

// WithBaseURL overrides the API host (used by tests).
func (g *GeminiService) WithBaseURL(baseURL string) *GeminiService {
	g.baseURL = baseURL
	return g
}

// GenerateContent sends the conversation and returns the first candidate's text.
func (g *GeminiService) GenerateContent(ctx context.Context, systemInstruction string, contents []Content) (string, error) {
	url := g.baseURL + g.Model + ":generateContent?key=" + g.ApiKey

	turns := make([]map[string]interface{}, 0, len(contents))
	for _, c := range contents {
		role := c.Role
		if role != "model" {
			role = "user"
		}
		turns = append(turns, map[string]interface{}{
			"role":  role,
			"parts": []map[string]string{{"text": c.Text}},
		})
	}
	payload := map[string]interface{}{
		"contents": turns,
		"generationConfig": map[string]interface{}{
			"temperature": 0.4,
		},
	}
	if systemInstruction != "" {
		payload["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]string{{"text": systemInstruction}},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Gemini API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if len(result.Candidates) > 0 && len(result.Candidates[0].Content.Parts) > 0 {
		return result.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("no content returned")
}
