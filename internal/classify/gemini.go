// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// contentGenerator is the subset of *genai.Models used by GeminiBackend.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend calls the Google Gemini API through the genai SDK and asks for
// a JSON response.
type GeminiBackend struct {
	models      contentGenerator
	model       string
	temperature float32
	maxTokens   int32
}

// NewGeminiBackend creates a Gemini backend for model using apiKey.
func NewGeminiBackend(ctx context.Context, apiKey, model string, temperature float64, maxTokens int) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return newGeminiBackend(client.Models, model, temperature, maxTokens), nil
}

func newGeminiBackend(models contentGenerator, model string, temperature float64, maxTokens int) *GeminiBackend {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiBackend{
		models:      models,
		model:       model,
		temperature: float32(temperature),
		maxTokens:   int32(maxTokens),
	}
}

// Annotate sends req with the system instruction and returns the response
// text.
func (g *GeminiBackend) Annotate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if g.maxTokens > 0 {
		cfg.MaxOutputTokens = g.maxTokens
	}

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("Gemini API returned no candidates")
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("Gemini API returned empty content (finish reason %q)", resp.Candidates[0].FinishReason)
	}
	return text, nil
}
