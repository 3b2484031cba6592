// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/disclosure-engine/internal/httputil"
)

// openAIBaseURL is the default OpenAI API base. Package-level var for test
// substitution.
var openAIBaseURL = "https://api.openai.com/v1"

// ChatBackend calls an OpenAI-compatible chat completions endpoint. With
// Azure set it targets an Azure OpenAI deployment (api-key header,
// api-version parameter); otherwise it targets the OpenAI API with a bearer
// token.
type ChatBackend struct {
	Azure bool
	// Endpoint is the Azure resource endpoint, or an OpenAI-compatible base
	// URL. Empty means the public OpenAI API.
	Endpoint   string
	APIKey     string
	APIVersion string
	// Model is the model name, or the deployment name for Azure.
	Model       string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
	// MaxRetries bounds HTTP 429/503 retries inside one call.
	MaxRetries int
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Annotate sends req as a system + user message pair and returns the first
// choice's content.
func (c *ChatBackend) Annotate(ctx context.Context, req Request) (string, error) {
	endpoint, err := c.url()
	if err != nil {
		return "", err
	}

	body := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt},
		},
		Temperature:    c.Temperature,
		MaxTokens:      c.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}
	if !c.Azure {
		body.Model = c.Model
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Azure {
		httpReq.Header.Set("api-key", c.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := httputil.DoWithRetry(ctx, c.Client, httpReq, c.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling chat completions API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat completions API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var cResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding chat completions response: %w", err)
	}
	if cResp.Error != nil {
		return "", fmt.Errorf("chat completions API error: %s", cResp.Error.Message)
	}
	if len(cResp.Choices) == 0 {
		return "", errors.New("chat completions API returned no choices")
	}
	content := cResp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("chat completions API returned empty content (finish_reason %q)", cResp.Choices[0].FinishReason)
	}
	return content, nil
}

func (c *ChatBackend) url() (string, error) {
	if !c.Azure {
		base := c.Endpoint
		if base == "" {
			base = openAIBaseURL
		}
		return strings.TrimRight(base, "/") + "/chat/completions", nil
	}

	if c.Endpoint == "" {
		return "", errors.New("azure endpoint is not configured")
	}
	if c.Model == "" {
		return "", errors.New("azure deployment is not configured")
	}
	u := strings.TrimRight(c.Endpoint, "/") + "/openai/deployments/" + url.PathEscape(c.Model) + "/chat/completions"
	if c.APIVersion != "" {
		u += "?" + url.Values{"api-version": {c.APIVersion}}.Encode()
	}
	return u, nil
}
