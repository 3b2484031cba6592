// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/pdiddy/disclosure-engine/internal/httputil"
	"github.com/pdiddy/disclosure-engine/pkg/types"
)

// --- ChatBackend ---

type capturedChat struct {
	path    string
	query   string
	headers http.Header
	body    map[string]any
}

func chatServer(t *testing.T, status int, response string) (*httptest.Server, *capturedChat) {
	t.Helper()
	got := &capturedChat{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.headers = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&got.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, response)
	}))
	t.Cleanup(ts.Close)
	return ts, got
}

func chatCompletion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(b)
}

func TestChatBackendAzure(t *testing.T) {
	ts, got := chatServer(t, http.StatusOK, chatCompletion(validAnswer))

	b := &ChatBackend{
		Azure:       true,
		Endpoint:    ts.URL + "/",
		APIKey:      "az-key",
		APIVersion:  "2024-02-15-preview",
		Model:       "gpt-4o-deploy",
		Temperature: 0.2,
		MaxTokens:   1000,
		Client:      ts.Client(),
	}
	text, err := b.Annotate(context.Background(), Request{System: "sys", Prompt: "user prompt"})
	require.NoError(t, err)
	assert.Equal(t, validAnswer, text)

	assert.Equal(t, "/openai/deployments/gpt-4o-deploy/chat/completions", got.path)
	assert.Equal(t, "api-version=2024-02-15-preview", got.query)
	assert.Equal(t, "az-key", got.headers.Get("api-key"))
	assert.Empty(t, got.headers.Get("Authorization"))

	assert.NotContains(t, got.body, "model", "azure routes by deployment")
	assert.Equal(t, 0.2, got.body["temperature"])
	assert.Equal(t, float64(1000), got.body["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got.body["response_format"])
	assert.Equal(t, []any{
		map[string]any{"role": "system", "content": "sys"},
		map[string]any{"role": "user", "content": "user prompt"},
	}, got.body["messages"])
}

func TestChatBackendOpenAI(t *testing.T) {
	ts, got := chatServer(t, http.StatusOK, chatCompletion(validAnswer))

	old := openAIBaseURL
	openAIBaseURL = ts.URL + "/v1"
	defer func() { openAIBaseURL = old }()

	b := &ChatBackend{APIKey: "sk-test", Model: "gpt-4o-mini", Client: ts.Client()}
	_, err := b.Annotate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/chat/completions", got.path)
	assert.Equal(t, "Bearer sk-test", got.headers.Get("Authorization"))
	assert.Equal(t, "gpt-4o-mini", got.body["model"])
}

func TestChatBackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		response string
		want     string
	}{
		{"http error", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, "returned 401"},
		{"api error body", http.StatusOK, `{"error":{"message":"content filtered"}}`, "content filtered"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"empty content", http.StatusOK, chatCompletion("  "), "empty content"},
		{"not json", http.StatusOK, `<html>`, "decoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := chatServer(t, tt.status, tt.response)
			b := &ChatBackend{Endpoint: ts.URL, APIKey: "k", Model: "m", Client: ts.Client()}

			_, err := b.Annotate(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChatBackendAzureMisconfigured(t *testing.T) {
	_, err := (&ChatBackend{Azure: true, Model: "d"}).Annotate(context.Background(), Request{})
	assert.ErrorContains(t, err, "endpoint")

	_, err = (&ChatBackend{Azure: true, Endpoint: "https://x"}).Annotate(context.Background(), Request{})
	assert.ErrorContains(t, err, "deployment")
}

func TestChatBackendWithClassifier(t *testing.T) {
	ts, _ := chatServer(t, http.StatusOK, chatCompletion("```json\n"+validAnswer+"\n```"))
	b := &ChatBackend{Endpoint: ts.URL, APIKey: "k", Model: "m", Client: ts.Client()}

	got, err := New(b, Options{}).Classify(context.Background(), samplePublication())
	require.NoError(t, err)
	assert.Equal(t, types.StringList{"Russian Science Foundation"}, got.FundingSources)
}

// --- GeminiBackend ---

type fakeGenerator struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeminiBackend(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(validAnswer)}
	b := newGeminiBackend(gen, "", 0.2, 1000)

	text, err := b.Annotate(context.Background(), Request{System: "sys", Prompt: "user prompt"})
	require.NoError(t, err)
	assert.Equal(t, validAnswer, text)

	assert.Equal(t, defaultGeminiModel, gen.model)
	require.Len(t, gen.contents, 1)
	require.Len(t, gen.contents[0].Parts, 1)
	assert.Equal(t, "user prompt", gen.contents[0].Parts[0].Text)

	require.NotNil(t, gen.config)
	assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
	assert.Equal(t, int32(1000), gen.config.MaxOutputTokens)
	require.NotNil(t, gen.config.Temperature)
	assert.InDelta(t, 0.2, *gen.config.Temperature, 1e-6)
	require.NotNil(t, gen.config.SystemInstruction)
	assert.Equal(t, "sys", gen.config.SystemInstruction.Parts[0].Text)
}

func TestGeminiBackendErrors(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
		want string
	}{
		{"api error", &fakeGenerator{err: errors.New("quota exceeded")}, "quota exceeded"},
		{"nil response", &fakeGenerator{}, "no candidates"},
		{"no candidates", &fakeGenerator{resp: &genai.GenerateContentResponse{}}, "no candidates"},
		{"empty text", &fakeGenerator{resp: textResponse("")}, "empty content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newGeminiBackend(tt.gen, "gemini-test", 0, 0).Annotate(context.Background(), Request{Prompt: "p"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// --- NewAnnotator ---

func TestNewAnnotator(t *testing.T) {
	tests := []struct {
		name    string
		cfg     types.ClassifierConfig
		check   func(t *testing.T, a Annotator)
		wantErr string
	}{
		{
			name: "azure default",
			cfg: types.ClassifierConfig{
				AIConfig: types.AIConfig{Model: "deploy", APIKey: "k"},
				Endpoint: "https://res.openai.azure.com", APIVersion: "2024-02-15-preview",
			},
			check: func(t *testing.T, a Annotator) {
				cb, ok := a.(*ChatBackend)
				require.True(t, ok)
				assert.True(t, cb.Azure)
				assert.Equal(t, "deploy", cb.Model)
				assert.Equal(t, defaultMaxRetries, cb.MaxRetries)
			},
		},
		{
			name: "openai",
			cfg:  types.ClassifierConfig{AIConfig: types.AIConfig{Model: "gpt-4o", APIKey: "k", MaxRetries: 2}, Provider: "OpenAI"},
			check: func(t *testing.T, a Annotator) {
				cb, ok := a.(*ChatBackend)
				require.True(t, ok)
				assert.False(t, cb.Azure)
				assert.Equal(t, 2, cb.MaxRetries)
			},
		},
		{
			name: "gemini",
			cfg:  types.ClassifierConfig{AIConfig: types.AIConfig{APIKey: "k"}, Provider: types.ClassifierGemini},
			check: func(t *testing.T, a Annotator) {
				gb, ok := a.(*GeminiBackend)
				require.True(t, ok)
				assert.Equal(t, defaultGeminiModel, gb.model)
			},
		},
		{name: "azure without key", cfg: types.ClassifierConfig{}, wantErr: "API key"},
		{name: "gemini without key", cfg: types.ClassifierConfig{Provider: types.ClassifierGemini}, wantErr: "API key"},
		{name: "unknown", cfg: types.ClassifierConfig{Provider: "bard"}, wantErr: "unknown classifier provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAnnotator(context.Background(), tt.cfg, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, a)
		})
	}
}

func TestChatBackendThrottleRetriesBounded(t *testing.T) {
	old := httputil.RetryBaseDelay
	httputil.RetryBaseDelay = time.Millisecond
	defer func() { httputil.RetryBaseDelay = old }()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, err := NewAnnotator(context.Background(), types.ClassifierConfig{
		AIConfig: types.AIConfig{Model: "gpt-4o", APIKey: "k", MaxRetries: 2},
		Provider: types.ClassifierOpenAI,
		Endpoint: srv.URL,
	}, srv.Client())
	require.NoError(t, err)

	_, err = a.Annotate(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(3), calls.Load(), "one attempt plus two retries")
}

func TestResolvedModel(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.ClassifierConfig
		want string
	}{
		{"gemini default", types.ClassifierConfig{Provider: "Gemini"}, defaultGeminiModel},
		{"gemini explicit", types.ClassifierConfig{Provider: types.ClassifierGemini, AIConfig: types.AIConfig{Model: "gemini-2.5-pro"}}, "gemini-2.5-pro"},
		{"azure deployment", types.ClassifierConfig{AIConfig: types.AIConfig{Model: "deploy"}}, "deploy"},
		{"openai empty", types.ClassifierConfig{Provider: types.ClassifierOpenAI}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvedModel(tt.cfg))
		})
	}
}
