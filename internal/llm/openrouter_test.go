package llm

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenRouterProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenRouterProvider(OpenRouterConfig{
		APIKey: "test-key",
		APIURL: server.URL,
	})
}

func TestOpenRouter_ValidateConnection(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[]}`))
	})

	ok, msg := p.ValidateConnection()
	assert.True(t, ok)
	assert.Equal(t, "Connected to OpenRouter", msg)
}

func TestOpenRouter_ValidateConnection_NoKey(t *testing.T) {
	t.Parallel()

	p := NewOpenRouterProvider(OpenRouterConfig{})
	ok, msg := p.ValidateConnection()
	assert.False(t, ok)
	assert.Contains(t, msg, "API key")
}

func TestOpenRouter_ListModels_PricingPerMillion(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"data":[
			{"id":"openai/gpt-4o","name":"GPT-4o","context_length":128000,
			 "pricing":{"prompt":"0.0000025","completion":"0.00001"},
			 "top_provider":{"max_completion_tokens":16384}},
			{"id":"meta/llama-3","pricing":{"prompt":"bogus"}}
		]}`))
	})

	models, err := p.ListModels()
	require.NoError(t, err)
	require.Len(t, models, 2)

	// Sorted by name.
	assert.Equal(t, "meta/llama-3", models[0].Name)
	assert.Equal(t, "meta/llama-3", models[0].DisplayName)
	assert.Zero(t, models[0].PromptPrice)

	gpt := models[1]
	assert.Equal(t, "openai/gpt-4o", gpt.Name)
	assert.Equal(t, "GPT-4o", gpt.DisplayName)
	assert.Equal(t, 128000, gpt.InputTokenLimit)
	assert.Equal(t, 16384, gpt.OutputTokenLimit)
	assert.InDelta(t, 2.5, gpt.PromptPrice, 1e-9)
	assert.InDelta(t, 10.0, gpt.CompletionPrice, 1e-9)
}

func TestOpenRouter_GenerateContent(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Write([]byte(`{"choices":[{"message":{"content":"[1] Halo"}}]}`))
	})

	text, err := p.GenerateContent("openai/gpt-4o", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "[1] Halo", text)
}

func TestOpenRouter_GenerateContent_PolicyViolation(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":403,"message":"Input flagged by moderation"}}`))
	})

	_, err := p.GenerateContent("some/model", "prompt")
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, "some/model", pv.Model)
}

func TestOpenRouter_GenerateContent_ContentFilterFinish(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`))
	})

	_, err := p.GenerateContent("some/model", "prompt")
	var pv *PolicyViolationError
	require.ErrorAs(t, err, &pv)
}

func TestOpenRouter_GenerateContent_ServerErrorKeepsStatusInMessage(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream overloaded", http.StatusServiceUnavailable)
	})

	_, err := p.GenerateContent("some/model", "prompt")
	require.Error(t, err)
	// The retry engine classifies by message; the status code must survive.
	assert.Contains(t, err.Error(), "503")

	var pv *PolicyViolationError
	assert.False(t, errors.As(err, &pv))
}
