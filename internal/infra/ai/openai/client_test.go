package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/cowhealth/internal/domain/ai"
	"github.com/bryanwahyu/cowhealth/internal/infra/ai/prompt"
)

func completion() ai.Completion {
	return ai.Completion{
		Name:   prompt.InitialAnalysis.Name,
		System: prompt.InitialAnalysis.System,
		User:   "Based on the image [image 1] ...",
		Images: []ai.Image{{MIMEType: "image/png", Data: []byte("png")}},
		Schema: prompt.InitialAnalysis.Output,
	}
}

func chatReply(content string) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	}
}

func TestCompleteSendsSchemaAndImage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatReply(`{"cowPresent":true}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	out, err := c.Complete(context.Background(), completion())

	require.NoError(t, err)
	assert.Equal(t, `{"cowPresent":true}`, out)

	format := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]any)
	assert.Equal(t, "initialAnalysisPrompt", schema["name"])
	assert.Equal(t, true, schema["strict"])
	assert.EqualValues(t, defaultMaxTokens, got["max_tokens"])

	messages := got["messages"].([]any)
	require.Len(t, messages, 2)
	parts := messages[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)["image_url"].(map[string]any)
	assert.Equal(t, "data:image/png;base64,cG5n", image["url"])
}

func TestCompleteJSONObjectModeEmbedsSchema(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatReply(`{}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", Model: "o3-mini", BaseURL: srv.URL + "/v1", ResponseFormat: FormatJSONObject})
	_, err := c.Complete(context.Background(), completion())
	require.NoError(t, err)

	assert.Equal(t, "json_object", got["response_format"].(map[string]any)["type"])
	assert.EqualValues(t, defaultMaxTokens, got["max_completion_tokens"])
	system := got["messages"].([]any)[0].(map[string]any)["content"].(string)
	assert.Contains(t, system, `"cowPresent"`)
}

func TestCompleteQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	_, err := c.Complete(context.Background(), completion())

	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrQuotaExceeded)
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(Options{APIKey: "k", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	_, err := c.Complete(context.Background(), completion())

	assert.ErrorIs(t, err, ai.ErrEmptyResponse)
}
