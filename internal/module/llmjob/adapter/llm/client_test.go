package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [
    {"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "looks good"}}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient("test-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)
	c.baseBackoff = time.Millisecond
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	_, err := NewClient("")
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)
}

func TestClient_Complete(t *testing.T) {
	t.Run("メッセージとパラメータを送信する", func(t *testing.T) {
		var body map[string]any
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody))
		})

		got, err := c.Complete(context.Background(), CompletionRequest{
			Model:       "gpt-4o-mini",
			System:      "be brief",
			Prompt:      "review this",
			Temperature: 0.3,
			MaxTokens:   100,
		})
		require.NoError(t, err)
		assert.Equal(t, "looks good", got)

		assert.Equal(t, "gpt-4o-mini", body["model"])
		assert.InDelta(t, 0.3, body["temperature"], 1e-9)
		assert.EqualValues(t, 100, body["max_tokens"])
		messages, ok := body["messages"].([]any)
		require.True(t, ok)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "user", messages[1].(map[string]any)["role"])
	})

	t.Run("429は再試行する", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
				return
			}
			_, _ = w.Write([]byte(completionBody))
		})

		got, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini", Prompt: "x"})
		require.NoError(t, err)
		assert.Equal(t, "looks good", got)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("429が続けば上限で諦める", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
		})

		_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini", Prompt: "x"})
		assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.EqualValues(t, MaxRetries+1, calls.Load())
	})

	t.Run("その他のエラーは再試行しない", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"bad model"}}`))
		})

		_, err := c.Complete(context.Background(), CompletionRequest{Model: "nope", Prompt: "x"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMaxRetriesExceeded)
		assert.EqualValues(t, 1, calls.Load())
	})

	t.Run("選択肢が空ならエラー", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":0,"model":"m","choices":[]}`))
		})

		_, err := c.Complete(context.Background(), CompletionRequest{Model: "m", Prompt: "x"})
		assert.ErrorIs(t, err, ErrEmptyCompletion)
	})
}
