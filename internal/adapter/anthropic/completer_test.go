package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hackathon-judge/internal/common"
	"hackathon-judge/internal/port"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCompleter(t *testing.T, handler http.HandlerFunc) *Completer {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewCompleter("test-key", option.WithBaseURL(server.URL))
}

func messageJSON(text, stopReason string) string {
	b, _ := json.Marshal(map[string]any{
		"id":          "msg_1",
		"type":        "message",
		"role":        "assistant",
		"model":       "claude-test",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": stopReason,
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
	return string(b)
}

func TestCompleter_Complete(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-test", body["model"])
		assert.Equal(t, float64(1024), body["max_tokens"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageJSON(`{"scores":{}}`, "end_turn")))
	})

	out, err := c.Complete(context.Background(), port.CompletionRequest{Prompt: "p", Model: "claude-test", MaxTokens: 1024})
	require.NoError(t, err)
	assert.Equal(t, `{"scores":{}}`, out)
}

func TestCompleter_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"过载 529", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, true},
		{"限流 429", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`, true},
		{"请求非法 400", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`, false},
		{"拒绝回答", 200, messageJSON("", "refusal"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			c := newTestCompleter(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Complete(context.Background(), port.CompletionRequest{Prompt: "p"})
			require.Error(t, err)
			var pErr *common.ProviderError
			require.True(t, errors.As(err, &pErr))
			assert.Equal(t, tt.transient, common.IsTransient(err))
			assert.Equal(t, 1, calls, "SDK 内部不应重试")
		})
	}
}

func TestCompleter_OnlyTextBlocks(t *testing.T) {
	c := newTestCompleter(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := json.Marshal(map[string]any{
			"id":    "msg_2",
			"type":  "message",
			"role":  "assistant",
			"model": "claude-test",
			"content": []map[string]any{
				{"type": "thinking", "thinking": "let me look at the scores", "signature": "sig"},
				{"type": "text", "text": `{"scores":`},
				{"type": "text", "text": `{}}`},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	})

	out, err := c.Complete(context.Background(), port.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"scores":{}}`, out)
}
