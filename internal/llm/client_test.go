package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErr "github.com/workflow-builder/engine/pkg/errors"
	"github.com/workflow-builder/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	_, _ = logger.Init("error", "json")
	m.Run()
}

func TestCompleteSendsChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)
		require.Equal(t, "system", req.Messages[0].Role)
		require.Equal(t, "be terse", req.Messages[0].Content)
		require.Equal(t, "user", req.Messages[1].Role)
		require.Equal(t, map[string]string{"type": "json_object"}, req.ResponseFormat)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"nodes\":[]}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "gpt-4o-mini", Timeout: time.Second})
	out, err := c.Complete(context.Background(), "be terse", "hello", FormatJSONObject)
	require.NoError(t, err)
	require.Equal(t, `{"nodes":[]}`, out)
}

func TestCompleteDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), "s", "u", FormatJSONObject)
	require.True(t, appErr.IsCode(err, appErr.CodeProvider))
	require.ErrorContains(t, err, "429")
	require.EqualValues(t, 1, calls.Load())
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "m"})
	_, err := c.Complete(context.Background(), "s", "u", FormatText)
	require.True(t, appErr.IsCode(err, appErr.CodeProvider))
}

func TestCompleteWithoutKey(t *testing.T) {
	c := NewClient(Config{Model: "m"})
	require.False(t, c.Configured())
	_, err := c.Complete(context.Background(), "s", "u", FormatText)
	require.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	require.ErrorIs(t, err, ErrNotConfigured)
}
