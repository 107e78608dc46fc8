package openrouter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicchat/gateway-backend/internal/types"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient("test-key")
	c.baseURL = srv.URL
	return c, srv
}

func TestClient_SendChatCompletion(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "gen-1",
			"model": "test/model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7}
		}`))
	})
	defer srv.Close()

	resp, err := c.SendChatCompletion(context.Background(), &Request{
		Model:    "test/model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Choices, 1)
	require.Equal(t, "hello", resp.Choices[0].Message.Content)
	require.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		wantCode types.ErrorCode
	}{
		{http.StatusTooManyRequests, types.CodeRateLimitExceeded},
		{http.StatusUnauthorized, types.CodeExternalAPI},
		{http.StatusServiceUnavailable, types.CodeExternalAPI},
		{http.StatusInternalServerError, types.CodeExternalAPI},
	}

	for _, tt := range tests {
		status := tt.status
		c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error": {"message": "provider says no"}}`))
		})

		_, err := c.SendChatCompletion(context.Background(), &Request{Model: "m"})
		srv.Close()

		appErr, ok := types.AsAppError(err)
		require.True(t, ok, "status %d should classify", status)
		require.Equal(t, tt.wantCode, appErr.Code, "status %d", status)
		require.Equal(t, status, appErr.Details["status"])
		require.Equal(t, "provider says no", appErr.Details["originalError"])
	}
}

func TestClient_ToolCallsOnWire(t *testing.T) {
	var gotBody []byte
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "",
			"tool_calls": [{"id": "c1", "type": "function", "function": {"name": "storeUserInfo", "arguments": "{\"info\":\"x\"}"}}]}}]}`))
	})
	defer srv.Close()

	resp, err := c.SendChatCompletion(context.Background(), &Request{
		Model: "m",
		Tools: []Tool{NewFunctionTool(ToolFunction{Name: "storeUserInfo"})},
	})
	require.NoError(t, err)
	require.Contains(t, string(gotBody), `"tools"`)
	require.Contains(t, string(gotBody), `"storeUserInfo"`)

	calls := resp.Choices[0].Message.ToolCalls
	require.Len(t, calls, 1)
	require.Equal(t, "storeUserInfo", calls[0].Function.Name)
	require.Equal(t, `{"info":"x"}`, calls[0].Function.Arguments)
}

func TestClient_ToolsOmittedWhenNil(t *testing.T) {
	var gotBody []byte
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	})
	defer srv.Close()

	_, err := c.SendChatCompletion(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	require.NotContains(t, string(gotBody), `"tools"`)
}
