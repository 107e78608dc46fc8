package gemini

import (
	"context"
	"encoding/base64"
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

func TestClient_GenerateImage(t *testing.T) {
	imageData := []byte("fake-png")
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [
			{"text": "here is your image"},
			{"inlineData": {"mimeType": "image/png", "data": "` + base64.StdEncoding.EncodeToString(imageData) + `"}}
		]}}]}`))
	})
	defer srv.Close()

	artifact, err := c.GenerateImage(context.Background(), "a fox", "watercolor", "16:9")
	require.NoError(t, err)
	require.Equal(t, imageData, artifact.Data)
	require.Equal(t, "image/png", artifact.MimeType)
}

func TestClient_GenerateImageNoData(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "sorry"}]}}]}`))
	})
	defer srv.Close()

	_, err := c.GenerateImage(context.Background(), "a fox", "", "")
	appErr, ok := types.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, types.CodeExternalAPI, appErr.Code)
}

func TestClient_VideoOperationLifecycle(t *testing.T) {
	step := 0
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"name": "operations/vid-1", "done": false}`))
		case step == 0:
			step++
			_, _ = w.Write([]byte(`{"name": "operations/vid-1", "done": false}`))
		default:
			_, _ = w.Write([]byte(`{"name": "operations/vid-1", "done": true,
				"response": {"generateVideoResponse": {"generatedSamples": [{"video": {"uri": "https://files.example/v1"}}]}}}`))
		}
	})
	defer srv.Close()

	name, err := c.StartVideoGeneration(context.Background(), "a fox running")
	require.NoError(t, err)
	require.Equal(t, "operations/vid-1", name)

	op, err := c.GetOperation(context.Background(), name)
	require.NoError(t, err)
	require.False(t, op.Done)

	op, err = c.GetOperation(context.Background(), name)
	require.NoError(t, err)
	require.True(t, op.Done)
	require.Equal(t, "https://files.example/v1", op.VideoURI)
}

func TestClient_VideoOperationError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"name": "operations/vid-1", "done": true, "error": {"code": 400, "message": "prompt rejected"}}`))
	})
	defer srv.Close()

	_, err := c.GetOperation(context.Background(), "operations/vid-1")
	appErr, ok := types.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, types.CodeExternalAPI, appErr.Code)
	require.Contains(t, appErr.Message, "prompt rejected")
}

func TestClient_RateLimitClassified(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exhausted"}}`))
	})
	defer srv.Close()

	_, err := c.SynthesizeSpeech(context.Background(), "hello", "")
	appErr, ok := types.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, types.CodeRateLimitExceeded, appErr.Code)
}
