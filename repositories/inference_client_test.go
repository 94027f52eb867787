package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysis-worker/domain"
)

func testBatch(n int) domain.FrameBatch {
	batch := domain.FrameBatch{TotalFrames: n}
	for i := 0; i < n; i++ {
		batch.Frames = append(batch.Frames, domain.Frame{
			Index: i,
			Image: image.NewNRGBA(image.Rect(0, 0, 4, 4)),
		})
	}
	return batch
}

func TestInferenceClient_Infer(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"A dog runs on the beach.","done":true}`))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL+"/", "video-llava", 5000, time.Second)
	prompt := domain.FormatPrompt("What happens?")
	text, err := client.Infer(context.Background(), testBatch(3), prompt)

	require.NoError(t, err)
	assert.Equal(t, "A dog runs on the beach.", text)
	assert.Equal(t, "video-llava", got.Model)
	assert.Equal(t, prompt, got.Prompt)
	assert.Len(t, got.Images, 3)
	assert.False(t, got.Stream)
	assert.Equal(t, 5000, got.Options.NumPredict)
}

func TestInferenceClient_Infer_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, "m", 10, time.Second)
	_, err := client.Infer(context.Background(), testBatch(1), "p")
	assert.ErrorIs(t, err, domain.ErrInferenceFailure)
	assert.Contains(t, err.Error(), "status code 500")
}

func TestInferenceClient_Infer_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"  "}`))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, "m", 10, time.Second)
	_, err := client.Infer(context.Background(), testBatch(1), "p")
	assert.ErrorIs(t, err, domain.ErrInferenceFailure)
}

func TestInferenceClient_Infer_EngineError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"out of memory"}`))
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, "m", 10, time.Second)
	_, err := client.Infer(context.Background(), testBatch(1), "p")
	assert.ErrorIs(t, err, domain.ErrInferenceFailure)
	assert.Contains(t, err.Error(), "out of memory")
}

func TestInferenceClient_Infer_InvalidInput(t *testing.T) {
	client := NewInferenceClient("http://127.0.0.1:1", "m", 10, time.Second)

	_, err := client.Infer(context.Background(), domain.FrameBatch{}, "p")
	assert.ErrorIs(t, err, domain.ErrInferenceFailure)

	_, err = client.Infer(context.Background(), testBatch(1), "")
	assert.ErrorIs(t, err, domain.ErrInferenceFailure)
}

func TestInferenceClient_Infer_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewInferenceClient(server.URL, "m", 10, 50*time.Millisecond)
	_, err := client.Infer(context.Background(), testBatch(1), "p")
	assert.True(t, errors.Is(err, domain.ErrInferenceTimeout))
	assert.True(t, errors.Is(err, domain.ErrInferenceFailure))
}

func TestInferenceClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"models":[]}`))
	}))
	defer server.Close()

	assert.NoError(t, NewInferenceClient(server.URL, "m", 10, time.Second).HealthCheck(context.Background()))

	server.Close()
	assert.Error(t, NewInferenceClient(server.URL, "m", 10, time.Second).HealthCheck(context.Background()))
}
