package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeTransformers answers /vectors with a vector derived from the text length.
func fakeTransformers(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	if handler == nil {
		handler = func(w http.ResponseWriter, r *http.Request) {
			var req vectorsRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"text":   req.Text,
				"vector": []float32{float32(len(req.Text)), 1, 0},
				"dim":    3,
			})
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /vectors", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, baseURL string, maxRetries int) *Service {
	t.Helper()
	svc, err := NewService(Config{
		BaseURL:    baseURL,
		MaxRetries: maxRetries,
		RetryDelay: time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return svc
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid", Config{BaseURL: "http://localhost:8081"}, false},
		{"trailing slash", Config{BaseURL: "http://localhost:8081/"}, false},
		{"empty base URL", Config{}, true},
		{"no scheme", Config{BaseURL: "localhost:8081"}, true},
		{"negative retries", Config{BaseURL: "http://localhost:8081", MaxRetries: -1}, true},
		{"negative rate", Config{BaseURL: "http://localhost:8081", RateLimit: -2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.config, nil)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 384, svc.Dimension())
			assert.NoError(t, svc.Close())
		})
	}
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := fakeTransformers(t, nil)
	svc := newTestService(t, srv.URL+"/", 0)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1, 0}, vectors[0])
	assert.Equal(t, []float32{3, 1, 0}, vectors[1])
}

func TestService_EmbedQuery(t *testing.T) {
	srv := fakeTransformers(t, nil)
	svc := newTestService(t, srv.URL, 0)

	vec, err := svc.EmbedQuery(context.Background(), "vacation")
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 1, 0}, vec)
}

func TestService_EmptyInput(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:1", 0)
	ctx := context.Background()

	_, err := svc.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedDocuments(ctx, []string{"ok", "  "})
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.EmbedQuery(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTransformers(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "model loading", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"vector":[0.5,0.25]}`))
	})
	svc := newTestService(t, srv.URL, 3)

	vec, err := svc.EmbedQuery(context.Background(), "salary")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestService_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTransformers(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	})
	svc := newTestService(t, srv.URL, 2)

	_, err := svc.EmbedQuery(context.Background(), "salary")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestService_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := fakeTransformers(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad input", http.StatusUnprocessableEntity)
	})
	svc := newTestService(t, srv.URL, 3)

	_, err := svc.EmbedQuery(context.Background(), "salary")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestService_UnreachableFailsWithEmbeddingError(t *testing.T) {
	srv := fakeTransformers(t, nil)
	url := srv.URL
	srv.Close()

	svc := newTestService(t, url, 1)
	_, err := svc.EmbedQuery(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestParseVector(t *testing.T) {
	vec, err := parseVector([]byte(`{"text":"x","vector":[1,-2.5,5e-1],"dim":3}`))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, -2.5, 0.5}, vec)

	for name, body := range map[string]string{
		"invalid json":   `{"vector":[1,2`,
		"missing vector": `{"embedding":[1,2]}`,
		"not an array":   `{"vector":"1,2"}`,
		"empty vector":   `{"vector":[]}`,
		"non numeric":    `{"vector":[1,"two"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseVector([]byte(body))
			assert.ErrorIs(t, err, ErrEmbeddingFailed)
		})
	}
}

func TestService_RateLimited(t *testing.T) {
	srv := fakeTransformers(t, nil)
	svc, err := NewService(Config{BaseURL: srv.URL, RateLimit: 1000}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, svc.limiter)

	_, err = svc.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.EmbedQuery(ctx, "late")
	assert.Error(t, err)
}
