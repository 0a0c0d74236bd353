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

// fakeOpenAI serves /v1/embeddings, answering inputs in reverse order to
// check that results are placed by index.
func fakeOpenAI(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(len(req.Input[i])), 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestOpenAI(t *testing.T, baseURL string) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:     "sk-test",
		BaseURL:    baseURL + "/v1",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return p
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk-test"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1536, p.Dimension())
	assert.NoError(t, p.Close())
}

func TestOpenAIProvider_EmbedDocumentsKeepsOrder(t *testing.T) {
	srv, _ := fakeOpenAI(t, 0, 0)
	p := newTestOpenAI(t, srv.URL)

	vectors, err := p.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {2, 0}, {3, 0}}, vectors)
}

func TestOpenAIProvider_EmbedQuery(t *testing.T) {
	srv, _ := fakeOpenAI(t, 0, 0)
	p := newTestOpenAI(t, srv.URL)

	vec, err := p.EmbedQuery(context.Background(), "vacation")
	require.NoError(t, err)
	assert.Equal(t, []float32{8, 0}, vec)

	_, err = p.EmbedQuery(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	srv, calls := fakeOpenAI(t, 2, http.StatusInternalServerError)
	p := newTestOpenAI(t, srv.URL)

	_, err := p.EmbedQuery(context.Background(), "salary")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIProvider_ClientErrorNotRetried(t *testing.T) {
	srv, calls := fakeOpenAI(t, 10, http.StatusUnauthorized)
	p := newTestOpenAI(t, srv.URL)

	_, err := p.EmbedQuery(context.Background(), "salary")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int32(1), calls.Load())
}
