package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseSize = 4 * 1024 * 1024

// Config holds configuration for the transformers embedding service.
type Config struct {
	// BaseURL of the inference service, e.g. http://localhost:8081.
	BaseURL string

	// Model is informational; the service decides which model it runs.
	// It is used to guess the output dimension when Dimension is 0.
	Model string

	// Dimension overrides the guessed output dimension.
	Dimension int

	// Timeout bounds a single HTTP request. Defaults to 30s.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryDelay is the initial backoff delay. Defaults to 500ms.
	RetryDelay time.Duration

	// RateLimit caps requests per second; 0 disables limiting.
	RateLimit float64
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base URL must be an http(s) URL, got %q", ErrInvalidConfig, c.BaseURL)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Service talks to a t2v-transformers style inference service: each text
// is sent as POST {base}/vectors {"text": ...} and answered with
// {"vector": [...]}.
type Service struct {
	config    Config
	client    *http.Client
	limiter   *rate.Limiter
	metrics   *generationMetrics
	logger    *zap.Logger
	dimension int
}

// NewService creates a new embedding service with the given configuration.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	dim := config.Dimension
	if dim <= 0 {
		dim = detectDimensionFromModel(config.Model)
	}

	return &Service{
		config:    config,
		client:    &http.Client{Timeout: config.Timeout},
		limiter:   newLimiter(config.RateLimit),
		metrics:   newGenerationMetrics(logger),
		logger:    logger,
		dimension: dim,
	}, nil
}

// newLimiter returns nil for a non-positive rate, meaning unlimited.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type vectorsRequest struct {
	Text string `json:"text"`
}

// EmbedDocuments generates embeddings for multiple texts. The service takes
// one text per request, so texts are sent in order; any failure fails the
// whole call.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.observe(ctx, s.config.Model, "documents", start, len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors = make([][]float32, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrEmptyInput, i)
		}
		vec, err := s.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (s *Service) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.observe(ctx, s.config.Model, "query", start, 1, err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return s.embed(ctx, text)
}

// Dimension returns the configured or model-derived output dimension.
func (s *Service) Dimension() int {
	return s.dimension
}

// Close is a no-op; the service only holds an HTTP client.
func (s *Service) Close() error {
	return nil
}

// embed performs one request with rate limiting and retries. Transport
// errors, 429 and 5xx responses are retried with exponential backoff;
// other failures are returned immediately.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := retry.Do(
		func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return retry.Unrecoverable(err)
				}
			}
			var err error
			vec, err = s.post(ctx, text)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.config.MaxRetries)+1),
		retry.Delay(s.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying embedding request",
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		if errors.Is(err, ErrEmbeddingFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	return vec, nil
}

func (s *Service) post(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(vectorsRequest{Text: text})
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/vectors", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Unrecoverable(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, truncate(string(respBody), 200))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, retry.Unrecoverable(statusErr)
	}

	vec, err := parseVector(respBody)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	return vec, nil
}

// parseVector extracts the "vector" array from a /vectors response.
func parseVector(body []byte) ([]float32, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrEmbeddingFailed)
	}
	result := gjson.GetBytes(body, "vector")
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: response has no vector array", ErrEmbeddingFailed)
	}
	values := result.Array()
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrEmbeddingFailed)
	}
	vec := make([]float32, len(values))
	for i, v := range values {
		if v.Type != gjson.Number {
			return nil, fmt.Errorf("%w: vector element %d is not a number", ErrEmbeddingFailed, i)
		}
		vec[i] = float32(v.Float())
	}
	return vec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
