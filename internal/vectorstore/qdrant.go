package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/policyrag/internal/document"
)

var tracer = otel.Tracer("policyrag.vectorstore.qdrant")

// Collection names are lowercase ASCII letters, digits and underscores, at
// most 64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// maxFetch caps the number of candidates a single query may request.
const maxFetch = 10000

// QdrantConfig configures the gRPC client (port 6334, not the REST port).
// Zero values are replaced by ApplyDefaults.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	UseTLS         bool
	CollectionName string
	// VectorSize must equal the embedding provider's dimension.
	VectorSize uint64
	Distance   qdrant.Distance

	// Transient failures are retried MaxRetries times starting at
	// RetryBackoff and doubling. After CircuitBreakerThreshold consecutive
	// transient failures calls fail fast for breakerCooldown.
	MaxRetries              int
	RetryBackoff            time.Duration
	CircuitBreakerThreshold int

	MaxMessageSize int
}

func (c QdrantConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: qdrant host is empty", ErrInvalidConfig)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Port)
	case c.VectorSize == 0:
		return fmt.Errorf("%w: qdrant vector size is zero", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

func (c *QdrantConfig) ApplyDefaults() {
	setDefault(&c.Host, "localhost")
	setDefault(&c.Port, 6334)
	setDefault(&c.MaxRetries, 3)
	setDefault(&c.RetryBackoff, time.Second)
	setDefault(&c.MaxMessageSize, 50<<20)
	setDefault(&c.CircuitBreakerThreshold, 5)
	setDefault(&c.Distance, qdrant.Distance_Cosine)
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// ValidateCollectionName rejects names outside ^[a-z0-9_]{1,64}$.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (want 1-64 of [a-z0-9_])", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError reports whether err is a gRPC failure worth retrying:
// the server was unreachable, overloaded or timed out.
func IsTransientError(err error) bool {
	switch status.Code(err) {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	}
	return false
}

// classifyError maps gRPC failures onto the package sentinels.
func classifyError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	case grpccodes.InvalidArgument, grpccodes.NotFound:
		return fmt.Errorf("%w: %w", ErrSchemaConflict, err)
	default:
		return err
	}
}

// QdrantStore is the exact-filter Store: level filters are evaluated by
// Qdrant against the access_level keyword payload field.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	breaker *breaker
}

// NewQdrantStore connects to Qdrant and performs a health check. It never
// creates or drops the collection; call Reset for that.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:  client,
		config:  config,
		logger:  logger,
		breaker: newBreaker(config.CircuitBreakerThreshold, breakerCooldown),
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := store.healthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
		zap.Uint64("vector_size", config.VectorSize),
	)
	return store, nil
}

// Name implements Store.
func (s *QdrantStore) Name() string { return "qdrant" }

// NativeFilter implements Store. Qdrant evaluates payload filters in the index.
func (s *QdrantStore) NativeFilter() bool { return true }

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// retryOperation retries transient failures with exponential backoff while
// the breaker stays closed.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	if !s.breaker.allow() {
		return fmt.Errorf("%s: %w: circuit breaker open", operationName, ErrConnectionFailed)
	}

	err := retry.Do(
		func() error {
			err := operation()
			if IsTransientError(err) {
				s.breaker.failure()
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.config.MaxRetries)+1),
		retry.Delay(s.config.RetryBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return IsTransientError(err) && s.breaker.allow()
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying qdrant operation",
				zap.String("operation", operationName),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", operationName, classifyError(err))
	}
	s.breaker.success()
	return nil
}

// Reset implements Store: drop the collection if present, then create it
// with keyword indexes on access_level and filename.
func (s *QdrantStore) Reset(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Reset")
	defer span.End()
	defer observe(s.Name(), "reset", time.Now(), &err)

	name := s.config.CollectionName
	span.SetAttributes(attribute.String("collection", name))

	var exists bool
	err = s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, name)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if exists {
		err = s.retryOperation(ctx, "delete_collection", func() error {
			return s.client.DeleteCollection(ctx, name)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("deleting collection %s: %w", name, err)
		}
		s.logger.Info("dropped collection", zap.String("collection", name))
	}

	err = s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: s.config.Distance,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	for _, field := range []string{document.FieldAccessLevel, document.FieldFilename} {
		err = s.retryOperation(ctx, "create_field_index", func() error {
			_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			return err
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("indexing %s on %s: %w", field, name, err)
		}
	}

	s.logger.Info("created collection",
		zap.String("collection", name),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert implements Store.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()
	defer observe(s.Name(), "upsert", time.Now(), &err)

	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.config.CollectionName),
	)

	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		if uint64(len(r.Vector)) != s.config.VectorSize {
			err = fmt.Errorf("%w: record %s has %d dimensions, collection expects %d",
				ErrDimensionMismatch, r.Chunk.ID(), len(r.Vector), s.config.VectorSize)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.Chunk.ID()),
			Vectors: qdrant.NewVectors(r.Vector...),
			Payload: qdrantPayload(r.Chunk),
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", s.config.CollectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// DeleteByFilename implements Store with a filter selector on the filename
// keyword field.
func (s *QdrantStore) DeleteByFilename(ctx context.Context, filename string) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.DeleteByFilename")
	defer span.End()
	defer observe(s.Name(), "delete", time.Now(), &err)

	span.SetAttributes(attribute.String("collection", s.config.CollectionName))
	if filename == "" {
		return fmt.Errorf("%w: empty filename", ErrInvalidConfig)
	}

	err = s.retryOperation(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         qdrant.NewPointsSelectorFilter(filenameFilter(filename)),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting %s from collection %s: %w", filename, s.config.CollectionName, err)
	}
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query implements Store.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, filter *LevelFilter, fetch int) (_ []Candidate, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()
	defer observe(s.Name(), "query", time.Now(), &err)

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("fetch", fetch),
		attribute.Bool("filtered", filter != nil),
	)

	if fetch <= 0 {
		return nil, fmt.Errorf("fetch must be positive, got %d", fetch)
	}
	if fetch > maxFetch {
		fetch = maxFetch
	}
	if uint64(len(vector)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection expects %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(fetch)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         qdrantFilter(filter),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.CollectionName, err)
	}

	candidates := make([]Candidate, len(points))
	for i, p := range points {
		candidates[i] = Candidate{
			Chunk: chunkFromQdrant(p.GetPayload()),
			Score: p.GetScore(),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(candidates)))
	span.SetStatus(codes.Ok, "success")
	return candidates, nil
}

// Count implements Store. A missing collection counts as empty.
func (s *QdrantStore) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer span.End()
	defer observe(s.Name(), "count", time.Now(), &err)

	var n uint64
	err = s.retryOperation(ctx, "count", func() error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.CollectionName,
			Exact:          qdrant.PtrOf(true),
		})
		if status.Code(err) == grpccodes.NotFound {
			n, err = 0, nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting collection %s: %w", s.config.CollectionName, err)
	}
	return int(n), nil
}

// Ensure QdrantStore implements Store interface.
var _ Store = (*QdrantStore)(nil)
