// Package http provides the policyrag HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/policyrag/internal/access"
	"github.com/fyrsmithlabs/policyrag/internal/ingest"
	"github.com/fyrsmithlabs/policyrag/internal/logging"
	"github.com/fyrsmithlabs/policyrag/internal/retrieval"
)

// maxBodySize bounds request bodies.
const maxBodySize = "64K"

// Searcher runs role-filtered searches.
type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) *retrieval.Response
	Backend() string
}

// Indexer rebuilds the collection and reports statistics.
type Indexer interface {
	Reindex(ctx context.Context, dir, pattern string) (*ingest.Report, error)
	Stats(ctx context.Context) (*ingest.Stats, error)
}

// Server provides HTTP endpoints for policyrag.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	indexer  Indexer
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// DataDir and Pattern select the documents POST /api/v1/ingest rebuilds
	// from. Clients cannot choose another directory.
	DataDir string
	Pattern string
}

// NewServer creates a new HTTP server.
func NewServer(searcher Searcher, indexer Indexer, logger *logging.Logger, cfg *Config) (*Server, error) {
	if searcher == nil {
		return nil, fmt.Errorf("searcher cannot be nil")
	}
	if indexer == nil {
		return nil, fmt.Errorf("indexer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host:    "127.0.0.1",
			Port:    8090,
			DataDir: "./data",
			Pattern: ingest.DefaultPattern,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		searcher: searcher,
		indexer:  indexer,
		logger:   logger.Named("http"),
		config:   cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(middleware.RequestID())
	e.Use(s.requestContext)
	metrics, err := newRequestMetrics(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn(context.Background(), "http metrics unavailable", zap.Error(err))
	}
	e.Use(metrics.middleware)

	s.registerRoutes()
	return s, nil
}

// requestContext puts the request id into the request context, continues
// any incoming W3C trace, and logs each request.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
		ctx, span := otel.Tracer(instrumentationName).Start(ctx,
			req.Method+" "+routeLabel(c.Path()),
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx = logging.WithRequestID(ctx, rid)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		status := c.Response().Status
		span.SetAttributes(
			attribute.String("http.request_id", rid),
			attribute.Int("http.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.GET("/stats", s.handleStats)
	v1.POST("/ingest", s.handleIngest)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Backend: s.searcher.Backend()})
}

// handleSearch runs a search. Failed searches return an empty result list
// with the reason in "error": 400 for an empty query, 503 when the embedding
// service or vector store is unavailable.
func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(c.Request().Context(), "invalid search request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Limit < 0 || req.Limit > retrieval.MaxLimit {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("limit must be between 0 and %d", retrieval.MaxLimit))
	}

	role, known := access.LookupRole(req.Role)
	if !known && req.Role != "" {
		s.logger.Debug(c.Request().Context(), "unknown role treated as user", zap.String("requested_role", req.Role))
	}

	resp := s.searcher.Search(c.Request().Context(), retrieval.Request{
		Query: req.Query,
		Role:  role,
		Limit: req.Limit,
	})

	out := NewSearchResponse(req.Query, role, resp)
	status := http.StatusOK
	if resp.Diagnostic != nil {
		status = http.StatusServiceUnavailable
		if errors.Is(resp.Diagnostic, retrieval.ErrEmptyQuery) {
			status = http.StatusBadRequest
		}
	}
	return c.JSON(status, out)
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.indexer.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error(c.Request().Context(), "stats failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusServiceUnavailable, "vector store unavailable")
	}
	return c.JSON(http.StatusOK, stats)
}

// handleIngest rebuilds the collection from the configured data directory.
func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()
	report, err := s.indexer.Reindex(ctx, s.config.DataDir, s.config.Pattern)
	if err != nil {
		s.logger.Error(ctx, "ingestion failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}
	return c.JSON(http.StatusOK, IngestResponse{
		Report:          report,
		ChunksPerSecond: report.Throughput(),
	})
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
