// Package server exposes lineage extraction over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nnaka2992/pg-lineage/internal/lineage"
)

// ErrorHeader carries the extraction error of a best-effort response.
const ErrorHeader = "X-Lineage-Error"

const shutdownTimeout = 5 * time.Second

// Config holds the dependencies and limits of a Server.
type Config struct {
	Extractor lineage.Extractor
	Logger    *slog.Logger
	Addr      string
	// CacheSize is the number of results kept; 0 disables the cache.
	CacheSize      int
	MaxBodyBytes   int64
	RequestTimeout time.Duration
}

// Server serves POST /api/parse.
type Server struct {
	extractor      lineage.Extractor
	logger         *slog.Logger
	addr           string
	maxBodyBytes   int64
	requestTimeout time.Duration
	cache          *lru.Cache[string, cachedResult]
}

// cachedResult is an extraction outcome. Results are never mutated after
// extraction, so one value can be encoded for many responses.
type cachedResult struct {
	result *lineage.Result
	errMsg string
}

// New creates a server. A nil extractor gets the default one.
func New(cfg Config) (*Server, error) {
	s := &Server{
		extractor:      cfg.Extractor,
		logger:         cfg.Logger,
		addr:           cfg.Addr,
		maxBodyBytes:   cfg.MaxBodyBytes,
		requestTimeout: cfg.RequestTimeout,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.extractor == nil {
		s.extractor = lineage.New(lineage.WithLogger(s.logger))
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = 1 << 20
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = 30 * time.Second
	}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[string, cachedResult](cfg.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create result cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{ErrorHeader, middleware.RequestIDHeader},
		MaxAge:         300,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Post("/api/parse", s.parse)

	return r
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting lineage server", "addr", ln.Addr().String())

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.logger.Debug("shutting down lineage server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
