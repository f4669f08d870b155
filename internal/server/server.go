package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/veloxdb/veloxdb"
	"github.com/veloxdb/veloxdb/internal/fs"
)

// File names inside the data directory.
const (
	VectorsFile = "vectors.fvecs"
	IndexFile   = "index.ivf"
)

const maxBodyBytes = 64 << 20

// Config holds the server settings.
type Config struct {
	DataDir       string
	DefaultMetric veloxdb.Metric

	// RateLimitRPS of 0 disables limiting. Burst defaults to RPS.
	RateLimitRPS   int
	RateLimitBurst int

	Logger  *slog.Logger
	Metrics *Metrics
}

// Server exposes a VectorIndex over HTTP/JSON.
//
// VectorIndex does no locking of its own: handlers that mutate it take the
// write lock, searches and reads share the read lock. saveMu serializes
// saves, which share staging files in the data directory.
type Server struct {
	cfg     Config
	mu      sync.RWMutex
	saveMu  sync.Mutex
	db      *veloxdb.VectorIndex
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *Metrics
	mux     *http.ServeMux
}

// New wraps db. The Server takes ownership of db; it is closed by Close.
func New(db *veloxdb.VectorIndex, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	s := &Server{
		cfg:     cfg,
		db:      db,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		mux:     http.NewServeMux(),
	}
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = cfg.RateLimitRPS
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	s.metrics.StoredVectors.Set(float64(db.Len()))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.handle("GET /{$}", "health", s.handleHealth)
	s.handle("POST /add_vectors", "add_vectors", s.handleAddVector)
	s.handle("POST /train", "train", s.handleTrain)
	s.handle("POST /search", "search", s.handleSearch)
	s.handle("POST /save", "save", s.handleSave)
	s.handle("GET /vectors/{id}", "get_vector", s.handleGetVector)
	s.handle("POST /simd", "simd", s.handleSIMD)
	s.handle("GET /stats", "stats", s.handleStats)

	// Scrapes bypass the limiter.
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Restore loads <data_dir>/vectors.fvecs and <data_dir>/index.ivf when both
// exist. A failed restore is logged and the server starts empty.
func (s *Server) Restore() error {
	if err := os.MkdirAll(s.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	vectors, index := s.path(VectorsFile), s.path(IndexFile)
	hasVectors, err := fs.Exists(fs.Default, vectors)
	if err != nil {
		return err
	}
	hasIndex, err := fs.Exists(fs.Default, index)
	if err != nil {
		return err
	}
	if !hasVectors || !hasIndex {
		s.log.Info("no saved state found", "data_dir", s.cfg.DataDir)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.LoadFvecs(vectors); err != nil {
		s.log.Error("load vectors", "path", vectors, "error", err)
		return nil
	}
	if err := s.db.LoadIndex(index); err != nil {
		s.log.Error("load index", "path", index, "error", err)
	}
	s.metrics.StoredVectors.Set(float64(s.db.Len()))
	s.log.Info("state restored", "vectors", s.db.Len(), "dimension", s.db.Dimension(), "indexed", s.db.Indexed())
	return nil
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("serving", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases the index.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func (s *Server) path(name string) string {
	return filepath.Join(s.cfg.DataDir, name)
}
