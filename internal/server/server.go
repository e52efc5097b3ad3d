// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/inodb/vibe-prs/internal/config"
	"github.com/inodb/vibe-prs/internal/pipeline"
	"github.com/inodb/vibe-prs/internal/store"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "vibe-prs"

// Runner executes one pipeline request.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// RunLister reads the run ledger.
type RunLister interface {
	ListRuns(ctx context.Context, sample string, limit int) ([]store.Run, error)
}

// Server is the HTTP shim around a Runner.
type Server struct {
	cfg      config.ServerConfig
	runner   Runner
	runs     RunLister
	router   *gin.Engine
	server   *http.Server
	inflight *inflight
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates a server. Routes are registered immediately; call Start to
// listen.
func New(cfg config.ServerConfig, runner Runner) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:      cfg,
		runner:   runner,
		router:   gin.New(),
		inflight: newInflight(),
		logger:   zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.requestLogger())
	s.setupRoutes()

	return s
}

// SetLogger sets the access and error logger.
func (s *Server) SetLogger(l *zap.Logger) {
	s.logger = l
}

// SetRunLister enables GET /runs.
func (s *Server) SetRunLister(r RunLister) {
	s.runs = r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("shutting down")
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/predict", s.rateLimit(), s.handlePredict)
	s.router.GET("/runs", s.handleListRuns)
}

// requestIDMiddleware adds a unique request ID to each request.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")))
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("too many requests"))
			return
		}
		c.Next()
	}
}

// inflight tracks the sample names with a run in progress.
type inflight struct {
	mu      sync.Mutex
	samples map[string]struct{}
}

func newInflight() *inflight {
	return &inflight{samples: make(map[string]struct{})}
}

// acquire claims sample, returning false if it is already claimed.
func (f *inflight) acquire(sample string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.samples[sample]; busy {
		return false
	}
	f.samples[sample] = struct{}{}
	return true
}

func (f *inflight) release(sample string) {
	f.mu.Lock()
	delete(f.samples, sample)
	f.mu.Unlock()
}
