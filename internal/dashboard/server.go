package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jzx17/asyncflow/pkg/pipeline"
	"github.com/jzx17/asyncflow/pkg/types"
)

const shutdownTimeout = 5 * time.Second

// Pipeline is the control surface the dashboard drives.
// *pipeline.Controller implements it.
type Pipeline interface {
	Start(producers, consumers int) error
	StartDefault() error
	Stop() error
	AddProducer() (string, error)
	AddConsumer() (string, error)
	RemoveProducer() (string, bool)
	RemoveConsumer() (string, bool)
	Status() pipeline.Status
	Subscribe() (<-chan struct{}, func())
	Config() pipeline.Config
}

// Config holds server settings
type Config struct {
	// Addr is the listen address used by Run
	Addr string

	// PushInterval is the minimum spacing between websocket pushes
	PushInterval time.Duration

	// Development keeps gin in debug mode
	Development bool

	// Clock drives the push ticker and request timing (optional, defaults to real clock)
	Clock types.Clock
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		PushInterval: 250 * time.Millisecond,
	}
}

// Server exposes a Pipeline over HTTP and websocket
type Server struct {
	pipeline Pipeline
	config   Config
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	router   *gin.Engine
	upgrader websocket.Upgrader

	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	streams sync.WaitGroup
}

// NewServer creates a server. A nil gatherer disables /metrics.
func NewServer(p Pipeline, config Config, gatherer prometheus.Gatherer, logger *zap.Logger) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if config.PushInterval <= 0 {
		config.PushInterval = DefaultConfig().PushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}

	if !config.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		pipeline: p,
		config:   config,
		logger:   logger,
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // dashboard is served from anywhere in dev
			},
		},
		closing: make(chan struct{}),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server failed: %w", err)
	case <-ctx.Done():
	}

	// websockets are hijacked and ignored by Shutdown, so release them first
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dashboard shutdown failed: %w", err)
	}
	return nil
}

// Close ends every open websocket stream and waits for their handlers to return.
// New streams are refused afterwards.
func (s *Server) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	s.mu.Unlock()

	s.streams.Wait()
}

// track registers a stream handler unless the server is closed
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.streams.Add(1)
	return true
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger, s.config.Clock))

	api := router.Group("/api")
	api.GET("/stats", s.getStats)
	api.POST("/start", s.start)
	api.POST("/stop", s.stop)
	api.POST("/producers", s.addProducer)
	api.DELETE("/producers", s.removeProducer)
	api.POST("/consumers", s.addConsumer)
	api.DELETE("/consumers", s.removeConsumer)

	router.GET("/ws", s.stream)

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

func (s *Server) view() StatsView {
	return NewStatsView(s.pipeline.Status())
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.view())
}

// startRequest is the optional body of POST /api/start
type startRequest struct {
	Producers *int `json:"producers"`
	Consumers *int `json:"consumers"`
}

func (s *Server) start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var err error
	if req.Producers == nil && req.Consumers == nil {
		err = s.pipeline.StartDefault()
	} else {
		def := s.pipeline.Config()
		err = s.pipeline.Start(valueOr(req.Producers, def.InitialProducers),
			valueOr(req.Consumers, def.InitialConsumers))
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view())
}

func (s *Server) stop(c *gin.Context) {
	if err := s.pipeline.Stop(); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.view())
}

func (s *Server) addProducer(c *gin.Context) {
	s.add(c, s.pipeline.AddProducer)
}

func (s *Server) addConsumer(c *gin.Context) {
	s.add(c, s.pipeline.AddConsumer)
}

func (s *Server) removeProducer(c *gin.Context) {
	s.remove(c, s.pipeline.RemoveProducer)
}

func (s *Server) removeConsumer(c *gin.Context) {
	s.remove(c, s.pipeline.RemoveConsumer)
}

func (s *Server) add(c *gin.Context, fn func() (string, error)) {
	name, err := fn()
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name})
}

func (s *Server) remove(c *gin.Context, fn func() (string, bool)) {
	name, ok := fn()
	c.JSON(http.StatusOK, gin.H{"name": name, "removed": ok})
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrAlreadyRunning), errors.Is(err, types.ErrNotRunning):
		status = http.StatusConflict
	case errors.Is(err, types.ErrInvalidWorkerCount), errors.Is(err, types.ErrInvalidConfig):
		status = http.StatusBadRequest
	default:
		s.logger.Error("pipeline control failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger(logger *zap.Logger, clock types.Clock) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := clock.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", clock.Since(start)))
	}
}

func valueOr(p *int, fallback int) int {
	if p == nil {
		return fallback
	}
	return *p
}
