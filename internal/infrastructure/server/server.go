package server

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	apihttp "github.com/loggy-dev/loggy-go/internal/api/http"
	"github.com/loggy-dev/loggy-go/internal/api/middleware"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/config"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/monitoring"
	"github.com/loggy-dev/loggy-go/internal/infrastructure/transport"
)

// Server is the development collector: it accepts batches from the SDK,
// keeps the most recent ones in memory and serves them back.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	handlers *apihttp.Handlers
	logger   *zap.Logger
	config   config.CollectorConfig
}

// Options carries the collector's optional dependencies.
type Options struct {
	Logger *zap.Logger
	// PrivateKey overrides config.PrivateKeyFile
	PrivateKey *rsa.PrivateKey
	EchoLogs   bool
	Registry   *prometheus.Registry
}

// New creates a collector from cfg.
func New(cfg config.CollectorConfig, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	privateKey := opts.PrivateKey
	if privateKey == nil && cfg.PrivateKeyFile != "" {
		pemData, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		if privateKey, err = transport.ParsePrivateKey(pemData); err != nil {
			return nil, err
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := monitoring.NewMetrics(registry)

	handlers := apihttp.NewHandlers(apihttp.HandlersConfig{
		Tokens:     cfg.Tokens,
		PrivateKey: privateKey,
		Store:      apihttp.NewStore(cfg.Retain),
		EchoLogs:   opts.EchoLogs,
		Logger:     logger,
	})

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics, nil))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	// Register routes
	router.GET("/health", handlers.Health)
	router.GET("/metrics", monitoring.Handler(registry))

	api := router.Group("/api")
	if cfg.RequestsPerSec > 0 {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RequestsPerSec),
			zap.Int("burst", cfg.Burst),
		)
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RequestsPerSec,
			Burst:             cfg.Burst,
		}))
	}
	api.POST("/:signal/ingest", handlers.Ingest)
	api.GET("/:signal", handlers.List)

	logger.Info("Collector initialized",
		zap.Int("tokens", len(cfg.Tokens)),
		zap.Bool("encryption", privateKey != nil),
	)

	return &Server{
		router:   router,
		handlers: handlers,
		logger:   logger,
		config:   cfg,
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the collector's HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Store returns the in-memory batch store.
func (s *Server) Store() *apihttp.Store { return s.handlers.Store() }

// Run starts the HTTP server and blocks until it is closed.
func (s *Server) Run() error {
	s.logger.Info("Starting collector", zap.String("addr", s.config.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on l until the server is closed.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting collector", zap.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down collector...")
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shut down collector", zap.Error(err))
		return fmt.Errorf("failed to shut down collector: %w", err)
	}
	_ = s.logger.Sync()
	return nil
}
