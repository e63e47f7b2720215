// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/playguard/playguard/internal/anticheat"
	"github.com/playguard/playguard/internal/config"
	"github.com/playguard/playguard/internal/health"
	"github.com/playguard/playguard/internal/idgen"
	"github.com/playguard/playguard/internal/logging"
	"github.com/playguard/playguard/internal/metrics"
	"github.com/playguard/playguard/internal/ratelimit"
	"github.com/playguard/playguard/internal/realtime"
	"github.com/playguard/playguard/internal/security"
	"github.com/playguard/playguard/internal/validation"
)

// Version is the service version reported by the info and health endpoints.
const Version = "0.1.0"

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	registry      *anticheat.Registry
	recorder      *anticheat.Recorder
	store         anticheat.Store
	sweepTimer    *anticheat.SweepTimer
	realtimeHub   *realtime.Hub
	healthChecks  *health.Registry
	rateLimiter   *ratelimit.Limiter
	actionLimiter *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStore sets a custom report store (for testing)
func WithStore(store anticheat.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
	}

	// Apply options first (may set store/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if s.store == nil {
		if cfg.DatabaseURL != "" {
			db, err := sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("failed to open database: %w", err)
			}

			db.SetMaxOpenConns(25)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(5 * time.Minute)

			if err := db.Ping(); err != nil {
				return nil, fmt.Errorf("failed to connect to database: %w", err)
			}

			store := anticheat.NewPostgresStore(db)
			if err := store.Migrate(ctx); err != nil {
				s.logger.Warn("failed to migrate report store", "error", err)
			}

			s.db = db
			s.store = store
			s.logger.Info("using PostgreSQL report storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.store = anticheat.NewMemoryStore()
			s.logger.Info("using in-memory report storage")
		}
	}

	s.registry = anticheat.NewRegistry(cfg.GameWhitelist)
	s.realtimeHub = realtime.NewHub(s.logger)

	s.recorder = anticheat.NewRecorder(s.registry,
		anticheat.WithLogger(s.logger),
		anticheat.WithStore(s.store),
		anticheat.WithEmitter(s.realtimeHub),
		anticheat.WithThresholds(s.buildThresholds()),
		anticheat.WithNegativeDeltaGames(cfg.NegativeDeltaGames),
	)

	s.sweepTimer = anticheat.NewSweepTimer(s.registry, cfg.SweepInterval, cfg.MaxSessionAge, s.logger)

	s.setupHealthChecks()

	// Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// buildThresholds merges config overrides over the built-in per-game
// envelopes, then warns once per whitelisted game that ends up on the
// generic fallback.
func (s *Server) buildThresholds() map[string]anticheat.Threshold {
	merged := make(map[string]anticheat.Threshold, len(anticheat.DefaultGameThresholds))
	for game, t := range anticheat.DefaultGameThresholds {
		merged[game] = t
	}
	for game, o := range s.cfg.Thresholds {
		merged[game] = anticheat.Threshold{
			MaxScorePerSecond: o.MaxScorePerSecond,
			MaxTotalScore:     o.MaxTotalScore,
		}
	}
	for _, game := range s.cfg.GameWhitelist {
		if _, ok := merged[game]; !ok {
			s.logger.Warn("no score thresholds for whitelisted game, using generic fallback",
				"game", game,
				"maxScorePerSecond", anticheat.DefaultThreshold.MaxScorePerSecond,
				"maxTotalScore", anticheat.DefaultThreshold.MaxTotalScore)
		}
	}
	return merged
}

func (s *Server) setupHealthChecks() {
	s.healthChecks = health.NewRegistry()

	s.healthChecks.Register("store", func(ctx context.Context) health.Status {
		if s.db == nil {
			return health.Status{Healthy: true, Detail: "in-memory"}
		}
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			return health.Status{Healthy: false, Detail: err.Error()}
		}
		return health.Status{Healthy: true, Detail: "postgres"}
	})

	s.healthChecks.Register("sessions", func(ctx context.Context) health.Status {
		return health.Status{
			Healthy: true,
			Detail:  fmt.Sprintf("%d live", s.registry.Len()),
		}
	})
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Per-IP rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         s.cfg.RateLimitRPM / 10,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.WithPrefix("req_")
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		if id := c.Param("id"); id != "" {
			ctx = logging.WithSessionID(ctx, id)
		}
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.infoHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket feed for moderation dashboards
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	// Session and report API. The recording endpoints carry a larger
	// per-session budget than the per-IP default allows.
	s.actionLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.ActionRateLimitRPM,
		BurstSize:         s.cfg.ActionRateLimitRPM / 20,
		CleanupInterval:   time.Minute,
	})

	v1 := s.router.Group("/v1",
		validation.SessionIDParamMiddleware(),
		s.actionLimiter.SessionMiddleware(),
	)
	anticheat.NewHandler(s.recorder, s.store).RegisterRoutes(v1)
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "playguard",
		"version": Version,
		"endpoints": gin.H{
			"sessions": "/v1/sessions",
			"reports":  "/v1/reports/:id",
			"feed":     "/ws",
			"health":   "/health",
			"metrics":  "/metrics",
		},
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthChecks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   Version,
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"games", s.cfg.GameWhitelist,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start stale-session sweeper
	s.sweepTimer.Start(runCtx)

	// Start runtime metrics collector
	go metrics.StartRuntimeCollector(runCtx, s.db, 15*time.Second)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper, collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop sweeper
	s.sweepTimer.Stop()
	s.logger.Info("session sweeper stopped")

	// Stop rate limiter cleanup goroutines
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.actionLimiter != nil {
		s.actionLimiter.Stop()
	}
	s.logger.Info("rate limiters stopped")

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
