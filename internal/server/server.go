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
	ossignal "os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/riskpulse/riskpulse/internal/anomaly"
	"github.com/riskpulse/riskpulse/internal/config"
	"github.com/riskpulse/riskpulse/internal/correlation"
	"github.com/riskpulse/riskpulse/internal/cycle"
	"github.com/riskpulse/riskpulse/internal/forecast"
	"github.com/riskpulse/riskpulse/internal/health"
	"github.com/riskpulse/riskpulse/internal/idgen"
	"github.com/riskpulse/riskpulse/internal/incident"
	"github.com/riskpulse/riskpulse/internal/logging"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/ratelimit"
	"github.com/riskpulse/riskpulse/internal/risk"
	"github.com/riskpulse/riskpulse/internal/signal"
	"github.com/riskpulse/riskpulse/internal/traces"
	"github.com/riskpulse/riskpulse/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	signals    *signal.Service
	risk       *risk.Service
	anomalies  *anomaly.Service
	forecasts  *forecast.Engine
	incidents  *incident.Manager
	correlator *correlation.Correlator
	cycleTimer *cycle.Timer

	rateLimiter    *ratelimit.Limiter
	healthRegistry *health.Registry
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	tracesShutdown func(context.Context) error
	cancelRunCtx   context.CancelFunc

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	var (
		signalStore   signal.Store
		weightsStore  risk.WeightsStore
		anomalyStore  anomaly.Store
		incidentStore *incident.PostgresStore
	)

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
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		sigStore := signal.NewPostgresStore(db)
		if err := sigStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate signal store", "error", err)
		}
		signalStore = sigStore

		wStore := risk.NewPostgresWeightsStore(db)
		if err := wStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate risk weights store", "error", err)
		}
		weightsStore = wStore

		aStore := anomaly.NewPostgresStore(db)
		if err := aStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate anomaly store", "error", err)
		}
		anomalyStore = aStore

		incidentStore = incident.NewPostgresStore(db)
		if err := incidentStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate incident store", "error", err)
		}
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		signalStore = signal.NewMemoryStore()
		weightsStore = risk.NewMemoryWeightsStore()
		anomalyStore = anomaly.NewMemoryStore()
	}

	s.signals = signal.NewService(signalStore).WithLogger(s.logger)
	s.risk = risk.NewService(signalStore, weightsStore).WithLogger(s.logger)

	// Startup weights come from the environment; runtime updates through
	// the weights API last until the next boot.
	startupWeights := risk.Weights{
		Sentiment:    cfg.RiskWeightSentiment,
		Anomaly:      cfg.RiskWeightAnomaly,
		TicketVolume: cfg.RiskWeightTicketVolume,
		Revenue:      cfg.RiskWeightRevenue,
		Engagement:   cfg.RiskWeightEngagement,
	}
	if _, err := s.risk.UpdateWeights(ctx, startupWeights); err != nil {
		return nil, fmt.Errorf("failed to apply risk weights: %w", err)
	}

	thresholds := anomaly.Thresholds{
		VolumeZModerate:    cfg.VolumeZModerate,
		VolumeZHigh:        cfg.VolumeZHigh,
		VolumeZCritical:    cfg.VolumeZCritical,
		RiskDeltaModerate:  cfg.RiskDeltaModerate,
		RiskDeltaHigh:      cfg.RiskDeltaHigh,
		RiskDeltaCritical:  cfg.RiskDeltaCritical,
		SentimentDriftMin:  cfg.SentimentDriftMin,
		MinBaselineSamples: cfg.MinBaselineSamples,
	}
	s.anomalies = anomaly.NewService(signalStore, anomalyStore, thresholds).
		WithWindows(cfg.CurrentWindow, cfg.BaselineWindow, cfg.MaxWindowSize).
		WithLogger(s.logger)

	s.forecasts = forecast.NewEngine(signalStore)

	var incStore incident.Store
	var noteStore incident.NoteStore
	if incidentStore != nil {
		incStore, noteStore = incidentStore, incidentStore
	} else {
		mem := incident.NewMemoryStore()
		incStore, noteStore = mem, mem
	}
	s.incidents = incident.NewManager(incStore, noteStore, signalStore).
		WithOverlapRatio(cfg.IncidentOverlapRatio).
		WithGracePeriods(cfg.AnomalyGracePeriod, cfg.ForecastGracePeriod).
		WithLogger(s.logger)

	s.correlator = correlation.NewCorrelator(signalStore).
		WithTau(cfg.CorrelationTau).
		WithMinScore(cfg.CorrelationMinScore).
		WithGraphLimits(correlation.GraphLimits{
			Depth:    cfg.GraphMaxDepth,
			K:        cfg.GraphMaxK,
			MaxNodes: cfg.GraphMaxNodes,
		})

	runner := cycle.NewRunner(s.risk, s.anomalies, s.forecasts, s.incidents).
		WithLogger(s.logger)
	s.cycleTimer = cycle.NewTimer(runner, cfg.CycleInterval, s.logger)

	s.healthRegistry = health.NewRegistry()
	if s.db != nil {
		s.healthRegistry.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Fail("database", err.Error())
			}
			return health.OK("database")
		})
	}
	s.healthRegistry.Register("cycle", func(ctx context.Context) health.Status {
		if !s.cycleTimer.Running() {
			return health.Fail("cycle", "detection cycle not running")
		}
		return health.OK("cycle")
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging
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

func (s *Server) setupMiddleware() {
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

	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

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
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/", s.infoHandler)

	v1 := s.router.Group("/v1")

	signal.NewHandler(s.signals).RegisterRoutes(v1)
	risk.NewHandler(s.risk).RegisterRoutes(v1)
	anomaly.NewHandler(s.anomalies).RegisterRoutes(v1)
	incident.NewHandler(s.incidents).RegisterRoutes(v1)
	forecast.NewHandler(s.forecasts).RegisterRoutes(v1)
	correlation.NewHandler(s.correlator).RegisterRoutes(v1)
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "riskpulse",
		"description": "Operational signal risk backend",
		"version":     "0.1.0",
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}

	healthy, statuses := s.healthRegistry.CheckAll(c.Request.Context())
	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = st.Detail
		}
	}

	status, httpStatus := "healthy", http.StatusOK
	if !healthy {
		status, httpStatus = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.cycleTimer.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

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

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.cycleTimer.Stop()
	s.logger.Info("detection cycle stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

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

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

