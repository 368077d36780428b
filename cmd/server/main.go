package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/epiwatch/epiwatch-api/internal/auth"
	"github.com/epiwatch/epiwatch-api/internal/config"
	"github.com/epiwatch/epiwatch-api/internal/health"
	"github.com/epiwatch/epiwatch-api/internal/logger"
	"github.com/epiwatch/epiwatch-api/internal/metrics"
	authmw "github.com/epiwatch/epiwatch-api/internal/middleware"
	"github.com/epiwatch/epiwatch-api/internal/report"
	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// Version is set at build time
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	slogger := logger.New(logger.DefaultConfig())

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	// Separate handle for the read-only reporting queries
	reportDB, err := sqlx.Open("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to open reporting database handle: %v", err)
	}
	reportDB.SetMaxOpenConns(10)
	defer reportDB.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	reportRepo := report.NewRepository(reportDB)

	// Services
	sessionManager := auth.NewSessionManager(sessionRepo, userRepo, slogger)

	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret: cfg.Auth.JWTSecret,
		Expiry: cfg.Auth.AccessTokenTTL,
		Issuer: cfg.Auth.JWTIssuer,
	})

	authService := auth.NewAuthService(auth.AuthServiceConfig{
		Users:      userRepo,
		Sessions:   sessionRepo,
		Manager:    sessionManager,
		Tokens:     tokenService,
		Passwords:  auth.NewPasswordService(),
		Country:    cfg.Auth.Country,
		SessionTTL: cfg.Auth.SessionTTL,
		Logger:     slogger,
	})

	reaper := auth.NewReaper(sessionRepo, auth.ReaperConfig{
		Interval: cfg.Reaper.Interval,
		Enabled:  cfg.Reaper.Enabled,
	}, slogger)
	reaper.Start()
	defer reaper.Stop()

	// Metrics collector for the connection pools
	dbStats := metrics.NewDBStatsCollector(dbPool, reportDB.DB, slogger)
	dbStats.Start(30 * time.Second)
	defer dbStats.Stop()

	// Handlers and middleware
	authHandler := auth.NewAuthHandler(auth.AuthHandlerConfig{
		AuthService:  authService,
		Reaper:       reaper,
		CookieSecure: os.Getenv("COOKIE_SECURE") == "true",
	})
	reportHandler := report.NewHandler(reportRepo)

	authMiddleware := authmw.NewAuthMiddleware(sessionManager)
	loginLimiter := authmw.NewRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)
	healthHandler := health.NewHandler(health.Config{
		DBPool:  dbPool,
		Version: Version,
	})

	// Router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(authmw.StructuredLogger(slogger))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:8501"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		auth.RegisterRoutes(r, authHandler,
			authMiddleware.Authenticate,
			authMiddleware.RequireAdmin,
			loginLimiter.Handler,
		)
		report.RegisterRoutes(r, reportHandler,
			authMiddleware.Authenticate,
			authMiddleware.RequireCountry(cfg.Auth.Country),
		)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slogger.Info("starting server", "addr", addr, "country", cfg.Auth.Country)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slogger.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	slogger.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
