package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicsquare/server/internal/api"
	"github.com/civicsquare/server/internal/api/middleware"
	"github.com/civicsquare/server/internal/audit"
	"github.com/civicsquare/server/internal/auth"
	"github.com/civicsquare/server/internal/config"
	"github.com/civicsquare/server/internal/domain/catalog"
	"github.com/civicsquare/server/internal/domain/registration"
	"github.com/civicsquare/server/internal/domain/users"
	"github.com/civicsquare/server/internal/email"
	"github.com/civicsquare/server/internal/jobs"
	"github.com/civicsquare/server/internal/metrics"
	"github.com/civicsquare/server/internal/storage/postgres"
	"github.com/civicsquare/server/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serverHost string
	serverPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the CivicSquare HTTP server and begin accepting API requests.

The server loads configuration from environment variables (or --config),
bootstraps the superuser account when ADMIN_* vars are set, starts the
background job workers, and shuts down gracefully on SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Msg("starting CivicSquare server")

	metrics.Init(Version, GitCommit, BuildDate)

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracing(context.Background(), cfg.Tracing, Version)
		if err != nil {
			return fmt.Errorf("tracing init failed: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Error().Err(err).Msg("tracing shutdown error")
			}
		}()
	}

	pool, err := newPool(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return fmt.Errorf("repository init failed: %w", err)
	}

	emails, err := email.NewService(cfg.Email, logger)
	if err != nil {
		return fmt.Errorf("email service init failed: %w", err)
	}

	workers, err := jobs.NewWorkers(emails, repo, logger)
	if err != nil {
		return fmt.Errorf("job workers init failed: %w", err)
	}
	riverClient, err := jobs.NewClient(pool, workers, slog.New(slog.NewJSONHandler(os.Stdout, nil)), jobs.NewPeriodicJobs())
	if err != nil {
		return fmt.Errorf("job client init failed: %w", err)
	}

	auditLog := audit.NewLogger(logger)
	usersSvc := users.NewService(repo.Users(), repo.Sessions(), jobs.NewEnqueuer(riverClient), auditLog,
		cfg.Server.BaseURL, cfg.Session.TTL, logger)
	catalogSvc := catalog.NewService(repo.Categories(), repo.Events(), auditLog, logger)
	registrationSvc := registration.NewService(repo, logger)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, "civicsquare", cfg.Auth.AccessExpiry, cfg.Auth.RefreshExpiry)

	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := bootstrapSuperuser(bootstrapCtx, cfg, repo.Users(), logger); err != nil {
		logger.Error().Err(err).Msg("superuser bootstrap failed")
	}
	bootstrapCancel()

	limiter := middleware.NewRateLimiter(cfg.RateLimit)
	defer limiter.Stop()

	handler := api.NewRouter(cfg, api.Deps{
		Pool:          pool,
		Repo:          repo,
		Users:         usersSvc,
		Catalog:       catalogSvc,
		Registrations: registrationSvc,
		Tokens:        tokens,
		AuditLog:      auditLog,
		Limiter:       limiter,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCollector := metrics.NewDBCollector(pool)
	go dbCollector.Start(ctx, 15*time.Second)
	defer dbCollector.Stop()

	if err := riverClient.Start(ctx); err != nil {
		return fmt.Errorf("job workers failed to start: %w", err)
	}
	logger.Info().Msg("background job workers started")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := riverClient.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("job workers shutdown error")
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newPool(cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if cfg.Database.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return pool, nil
}

// bootstrapSuperuser creates the configured superuser account on first boot.
// It is a no-op when the account already exists or the env vars are unset.
func bootstrapSuperuser(ctx context.Context, cfg config.Config, repo users.Repository, logger zerolog.Logger) error {
	bootstrap := cfg.AdminBootstrap
	if bootstrap.Email == "" || bootstrap.Password == "" {
		logger.Debug().Msg("admin bootstrap not configured; skipping")
		return nil
	}

	if _, err := repo.GetByEmail(ctx, bootstrap.Email); err == nil {
		return nil
	} else if !errors.Is(err, users.ErrNotFound) {
		return fmt.Errorf("check superuser: %w", err)
	}

	hash, err := auth.HashPassword(bootstrap.Password)
	if err != nil {
		return fmt.Errorf("hash superuser password: %w", err)
	}

	if _, err := repo.Create(ctx, users.CreateParams{
		Email:        bootstrap.Email,
		PasswordHash: hash,
		FirstName:    bootstrap.FirstName,
		LastName:     bootstrap.LastName,
		Role:         auth.RoleSuperuser,
		IsActive:     true,
	}); err != nil {
		return fmt.Errorf("create superuser: %w", err)
	}

	// Redact the email in production logs.
	if cfg.Environment == "production" {
		logger.Info().Msg("bootstrapped superuser")
	} else {
		logger.Info().Str("email", bootstrap.Email).Msg("bootstrapped superuser")
	}
	return nil
}
