package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/campusattend/attendance/internal/api"
	"github.com/campusattend/attendance/internal/attendance"
	"github.com/campusattend/attendance/internal/auth"
	"github.com/campusattend/attendance/internal/cloudinary"
	"github.com/campusattend/attendance/internal/config"
	"github.com/campusattend/attendance/internal/faceclient"
	"github.com/campusattend/attendance/internal/httpmiddleware"
	"github.com/campusattend/attendance/internal/identity"
	"github.com/campusattend/attendance/internal/logging"
	"github.com/campusattend/attendance/internal/notify"
	"github.com/campusattend/attendance/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfg config.App
	var logger *slog.Logger

	root := &cobra.Command{
		Use:           "attendance",
		Short:         "Campus attendance backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg = config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger = logging.New(cfg.Production(), cfg.LogLevel)
			slog.SetDefault(logger)
			return nil
		},
	}

	var autoMigrate bool
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), cfg, logger, autoMigrate)
		},
	}
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", true, "apply migrations before serving")
	root.AddCommand(serveCmd)

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations or create indexes, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := store.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer backend.Close()
			if err := backend.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("migrations applied", "backend", backend.Name)
			return nil
		},
	}
	root.AddCommand(migrate)
	return root
}

// cache holds the pieces that live in Redis, or in process when no Redis is configured.
type cache struct {
	sessions auth.Sessions
	feed     notify.Feed
	limiter  httpmiddleware.Limiter
	check    api.Check
	close    func() error
}

// openCache leaves limiter nil when rate limiting is disabled.
func openCache(ctx context.Context, cfg config.App) (*cache, error) {
	if cfg.CacheBackend == "memory" {
		c := &cache{
			sessions: auth.NewMemorySessions(),
			feed:     notify.NewInMemory(cfg.NotifyMax),
			close:    func() error { return nil },
		}
		if cfg.RateLimitEnabled() {
			c.limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		}
		return c, nil
	}
	r, err := store.NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	c := &cache{
		sessions: auth.NewRedisSessions(r.Client, "attendance:session:"),
		feed:     notify.NewRedisFeed(r.Client, "attendance:notifications:", cfg.NotifyMax),
		check:    r.Ping,
		close:    r.Close,
	}
	if cfg.RateLimitEnabled() {
		c.limiter = httpmiddleware.NewRedisWindow(r.Client, cfg.RateLimitPerMin)
	}
	return c, nil
}

func serve(ctx context.Context, cfg config.App, logger *slog.Logger, autoMigrate bool) error {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()
	if autoMigrate {
		if err := backend.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	c, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer c.close()

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.FaceTimeout)
	if cfg.FaceSkip {
		logger.Warn("face service calls are skipped")
	}

	var idOpts []identity.Option
	if cfg.CloudinaryEnabled() {
		idOpts = append(idOpts, identity.WithUploader(cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)))
		logger.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		logger.Info("cloudinary not configured, face images are stored inline")
	}
	identities := identity.NewService(backend.Identities, face, logger, idOpts...)

	defaults := attendance.SessionDefaults{
		Subject:  cfg.DefaultSubject,
		Class:    cfg.DefaultClass,
		Division: cfg.DefaultDivision,
	}
	recorder := attendance.NewRecorder(backend.Identities, backend.Attendance, defaults)
	att := attendance.NewService(face, recorder, backend.Attendance, notify.AttendanceNotifier{Feed: c.feed}, logger)

	checks := map[string]api.Check{"store": backend.Ping}
	if c.check != nil {
		checks["redis"] = c.check
	}

	router := api.NewRouter(api.Deps{
		Identities:     identities,
		Attendance:     att,
		Face:           face,
		Tokens:         auth.NewTokens(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL),
		Sessions:       c.sessions,
		Feed:           c.feed,
		Limiter:        c.limiter,
		Checks:         checks,
		Logger:         logger,
		Env:            cfg.Env,
		FaceServiceURL: cfg.FaceServiceURL,
		AllowOrigins:   strings.Split(cfg.FrontendURL, ","),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.FaceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort, "store", backend.Name, "cache", cfg.CacheBackend, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	logger.Info("server exited")
	return nil
}
