package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devicesession/backend/internal/config"
	"github.com/devicesession/backend/internal/db"
	"github.com/devicesession/backend/internal/handler"
	"github.com/devicesession/backend/internal/logging"
	"github.com/devicesession/backend/internal/metrics"
	"github.com/devicesession/backend/internal/model"
	"github.com/devicesession/backend/internal/service"
)

// @title Device Session API
// @version 1.0
// @description Login, refresh token rotation and per-device session management.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

type stores struct {
	sessions service.SessionStore
	users    service.UserStore
	close    func()
}

func main() {
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	codec, err := service.NewTokenCodec(service.NewTokenConfig(cfg.Auth))
	if err != nil {
		return err
	}
	sessionCfg, err := service.NewSessionConfig(cfg.Auth)
	if err != nil {
		return err
	}
	schemes, err := service.NewPasswordSchemes(cfg.Auth.PasswordSchemes)
	if err != nil {
		return err
	}
	verifier, err := service.NewPasswordVerifier[*model.User](st.users, service.ModelUserAdapter{}, schemes)
	if err != nil {
		return err
	}

	m := metrics.New()
	sessions := service.NewSessionManager(st.sessions, codec, sessionCfg,
		service.WithLogger(log),
		service.WithRecorder(m),
	)
	authSvc := service.NewAuthService(sessions, verifier, st.users, schemes)

	if cfg.Auth.AdminUsername != "" {
		if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			return err
		}
		log.Info("admin user ready", "login_id", cfg.Auth.AdminUsername)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(authSvc, log, handler.RouterConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Addr,
			"password_scheme", schemes.Default().Name(),
			"rotate_refresh_tokens", sessionCfg.RotateRefreshTokens,
		)
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	if !cfg.Postgres.Enabled() {
		log.Warn("postgres not configured, sessions are kept in memory")
		mem := db.NewMemory()
		return &stores{sessions: mem, users: mem, close: func() {}}, nil
	}

	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	users, err := db.NewPostgresUsers(pool, cfg.Auth.UsernameField, cfg.Auth.PasswordField)
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres connected", "host", pool.Config().ConnConfig.Host)
	return &stores{sessions: db.NewPostgres(pool), users: users, close: pool.Close}, nil
}
