// @title                       Auth API
// @version                     1.0
// @description                 Registration, login, token refresh and role-guarded user management.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sdcourse/auth-api/internal/api"
	"github.com/sdcourse/auth-api/internal/api/handler"
	"github.com/sdcourse/auth-api/internal/core/service"
	mongodb "github.com/sdcourse/auth-api/internal/infrastructure/db/mongo"
	redisdb "github.com/sdcourse/auth-api/internal/infrastructure/db/redis"
	"github.com/sdcourse/auth-api/internal/infrastructure/queue"
	"github.com/sdcourse/auth-api/internal/infrastructure/security"
	"github.com/sdcourse/auth-api/internal/pkg/config"
	"github.com/sdcourse/auth-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "auth-api",
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Signing key ---
	key, err := security.LoadSigningKey(cfg.JWT.SigningMethod, cfg.JWT.Secret, cfg.JWT.PrivateKeyFile)
	if err != nil {
		return err
	}
	codec := security.NewJWTCodec(key,
		security.WithIssuer(cfg.JWT.Issuer),
		security.WithLeeway(cfg.JWT.ClockSkew),
	)
	hasher := security.NewBcryptHasher(cfg.Login.BcryptCost)

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	principals := mongodb.NewPrincipalRepository(db)
	if err := principals.EnsureIndexes(ctx); err != nil {
		return err
	}
	auditRepo := mongodb.NewAuditRepository(db)
	if err := auditRepo.EnsureIndexes(ctx); err != nil {
		return err
	}

	// --- Audit trail ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	audit := queue.NewAuditDispatcher(cfg.Audit.Workers, auditRepo, log)
	audit.Start(workerCtx)
	defer func() {
		stopWorkers()
		audit.Wait()
	}()

	// --- Services ---
	throttle := redisdb.NewLoginThrottle(rdb, cfg.Login.MaxAttempts, cfg.Login.Window)
	authService := service.NewAuthService(principals, hasher, codec, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL, log,
		service.WithThrottle(throttle),
		service.WithAudit(audit),
	)
	userService := service.NewUserService(principals, hasher, audit, log)
	guard := service.NewAccessGuard(codec)

	if cfg.Bootstrap.Enabled() {
		if err := authService.EnsureAdmin(ctx, cfg.Bootstrap.Username, cfg.Bootstrap.Email, cfg.Bootstrap.Password); err != nil {
			return err
		}
	}

	e := api.NewRouter(api.Dependencies{
		Auth:  authService,
		Users: userService,
		Guard: guard,
		Health: map[string]handler.Pinger{
			"mongodb": mongodb.NewPinger(mongoClient),
			"redis":   redisdb.NewPinger(rdb),
		},
		Log: log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("signing_method", key.Alg()).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
