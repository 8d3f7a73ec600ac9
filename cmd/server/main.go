// Command server runs the PDF operations credit and metering API.
//
// @title       PDF Ops Credits API
// @version     1.0
// @description Credit ledger and operation metering for the PDF workspace.
// @BasePath    /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-pdfops-backend/internal/config"
	httpapi "github.com/tbourn/go-pdfops-backend/internal/http"
	"github.com/tbourn/go-pdfops-backend/internal/lock"
	"github.com/tbourn/go-pdfops-backend/internal/observability"
	"github.com/tbourn/go-pdfops-backend/internal/repo"
	"github.com/tbourn/go-pdfops-backend/internal/sysutil"
)

var version = "dev"

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.Open(cfg.DB, cfg.OTEL.Enabled)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("database open failed")
	}

	locker, closeLocker, err := newLocker(ctx, cfg.Lock)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Lock.Backend).Msg("lock backend failed")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, locker, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", version).
			Str("db", cfg.DB.Driver).
			Str("lock", cfg.Lock.Backend).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := closeLocker(); err != nil {
		log.Error().Err(err).Msg("lock backend close")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
}

// newLocker builds the per-user lock. The in-process mutex is only correct
// for a single replica; multi-replica deployments need redis.
func newLocker(ctx context.Context, cfg config.LockConfig) (lock.Locker, func() error, error) {
	if cfg.Backend != "redis" {
		return lock.NewKeyedMutex(cfg.Wait), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	l, err := lock.NewRedisLocker(client, cfg.TTL, cfg.Wait)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return l, client.Close, nil
}
