package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "rental_api/internal/adapters/http_server"
	"rental_api/internal/adapters/observability"
	redisad "rental_api/internal/adapters/redis"
	"rental_api/internal/app"
	"rental_api/internal/domain"
	"rental_api/internal/shared"
	"rental_api/internal/storage/memory"
	mysqlrepo "rental_api/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// store
	var repo domain.BannerRepository
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		repo = memory.New()
	default:
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatal().Err(err).Msg("db.Ping failed")
		}
		log.Info().Msg("database connection ok")
		repo = mysqlrepo.New(db)
	}

	// rate limiting of the public counters
	var limiter server.Limiter
	switch {
	case !cfg.RateLimitEnabled:
		log.Info().Msg("rate limiting disabled")
	case cfg.RedisAddr != "":
		rl := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, redisad.Config{
			RPS:    cfg.RateLimitRPS,
			Burst:  cfg.RateLimitBurst,
			Prefix: cfg.RateLimitPrefix,
		})
		defer rl.Close()
		pctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := rl.Ping(pctx); err != nil {
			// the limiter fails open, so a cold redis is not fatal
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
		cancel()
		limiter = rl
	default:
		limiter = server.NewLocalLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	banners := app.NewBannerService(repo, nil, cfg.ReorderWorkers)

	// http
	srv := server.New(cfg.RequestTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Banners:   banners,
		JWTSecret: []byte(cfg.JWTSecret),
		Limiter:   limiter,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
