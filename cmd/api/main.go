package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "github.com/stefantrajanov/recenzija-mk/internal/adapters/http_server"
	"github.com/stefantrajanov/recenzija-mk/internal/adapters/observability"
	redisad "github.com/stefantrajanov/recenzija-mk/internal/adapters/redis"
	"github.com/stefantrajanov/recenzija-mk/internal/app"
	"github.com/stefantrajanov/recenzija-mk/internal/domain"
	"github.com/stefantrajanov/recenzija-mk/internal/shared"
	"github.com/stefantrajanov/recenzija-mk/internal/storage/sqlrepo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, "api")

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Info().Msg("database connection ok")

	// cache stays a nil interface when redis is off or unreachable
	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, running without cache")
		} else {
			cache = rc
			defer rc.Close()
		}
	}

	// deps; observers run in this order after every review write
	repo := sqlrepo.New(db)
	observers := []domain.ReviewObserver{app.NewRatingAggregator(repo)}
	if cache != nil {
		observers = append(observers, app.NewCacheInvalidator(cache))
	}
	observers = append(observers, observability.ReviewMetrics{})

	q := app.NewQueryService(repo, cache, cfg.CacheTTL)
	rs := app.NewReviewService(repo, observers...)

	// http
	srv := server.New(cfg.CORSOrigins)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, R: rs, AdminSecret: []byte(cfg.AdminSecret)})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
