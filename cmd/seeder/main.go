package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stefantrajanov/recenzija-mk/internal/adapters/observability"
	"github.com/stefantrajanov/recenzija-mk/internal/adapters/photostore"
	"github.com/stefantrajanov/recenzija-mk/internal/adapters/places"
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

	// every line of one run carries the same run id
	runID := uuid.New().String()
	log.Logger = observability.NewLogger(cfg.AppEnv, "seeder").With().Str("run_id", runID).Logger()

	log.Info().
		Str("base", cfg.PlacesBase).
		Int("workers", cfg.SeedWorkers).
		Float64("lat", cfg.SeedLat).
		Float64("lng", cfg.SeedLng).
		Msg("seeder starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := sqlrepo.New(db)

	client, err := places.New(cfg.PlacesBase, cfg.PlacesKey, cfg.PlacesRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize Places client")
	}

	// optional collaborators stay nil interfaces when not configured
	var photos domain.PhotoStore
	if cfg.PhotoBucket != "" {
		ps, err := photostore.New(ctx, photostore.Config{
			Endpoint:      cfg.PhotoEndpoint,
			Bucket:        cfg.PhotoBucket,
			AccessKey:     cfg.PhotoAccessKey,
			SecretKey:     cfg.PhotoSecretKey,
			PublicBaseURL: cfg.PhotoPublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize photo store")
		}
		photos = ps
	} else {
		log.Warn().Msg("PHOTO_BUCKET is empty; photo urls will point at the Places API")
	}

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, cached entries expire on their own")
		} else {
			cache = rc
			defer rc.Close()
		}
	}

	seedCfg := app.DefaultSeedConfig()
	seedCfg.Center = domain.Coords{Lat: cfg.SeedLat, Lng: cfg.SeedLng}
	seedCfg.Workers = cfg.SeedWorkers

	start := time.Now()
	rep, err := app.NewSeedService(client, repo, photos, cache, seedCfg).Run(ctx, app.DefaultCategorySeeds)
	if err != nil {
		log.Fatal().Err(err).Msg("seeding aborted")
	}
	log.Info().
		Int("categories", rep.Categories).
		Int("upserted", rep.Upserted).
		Int("skipped", rep.Skipped).
		Dur("took", time.Since(start)).
		Msg("seeding completed")
}
