package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string // empty disables the read cache
	RedisDB     int
	RedisPass   string
	CacheTTL    time.Duration
	CORSOrigins []string
	AdminSecret string

	PlacesBase string
	PlacesKey  string
	PlacesRPS  int

	SeedWorkers int
	SeedLat     float64
	SeedLng     float64

	PhotoBucket    string // empty disables photo mirroring
	PhotoEndpoint  string
	PhotoAccessKey string
	PhotoSecretKey string
	PhotoPublicURL string
}

// Load reads the environment, after merging in a .env file from the working
// directory when there is one. Real environment variables win over .env.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg(".env loaded")
	}

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ""),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/recenzija?parseTime=true&charset=utf8mb4&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		CORSOrigins: list("CORS_ORIGINS", "http://localhost:5173"),
		AdminSecret: env("ADMIN_JWT_SECRET", ""),

		PlacesBase: env("PLACES_BASE_URL", "https://places.googleapis.com/v1"),
		PlacesKey:  env("PLACES_API_KEY", ""),
		PlacesRPS:  atoi("PLACES_RPS", 5),

		SeedWorkers: atoi("SEED_WORKERS", 4),
		SeedLat:     atof("SEED_LAT", 41.9981),
		SeedLng:     atof("SEED_LNG", 21.4254),

		PhotoBucket:    env("PHOTO_BUCKET", ""),
		PhotoEndpoint:  env("PHOTO_ENDPOINT", ""),
		PhotoAccessKey: env("PHOTO_ACCESS_KEY", ""),
		PhotoSecretKey: env("PHOTO_SECRET_KEY", ""),
		PhotoPublicURL: env("PHOTO_PUBLIC_BASE_URL", ""),
	}
	if c.AdminSecret == "" {
		log.Warn().Msg("ADMIN_JWT_SECRET is empty; review moderation is disabled")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
	}
	return def
}

func atof(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Warn().Str("key", k).Str("value", v).Msg("not a number, using default")
	}
	return def
}

// list splits a comma-separated value, dropping blanks.
func list(k, def string) []string {
	var out []string
	for _, s := range strings.Split(env(k, def), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
