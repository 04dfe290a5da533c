package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

// CategorySeed describes one category and how to find its businesses upstream.
type CategorySeed struct {
	Query    string
	Category domain.Category
	Types    []string // Places types for the nearby search
}

var DefaultCategorySeeds = []CategorySeed{
	{
		Query:    "Restaurants in Skopje",
		Category: domain.Category{Slug: "restaurants", Name: "Restaurants", NameMk: "Ресторани", Icon: "UtensilsCrossed"},
		Types:    []string{"restaurant"},
	},
	{
		Query:    "Cafes in Skopje",
		Category: domain.Category{Slug: "cafes", Name: "Cafes", NameMk: "Кафулиња", Icon: "Coffee"},
		Types:    []string{"cafe"},
	},
	{
		Query:    "Auto services in Skopje",
		Category: domain.Category{Slug: "services", Name: "Services", NameMk: "Услуги", Icon: "Wrench"},
		Types:    []string{"car_repair"},
	},
	{
		Query:    "Shopping in Skopje",
		Category: domain.Category{Slug: "shopping", Name: "Shopping", NameMk: "Шопинг", Icon: "ShoppingBag"},
		Types:    []string{"shopping_mall", "store"},
	},
}

type SeedConfig struct {
	Center           domain.Coords
	TextBiasRadiusM  float64
	TextPageSize     int
	NearbyRadiusM    float64
	NearbyMaxResults int
	PhotoMaxWidthPx  int
	Workers          int
}

// DefaultSeedConfig centers on Skopje.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Center:           domain.Coords{Lat: 41.9981, Lng: 21.4254},
		TextBiasRadiusM:  10000,
		TextPageSize:     20,
		NearbyRadiusM:    5000,
		NearbyMaxResults: 10,
		PhotoMaxWidthPx:  800,
		Workers:          4,
	}
}

type SeedReport struct {
	Categories int
	Upserted   int
	Skipped    int
}

type SeedService struct {
	places domain.PlacesClient
	repo   domain.DirectoryRepository
	photos domain.PhotoStore // optional
	cache  *CacheInvalidator // optional
	cfg    SeedConfig
}

func NewSeedService(p domain.PlacesClient, r domain.DirectoryRepository, photos domain.PhotoStore, cache domain.Cache, cfg SeedConfig) *SeedService {
	s := &SeedService{places: p, repo: r, photos: photos, cfg: cfg}
	if cache != nil {
		s.cache = NewCacheInvalidator(cache)
	}
	return s
}

// Run searches upstream for every seed concurrently (bounded by cfg.Workers)
// and then stores the results in seed order, so a place found under several
// categories ends up in the last one. Individual failures are logged,
// recorded as seed misses and skipped; only cancellation aborts the run.
func (s *SeedService) Run(ctx context.Context, seeds []CategorySeed) (SeedReport, error) {
	workers := s.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	results := make([][]domain.Place, len(seeds))
	var wg sync.WaitGroup

	for i, seed := range seeds {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return SeedReport{}, err
		}
		wg.Add(1)
		go func(i int, seed CategorySeed) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = s.search(ctx, seed)
		}(i, seed)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return SeedReport{}, err
	}

	var rep SeedReport
	for i, seed := range seeds {
		up, skipped, ok := s.store(ctx, seed, results[i])
		if ok {
			rep.Categories++
		}
		rep.Upserted += up
		rep.Skipped += skipped
	}
	if s.cache != nil {
		slugs := make([]string, 0, len(seeds))
		for _, seed := range seeds {
			slugs = append(slugs, seed.Category.Slug)
		}
		s.cache.invalidateCategories(ctx, slugs...)
	}
	return rep, nil
}

// search runs the text search and the nearby search for one seed. Either may
// fail on its own without losing the other's results.
func (s *SeedService) search(ctx context.Context, seed CategorySeed) []domain.Place {
	var out []domain.Place

	text, err := s.places.TextSearch(ctx, domain.TextSearchRequest{
		Query:        seed.Query,
		LocationBias: &domain.Circle{Center: s.cfg.Center, RadiusM: s.cfg.TextBiasRadiusM},
		PageSize:     s.cfg.TextPageSize,
	})
	if err != nil {
		s.miss(ctx, seed.Query, err, "text search")
	} else {
		log.Info().Str("query", seed.Query).Int("found", len(text)).Msg("text search ok")
		out = append(out, text...)
	}

	if len(seed.Types) > 0 {
		near, err := s.places.NearbySearch(ctx, domain.NearbySearchRequest{
			Area:          domain.Circle{Center: s.cfg.Center, RadiusM: s.cfg.NearbyRadiusM},
			IncludedTypes: seed.Types,
			MaxResults:    s.cfg.NearbyMaxResults,
		})
		if err != nil {
			s.miss(ctx, seed.Query, err, "nearby search")
		} else {
			log.Info().Str("query", seed.Query).Int("found", len(near)).Msg("nearby search ok")
			out = append(out, near...)
		}
	}
	return out
}

func (s *SeedService) store(ctx context.Context, seed CategorySeed, places []domain.Place) (upserted, skipped int, ok bool) {
	if err := s.repo.UpsertCategory(ctx, seed.Category); err != nil {
		// businesses reference the category; without it none can be stored
		log.Error().Err(err).Str("slug", seed.Category.Slug).Msg("category upsert failed")
		return 0, len(places), false
	}

	for _, p := range places {
		b, err := mapPlace(p, seed.Category.Slug)
		if err != nil {
			s.miss(ctx, placeLabel(p), err, "map place")
			skipped++
			continue
		}
		b.PhotoURL = s.photoURL(ctx, p)

		id, err := s.repo.UpsertBusiness(ctx, b)
		if err != nil {
			s.miss(ctx, p.ID, err, "upsert business")
			skipped++
			continue
		}
		if s.cache != nil {
			s.cache.invalidateBusiness(ctx, id)
		}
		upserted++
	}
	log.Info().Str("slug", seed.Category.Slug).Int("upserted", upserted).Int("skipped", skipped).Msg("category seeded")
	return upserted, skipped, true
}

// photoURL mirrors the first photo into the photo store when one is
// configured, so stored URLs do not carry the upstream API key. Without a
// store, or when mirroring fails, it falls back to the upstream media URL.
func (s *SeedService) photoURL(ctx context.Context, p domain.Place) *string {
	if len(p.PhotoNames) == 0 || p.PhotoNames[0] == "" {
		return nil
	}
	name := p.PhotoNames[0]
	if s.photos != nil {
		body, contentType, err := s.places.FetchPhoto(ctx, name, s.cfg.PhotoMaxWidthPx)
		if err == nil {
			var u string
			u, err = s.photos.Put(ctx, photoKey(p.ID, contentType), contentType, body)
			if err == nil {
				return &u
			}
		}
		log.Warn().Err(err).Str("place_id", p.ID).Msg("photo mirror failed, using upstream url")
	}
	u := s.places.PhotoURL(name, s.cfg.PhotoMaxWidthPx)
	return &u
}

func (s *SeedService) miss(ctx context.Context, query string, err error, stage string) {
	status := statusOf(err)
	log.Warn().Err(err).Str("query", query).Int("status", status).Str("stage", stage).Msg("seed item skipped")
	reason := truncate(fmt.Sprintf("%s: %v", stage, err), 255)
	if lerr := s.repo.LogMiss(ctx, truncate(query, 255), status, reason); lerr != nil {
		log.Error().Err(lerr).Str("query", query).Msg("record seed miss failed")
	}
}

// statusOf extracts an upstream HTTP status when the error carries one.
func statusOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

func placeLabel(p domain.Place) string {
	if p.ID != "" {
		return p.ID
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return "(unnamed place)"
}
