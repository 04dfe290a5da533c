package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

const (
	DefaultPerPage  = 20
	MaxPerPage      = 100
	DefaultRadiusKm = 10.0
	MaxRadiusKm     = 50.0
	NearbyLimit     = 20
)

type QueryService struct {
	repo     domain.DirectoryRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.DirectoryRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

// ListBusinesses never rejects input: unknown sort keys and bad paging
// values fall back to their defaults.
func (s *QueryService) ListBusinesses(ctx context.Context, q domain.BusinessQuery) (domain.BusinessPage, error) {
	q.Q = strings.TrimSpace(q.Q)
	q.Category = strings.TrimSpace(q.Category)
	q.Sort = domain.ParseSortKey(string(q.Sort))
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	if q.Page < 1 {
		q.Page = 1
	}
	return s.repo.ListBusinesses(ctx, q)
}

func (s *QueryService) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	key := businessKey(id)
	var b domain.Business
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &b); ok {
			return b, nil
		}
	}
	b, err := s.repo.GetBusiness(ctx, id)
	if err != nil {
		return domain.Business{}, err
	}
	s.store(ctx, key, b)
	return b, nil
}

// ParseNearbyQuery turns raw query parameters into a validated NearbyQuery.
// An empty radius means DefaultRadiusKm.
func ParseNearbyQuery(lat, lng, radius string) (domain.NearbyQuery, error) {
	verr := &ValidationError{}
	num := func(field, raw string) float64 {
		if strings.TrimSpace(raw) == "" {
			verr.add(field, "is required")
			return 0
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			verr.add(field, "must be a number")
		}
		return f
	}

	q := domain.NearbyQuery{
		Lat:      num("lat", lat),
		Lng:      num("lng", lng),
		RadiusKm: DefaultRadiusKm,
	}
	if strings.TrimSpace(radius) != "" {
		q.RadiusKm = num("radius", radius)
	}
	validateNearby(q, verr)
	return q, verr.orNil()
}

func validateNearby(q domain.NearbyQuery, verr *ValidationError) {
	// written as negations so NaN fails too
	if !(q.Lat >= -90 && q.Lat <= 90) {
		verr.add("lat", "must be between -90 and 90")
	}
	if !(q.Lng >= -180 && q.Lng <= 180) {
		verr.add("lng", "must be between -180 and 180")
	}
	if !(q.RadiusKm > 0 && q.RadiusKm <= MaxRadiusKm) {
		verr.add("radius", fmt.Sprintf("must be greater than 0 and at most %g", MaxRadiusKm))
	}
}

// Nearby returns at most NearbyLimit businesses within q.RadiusKm of the
// query point, closest first, each carrying its distance in km.
func (s *QueryService) Nearby(ctx context.Context, q domain.NearbyQuery) ([]domain.Business, error) {
	verr := &ValidationError{}
	validateNearby(q, verr)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	center := domain.Coords{Lat: q.Lat, Lng: q.Lng}
	candidates, err := s.repo.BusinessesInBox(ctx, domain.BoundingBox(center, q.RadiusKm))
	if err != nil {
		return nil, err
	}
	return withinRadius(center, q.RadiusKm, candidates), nil
}

// withinRadius is the exact filter behind Nearby; the storage box only narrows
// the candidate set.
func withinRadius(center domain.Coords, radiusKm float64, candidates []domain.Business) []domain.Business {
	out := make([]domain.Business, 0, len(candidates))
	for _, b := range candidates {
		d := domain.Haversine(center, b.Coords)
		if d > radiusKm || math.IsNaN(d) {
			continue
		}
		b.Distance = &d
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].Distance != *out[j].Distance {
			return *out[i].Distance < *out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > NearbyLimit {
		out = out[:NearbyLimit]
	}
	return out
}

// ListReviews returns the business's reviews newest first, or ErrNotFound.
func (s *QueryService) ListReviews(ctx context.Context, businessID int64) ([]domain.Review, error) {
	key := reviewsKey(businessID)
	var out []domain.Review
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &out); ok {
			return out, nil
		}
	}
	if _, err := s.GetBusiness(ctx, businessID); err != nil {
		return nil, err
	}
	rs, err := s.repo.ListReviews(ctx, businessID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, rs)
	return rs, nil
}

func (s *QueryService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var out []domain.Category
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, categoriesKey, &out); ok {
			return out, nil
		}
	}
	cs, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, categoriesKey, cs)
	return cs, nil
}

func (s *QueryService) GetCategory(ctx context.Context, slug string) (domain.Category, error) {
	key := categoryKey(slug)
	var c domain.Category
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &c); ok {
			return c, nil
		}
	}
	c, err := s.repo.GetCategory(ctx, slug)
	if err != nil {
		return domain.Category{}, err
	}
	s.store(ctx, key, c)
	return c, nil
}

func (s *QueryService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, key, v, int(s.cacheTTL.Seconds()))
}

// cache keys

const categoriesKey = "categories"

func businessKey(id int64) string    { return fmt.Sprintf("business:%d", id) }
func reviewsKey(id int64) string     { return fmt.Sprintf("reviews:%d", id) }
func categoryKey(slug string) string { return "category:" + slug }
