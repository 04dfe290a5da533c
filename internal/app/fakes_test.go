package app_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

// ---- in-memory repository ----

type fakeRepo struct {
	mu         sync.Mutex
	categories map[string]domain.Category
	businesses map[int64]domain.Business
	reviews    map[int64]domain.Review
	misses     []string
	nextID     int64

	// observed calls
	listQueries []domain.BusinessQuery
	boxCalls    int
	createCalls int
	getCalls    int

	failUpsert map[string]error
	failStats  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		categories: map[string]domain.Category{},
		businesses: map[int64]domain.Business{},
		reviews:    map[int64]domain.Review{},
		failUpsert: map[string]error{},
	}
}

func (f *fakeRepo) id() int64 { f.nextID++; return f.nextID }

func (f *fakeRepo) addBusiness(b domain.Business) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	b.ID = f.id()
	f.businesses[b.ID] = b
	return b.ID
}

func (f *fakeRepo) UpsertCategory(ctx context.Context, c domain.Category) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories[c.Slug] = c
	return nil
}

func (f *fakeRepo) UpsertBusiness(ctx context.Context, b domain.Business) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failUpsert[b.PlaceID]; err != nil {
		return 0, err
	}
	for id, cur := range f.businesses {
		if cur.PlaceID == b.PlaceID {
			b.ID, b.Rating, b.ReviewCount = id, cur.Rating, cur.ReviewCount
			f.businesses[id] = b
			return id, nil
		}
	}
	b.ID = f.id()
	f.businesses[b.ID] = b
	return b.ID, nil
}

func (f *fakeRepo) CreateReview(ctx context.Context, r domain.Review) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	r.ID = f.id()
	r.CreatedAt = time.Unix(1_700_000_000+r.ID, 0).UTC()
	f.reviews[r.ID] = r
	return r, nil
}

func (f *fakeRepo) DeleteReview(ctx context.Context, businessID, reviewID int64) (domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reviews[reviewID]
	if !ok || r.BusinessID != businessID {
		return domain.Review{}, domain.ErrNotFound
	}
	delete(f.reviews, reviewID)
	return r, nil
}

func (f *fakeRepo) LogMiss(ctx context.Context, query string, status int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.misses = append(f.misses, query+" | "+reason)
	return nil
}

func (f *fakeRepo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	b, ok := f.businesses[id]
	if !ok {
		return domain.Business{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) ListBusinesses(ctx context.Context, q domain.BusinessQuery) (domain.BusinessPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listQueries = append(f.listQueries, q)
	return domain.BusinessPage{CurrentPage: q.Page, PerPage: q.PerPage, LastPage: 1}, nil
}

func (f *fakeRepo) BusinessesInBox(ctx context.Context, box domain.Box) ([]domain.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boxCalls++
	var out []domain.Business
	for _, b := range f.businesses {
		if box.Contains(b.Coords) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListReviews(ctx context.Context, businessID int64) ([]domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Review{}
	for _, r := range f.reviews {
		if r.BusinessID == businessID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeRepo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Category{}
	for _, c := range f.categories {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) GetCategory(ctx context.Context, slug string) (domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.categories[slug]
	if !ok {
		return domain.Category{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ReviewStats(ctx context.Context, businessID int64) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStats != nil {
		return 0, 0, f.failStats
	}
	count, sum := 0, 0
	for _, r := range f.reviews {
		if r.BusinessID == businessID {
			count++
			sum += r.Rating
		}
	}
	return count, sum, nil
}

func (f *fakeRepo) SetBusinessRating(ctx context.Context, businessID int64, rating float64, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.businesses[businessID]
	b.Rating, b.ReviewCount = rating, count
	f.businesses[businessID] = b
	return nil
}

// ---- JSON round-tripping cache, like the redis adapter ----

type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func newFakeCache() *fakeCache { return &fakeCache{store: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = b
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.store[key]
	return ok
}

func ptr[T any](v T) *T { return &v }
