package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stefantrajanov/recenzija-mk/internal/app"
	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

type statusErr int

func (e statusErr) Error() string   { return "upstream status" }
func (e statusErr) StatusCode() int { return int(e) }

type fakePlaces struct {
	mu        sync.Mutex
	text      map[string][]domain.Place
	nearby    map[string][]domain.Place // keyed by first included type
	textErr   map[string]error
	photoErr  error
	textReqs  []domain.TextSearchRequest
	photoReqs []string
}

func newFakePlaces() *fakePlaces {
	return &fakePlaces{text: map[string][]domain.Place{}, nearby: map[string][]domain.Place{}, textErr: map[string]error{}}
}

func (f *fakePlaces) TextSearch(ctx context.Context, req domain.TextSearchRequest) ([]domain.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textReqs = append(f.textReqs, req)
	if err := f.textErr[req.Query]; err != nil {
		return nil, err
	}
	return f.text[req.Query], nil
}

func (f *fakePlaces) NearbySearch(ctx context.Context, req domain.NearbySearchRequest) ([]domain.Place, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nearby[req.IncludedTypes[0]], nil
}

func (f *fakePlaces) FetchPhoto(ctx context.Context, name string, maxWidthPx int) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.photoReqs = append(f.photoReqs, name)
	if f.photoErr != nil {
		return nil, "", f.photoErr
	}
	return []byte("jpegbytes"), "image/jpeg", nil
}

func (f *fakePlaces) PhotoURL(name string, maxWidthPx int) string {
	return "https://upstream.example/" + name
}

type fakePhotos struct {
	keys []string
}

func (f *fakePhotos) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	f.keys = append(f.keys, key)
	return "https://cdn.example/" + key, nil
}

var (
	cafes = app.CategorySeed{
		Query:    "Cafes in Skopje",
		Category: domain.Category{Slug: "cafes", Name: "Cafes", NameMk: "Кафулиња", Icon: "Coffee"},
		Types:    []string{"cafe"},
	}
	shops = app.CategorySeed{
		Query:    "Shopping in Skopje",
		Category: domain.Category{Slug: "shopping", Name: "Shopping", NameMk: "Шопинг", Icon: "ShoppingBag"},
	}
)

func place(id, name string) domain.Place {
	return domain.Place{ID: id, DisplayName: name, Location: &domain.Coords{Lat: 42, Lng: 21.4}}
}

func byPlaceID(repo *fakeRepo, id string) (domain.Business, bool) {
	for _, b := range repo.businesses {
		if b.PlaceID == id {
			return b, true
		}
	}
	return domain.Business{}, false
}

func TestSeed_StoresPlacesAndSkipsBadOnes(t *testing.T) {
	places := newFakePlaces()
	p1 := place("p1", "Kafe Eden")
	p1.PriceLevel = "PRICE_LEVEL_MODERATE"
	p1.Rating = ptr(4.6)
	p1.UserRatingCount = ptr(120)
	p1.Types = []string{"cafe", "food"}
	noID := place("", "Nameless")
	noLoc := domain.Place{ID: "p3", DisplayName: "Nowhere"}
	places.text[cafes.Query] = []domain.Place{p1, noID, noLoc}
	places.nearby["cafe"] = []domain.Place{place("p4", "")}

	repo := newFakeRepo()
	svc := app.NewSeedService(places, repo, nil, nil, app.DefaultSeedConfig())

	rep, err := svc.Run(context.Background(), []app.CategorySeed{cafes})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Categories != 1 || rep.Upserted != 2 || rep.Skipped != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(repo.misses) != 2 {
		t.Fatalf("want 2 recorded misses, got %v", repo.misses)
	}

	b, ok := byPlaceID(repo, "p1")
	if !ok {
		t.Fatalf("p1 not stored")
	}
	if b.CategorySlug != "cafes" || b.PriceLevel == nil || *b.PriceLevel != 2 {
		t.Fatalf("bad mapping: %+v", b)
	}
	if b.Rating != 0 || b.ReviewCount != 0 {
		t.Fatalf("seeding must not set the review aggregate: %v/%d", b.Rating, b.ReviewCount)
	}
	if b.PlacesRating == nil || *b.PlacesRating != 4.6 || *b.PlacesRatingCount != 120 {
		t.Fatalf("upstream rating not kept: %+v", b)
	}
	if b4, _ := byPlaceID(repo, "p4"); b4.Name != "Unknown" {
		t.Fatalf("empty name should default, got %q", b4.Name)
	}
	if _, ok := repo.categories["cafes"]; !ok {
		t.Fatalf("category not upserted")
	}

	req := places.textReqs[0]
	if req.LocationBias == nil || req.LocationBias.RadiusM != 10000 || req.PageSize != 20 {
		t.Fatalf("unexpected text request %+v", req)
	}
}

func TestSeed_FailedSearchDoesNotStopOthers(t *testing.T) {
	places := newFakePlaces()
	places.textErr[cafes.Query] = statusErr(429)
	places.text[shops.Query] = []domain.Place{place("s1", "Mall")}

	repo := newFakeRepo()
	svc := app.NewSeedService(places, repo, nil, nil, app.DefaultSeedConfig())

	rep, err := svc.Run(context.Background(), []app.CategorySeed{cafes, shops})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Categories != 2 || rep.Upserted != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(repo.misses) != 1 || !strings.Contains(repo.misses[0], "text search") {
		t.Fatalf("want one text search miss, got %v", repo.misses)
	}
}

func TestSeed_UpsertFailureIsSkipped(t *testing.T) {
	places := newFakePlaces()
	places.text[shops.Query] = []domain.Place{place("s1", "A"), place("s2", "B")}
	repo := newFakeRepo()
	repo.failUpsert["s1"] = errors.New("constraint")

	rep, err := app.NewSeedService(places, repo, nil, nil, app.DefaultSeedConfig()).Run(context.Background(), []app.CategorySeed{shops})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Upserted != 1 || rep.Skipped != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestSeed_RerunKeepsIDsAndRating(t *testing.T) {
	places := newFakePlaces()
	places.text[shops.Query] = []domain.Place{place("s1", "Mall")}
	repo := newFakeRepo()
	svc := app.NewSeedService(places, repo, nil, nil, app.DefaultSeedConfig())

	if _, err := svc.Run(context.Background(), []app.CategorySeed{shops}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	first, _ := byPlaceID(repo, "s1")
	_ = repo.SetBusinessRating(context.Background(), first.ID, 4.5, 2)

	places.text[shops.Query] = []domain.Place{place("s1", "Mall Renamed")}
	if _, err := svc.Run(context.Background(), []app.CategorySeed{shops}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	again, _ := byPlaceID(repo, "s1")
	if again.ID != first.ID || again.Name != "Mall Renamed" {
		t.Fatalf("rerun should update in place: %+v", again)
	}
	if again.Rating != 4.5 || again.ReviewCount != 2 {
		t.Fatalf("rerun clobbered review aggregate: %v/%d", again.Rating, again.ReviewCount)
	}
	if len(repo.businesses) != 1 {
		t.Fatalf("duplicate business created")
	}
}

func TestSeed_PhotoMirrorAndFallback(t *testing.T) {
	p := place("p1", "Kafe")
	p.PhotoNames = []string{"places/p1/photos/abc"}

	// mirrored
	places := newFakePlaces()
	places.text[shops.Query] = []domain.Place{p}
	repo := newFakeRepo()
	photos := &fakePhotos{}
	if _, err := app.NewSeedService(places, repo, photos, nil, app.DefaultSeedConfig()).Run(context.Background(), []app.CategorySeed{shops}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, _ := byPlaceID(repo, "p1")
	if b.PhotoURL == nil || *b.PhotoURL != "https://cdn.example/businesses/p1.jpg" {
		t.Fatalf("unexpected mirrored url %v", b.PhotoURL)
	}

	// fetch fails, fall back to upstream url
	places = newFakePlaces()
	places.text[shops.Query] = []domain.Place{p}
	places.photoErr = errors.New("boom")
	repo = newFakeRepo()
	if _, err := app.NewSeedService(places, repo, &fakePhotos{}, nil, app.DefaultSeedConfig()).Run(context.Background(), []app.CategorySeed{shops}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, _ = byPlaceID(repo, "p1")
	if b.PhotoURL == nil || *b.PhotoURL != "https://upstream.example/places/p1/photos/abc" {
		t.Fatalf("unexpected fallback url %v", b.PhotoURL)
	}

	// no store configured: upstream url without fetching
	places = newFakePlaces()
	places.text[shops.Query] = []domain.Place{p}
	repo = newFakeRepo()
	if _, err := app.NewSeedService(places, repo, nil, nil, app.DefaultSeedConfig()).Run(context.Background(), []app.CategorySeed{shops}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(places.photoReqs) != 0 {
		t.Fatalf("photo fetched without a store")
	}
}

func TestSeed_InvalidatesCategoryCache(t *testing.T) {
	places := newFakePlaces()
	repo := newFakeRepo()
	cache := newFakeCache()
	_ = cache.Set(context.Background(), "categories", []domain.Category{}, 60)

	if _, err := app.NewSeedService(places, repo, nil, cache, app.DefaultSeedConfig()).Run(context.Background(), []app.CategorySeed{shops}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cache.has("categories") {
		t.Fatalf("categories cache not evicted")
	}
}

func TestSeed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := app.NewSeedService(newFakePlaces(), newFakeRepo(), nil, nil, app.DefaultSeedConfig()).Run(ctx, []app.CategorySeed{cafes, shops})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
