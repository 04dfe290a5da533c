package app_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stefantrajanov/recenzija-mk/internal/app"
	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

var skopje = domain.Coords{Lat: 41.9981, Lng: 21.4254}

func TestListBusinesses_NormalizesInsteadOfRejecting(t *testing.T) {
	repo := newFakeRepo()
	q := app.NewQueryService(repo, nil, time.Minute)

	cases := []struct {
		in   domain.BusinessQuery
		want domain.BusinessQuery
	}{
		{
			in:   domain.BusinessQuery{},
			want: domain.BusinessQuery{Sort: domain.SortRating, PerPage: 20, Page: 1},
		},
		{
			in:   domain.BusinessQuery{Q: "  pizza ", Category: " cafes ", Sort: "bogus", PerPage: 500, Page: -3},
			want: domain.BusinessQuery{Q: "pizza", Category: "cafes", Sort: domain.SortRating, PerPage: 100, Page: 1},
		},
		{
			in:   domain.BusinessQuery{Sort: "price", PerPage: 5, Page: 2},
			want: domain.BusinessQuery{Sort: domain.SortPrice, PerPage: 5, Page: 2},
		},
	}
	for i, tc := range cases {
		if _, err := q.ListBusinesses(context.Background(), tc.in); err != nil {
			t.Fatalf("case %d: unexpected err %v", i, err)
		}
		if got := repo.listQueries[i]; got != tc.want {
			t.Fatalf("case %d: repo got %+v, want %+v", i, got, tc.want)
		}
	}
}

func TestGetBusiness_CacheMissThenHit(t *testing.T) {
	repo := newFakeRepo()
	id := repo.addBusiness(domain.Business{Name: "Kafe Test", CategorySlug: "cafes"})
	cache := newFakeCache()
	q := app.NewQueryService(repo, cache, 10*time.Minute)

	// Miss (first time, populates cache)
	b, err := q.GetBusiness(context.Background(), id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if b.ID != id || b.Name != "Kafe Test" {
		t.Fatalf("unexpected business: %+v", b)
	}

	// Mutate repo to ensure second read indeed comes from cache
	repo.businesses[id] = domain.Business{ID: id, Name: "SHOULD NOT SEE THIS"}

	b2, err := q.GetBusiness(context.Background(), id)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if b2.Name != "Kafe Test" {
		t.Fatalf("expected cached name, got %s", b2.Name)
	}
}

func TestGetBusiness_NotFoundIsNotCached(t *testing.T) {
	repo := newFakeRepo()
	cache := newFakeCache()
	q := app.NewQueryService(repo, cache, time.Minute)

	if _, err := q.GetBusiness(context.Background(), 7); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if cache.has("business:7") {
		t.Fatalf("not-found must not be cached")
	}
}

func TestParseNearbyQuery(t *testing.T) {
	q, err := app.ParseNearbyQuery("41.99", "21.42", "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if q.RadiusKm != app.DefaultRadiusKm {
		t.Fatalf("want default radius, got %v", q.RadiusKm)
	}

	bad := []struct {
		lat, lng, radius string
		field            string
	}{
		{"91", "0", "", "lat"},
		{"-90.5", "0", "", "lat"},
		{"0", "180.1", "", "lng"},
		{"0", "0", "51", "radius"},
		{"0", "0", "0", "radius"},
		{"0", "0", "-1", "radius"},
		{"", "0", "", "lat"},
		{"0", "abc", "", "lng"},
		{"NaN", "0", "", "lat"},
	}
	for _, tc := range bad {
		_, err := app.ParseNearbyQuery(tc.lat, tc.lng, tc.radius)
		var verr *app.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("(%q,%q,%q): want ValidationError, got %v", tc.lat, tc.lng, tc.radius, err)
		}
		if _, ok := verr.Fields[tc.field]; !ok {
			t.Fatalf("(%q,%q,%q): want error on %s, got %v", tc.lat, tc.lng, tc.radius, tc.field, verr.Fields)
		}
	}

	if _, err := app.ParseNearbyQuery("-90", "180", "50"); err != nil {
		t.Fatalf("bounds are inclusive: %v", err)
	}
}

func TestNearby_RejectsInvalidBeforeStorage(t *testing.T) {
	repo := newFakeRepo()
	q := app.NewQueryService(repo, nil, time.Minute)

	for _, nq := range []domain.NearbyQuery{
		{Lat: 91, Lng: 0, RadiusKm: 10},
		{Lat: 0, Lng: 0, RadiusKm: 51},
		{Lat: 0, Lng: 0, RadiusKm: 0},
		{Lat: 0, Lng: -181, RadiusKm: 10},
	} {
		_, err := q.Nearby(context.Background(), nq)
		var verr *app.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%+v: want ValidationError, got %v", nq, err)
		}
	}
	if repo.boxCalls != 0 {
		t.Fatalf("storage touched %d times for invalid input", repo.boxCalls)
	}
}

func TestNearby_ReturnsOnlyWithinRadiusSortedByDistance(t *testing.T) {
	repo := newFakeRepo()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		repo.addBusiness(domain.Business{
			Name:   fmt.Sprintf("b%d", i),
			Coords: domain.Coords{Lat: skopje.Lat + (rng.Float64()-0.5)*0.4, Lng: skopje.Lng + (rng.Float64()-0.5)*0.4},
		})
	}
	q := app.NewQueryService(repo, nil, time.Minute)

	for _, radius := range []float64{0.5, 2, 5, 10, 50} {
		got, err := q.Nearby(context.Background(), domain.NearbyQuery{Lat: skopje.Lat, Lng: skopje.Lng, RadiusKm: radius})
		if err != nil {
			t.Fatalf("Nearby: %v", err)
		}
		if len(got) > app.NearbyLimit {
			t.Fatalf("radius %v: %d results exceed cap", radius, len(got))
		}

		inside := 0
		for _, b := range repo.businesses {
			if domain.Haversine(skopje, b.Coords) <= radius {
				inside++
			}
		}
		if want := min(inside, app.NearbyLimit); len(got) != want {
			t.Fatalf("radius %v: got %d results, want %d", radius, len(got), want)
		}

		prev := -1.0
		for _, b := range got {
			d := domain.Haversine(skopje, b.Coords)
			if b.Distance == nil || math.Abs(*b.Distance-d) > 1e-12 {
				t.Fatalf("distance not attached or wrong: %+v", b)
			}
			if d > radius {
				t.Fatalf("radius %v: %s at %.3f km is outside", radius, b.Name, d)
			}
			if d < prev {
				t.Fatalf("radius %v: not sorted ascending (%v after %v)", radius, d, prev)
			}
			prev = d
		}
	}
}

func TestNearby_CapKeepsClosest(t *testing.T) {
	repo := newFakeRepo()
	// 30 businesses in a line heading north, 100 m apart
	for i := 0; i < 30; i++ {
		repo.addBusiness(domain.Business{Name: fmt.Sprintf("b%02d", i), Coords: domain.Coords{Lat: skopje.Lat + float64(i)*0.0009, Lng: skopje.Lng}})
	}
	q := app.NewQueryService(repo, nil, time.Minute)

	got, err := q.Nearby(context.Background(), domain.NearbyQuery{Lat: skopje.Lat, Lng: skopje.Lng, RadiusKm: 10})
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("want 20, got %d", len(got))
	}
	if got[0].Name != "b00" || got[19].Name != "b19" {
		t.Fatalf("cap should keep the closest: first=%s last=%s", got[0].Name, got[19].Name)
	}
}

func TestListReviews_UnknownBusiness(t *testing.T) {
	q := app.NewQueryService(newFakeRepo(), newFakeCache(), time.Minute)
	if _, err := q.ListReviews(context.Background(), 99); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCategories_Cached(t *testing.T) {
	repo := newFakeRepo()
	_ = repo.UpsertCategory(context.Background(), domain.Category{Slug: "cafes", Name: "Cafes"})
	cache := newFakeCache()
	q := app.NewQueryService(repo, cache, time.Minute)

	if _, err := q.ListCategories(context.Background()); err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	c, err := q.GetCategory(context.Background(), "cafes")
	if err != nil || c.Name != "Cafes" {
		t.Fatalf("GetCategory = %+v, %v", c, err)
	}
	repo.categories["cafes"] = domain.Category{Slug: "cafes", Name: "Changed"}

	cs, _ := q.ListCategories(context.Background())
	c2, _ := q.GetCategory(context.Background(), "cafes")
	if len(cs) != 1 || cs[0].Name != "Cafes" || c2.Name != "Cafes" {
		t.Fatalf("expected cached categories, got %+v / %+v", cs, c2)
	}
	if _, err := q.GetCategory(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
