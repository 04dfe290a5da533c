package domain_test

import (
	"math"
	"testing"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

func TestHaversine_KnownDistances(t *testing.T) {
	skopje := domain.Coords{Lat: 41.9981, Lng: 21.4254}

	if d := domain.Haversine(skopje, skopje); d != 0 {
		t.Fatalf("same point: want 0, got %v", d)
	}

	// one degree along a meridian is R*pi/180
	oneDeg := domain.Haversine(domain.Coords{Lat: 0, Lng: 0}, domain.Coords{Lat: 1, Lng: 0})
	if want := domain.EarthRadiusKm * math.Pi / 180; math.Abs(oneDeg-want) > 1e-9 {
		t.Fatalf("1 deg meridian: want %v, got %v", want, oneDeg)
	}

	// antipodes are half the circumference apart
	anti := domain.Haversine(domain.Coords{Lat: 0, Lng: 0}, domain.Coords{Lat: 0, Lng: 180})
	if want := domain.EarthRadiusKm * math.Pi; math.Abs(anti-want) > 1e-6 {
		t.Fatalf("antipodes: want %v, got %v", want, anti)
	}

	// Skopje -> Ohrid is roughly 100 km as the crow flies
	ohrid := domain.Coords{Lat: 41.1231, Lng: 20.8016}
	if d := domain.Haversine(skopje, ohrid); d < 100 || d > 115 {
		t.Fatalf("skopje-ohrid: got %.2f km", d)
	}
}

func TestHaversine_Symmetric(t *testing.T) {
	a := domain.Coords{Lat: 41.99, Lng: 21.43}
	b := domain.Coords{Lat: -33.86, Lng: 151.21}
	if d1, d2 := domain.Haversine(a, b), domain.Haversine(b, a); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("not symmetric: %v vs %v", d1, d2)
	}
}

func TestBoundingBox_ContainsEveryPointInRadius(t *testing.T) {
	centers := []domain.Coords{
		{Lat: 41.9981, Lng: 21.4254},
		{Lat: 0, Lng: 0},
		{Lat: -45.5, Lng: 170.2},
		{Lat: 89.9, Lng: 10},   // pole inside the circle
		{Lat: 10, Lng: 179.95}, // crosses the antimeridian
	}
	for _, c := range centers {
		for _, r := range []float64{0.1, 1, 10, 50} {
			box := domain.BoundingBox(c, r)
			// walk the circle's boundary and a ring just inside it
			for deg := 0; deg < 360; deg += 5 {
				for _, frac := range []float64{0.5, 0.999} {
					p := destination(c, float64(deg), r*frac)
					if domain.Haversine(c, p) > r {
						continue
					}
					if !box.Contains(p) {
						t.Fatalf("center %+v r=%v: point %+v (bearing %d) outside box %+v", c, r, p, deg, box)
					}
				}
			}
		}
	}
}

func TestBoundingBox_ExcludesFarPoints(t *testing.T) {
	skopje := domain.Coords{Lat: 41.9981, Lng: 21.4254}
	box := domain.BoundingBox(skopje, 10)
	if box.Contains(domain.Coords{Lat: 41.1231, Lng: 20.8016}) {
		t.Fatalf("ohrid should be outside a 10 km box around skopje: %+v", box)
	}
	if box.MinLng <= -180 || box.MaxLng >= 180 {
		t.Fatalf("expected a narrow longitude range, got %+v", box)
	}
}

// destination walks distKm from c along the given bearing on the sphere.
func destination(c domain.Coords, bearingDeg, distKm float64) domain.Coords {
	lat1 := c.Lat * math.Pi / 180
	lng1 := c.Lng * math.Pi / 180
	brg := bearingDeg * math.Pi / 180
	d := distKm / domain.EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))

	lng := lng2 * 180 / math.Pi
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return domain.Coords{Lat: lat2 * 180 / math.Pi, Lng: lng}
}
