package domain

import "math"

const EarthRadiusKm = 6371.0

// Haversine returns the great-circle distance between a and b in kilometers.
func Haversine(a, b Coords) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Box is a lat/lng rectangle in degrees. It is only a storage pre-filter:
// every point within the radius it was built for lies inside it.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// slack keeps points sitting exactly on the circle from being lost to rounding.
const boxSlackDeg = 1e-9

func BoundingBox(center Coords, radiusKm float64) Box {
	delta := radiusKm / EarthRadiusKm // angular radius
	deltaDeg := degrees(delta)

	b := Box{
		MinLat: center.Lat - deltaDeg - boxSlackDeg,
		MaxLat: center.Lat + deltaDeg + boxSlackDeg,
		MinLng: -180,
		MaxLng: 180,
	}

	// circle touches a pole: every longitude is reachable
	if b.MaxLat >= 90 || b.MinLat <= -90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		return b
	}

	dLng := degrees(math.Asin(math.Sin(delta)/math.Cos(radians(center.Lat)))) + boxSlackDeg
	minLng, maxLng := center.Lng-dLng, center.Lng+dLng
	// crossing the antimeridian falls back to the full longitude range
	if minLng < -180 || maxLng > 180 {
		return b
	}
	b.MinLng, b.MaxLng = minLng, maxLng
	return b
}

func (b Box) Contains(c Coords) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
