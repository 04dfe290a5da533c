package domain

import "time"

type Business struct {
	ID           int64
	PlaceID      string
	Name         string
	Address      string
	CategorySlug string
	Category     *string // joined category name, read paths only
	Rating       float64 // derived from reviews
	ReviewCount  int     // derived from reviews
	PriceLevel   *int    // 0..4
	PhotoURL     *string
	Coords       Coords
	OpenNow      *bool // nil = unknown
	Description  *string
	Types        []string

	// Upstream rating snapshot from Places; informational only.
	PlacesRating      *float64
	PlacesRatingCount *int

	CreatedAt time.Time
	UpdatedAt time.Time

	// Set on the nearby path only.
	Distance *float64
}

type Coords struct{ Lat, Lng float64 }
