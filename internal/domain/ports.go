package domain

import "context"

type DirectoryRepository interface {
	// Write paths
	UpsertCategory(ctx context.Context, c Category) error
	UpsertBusiness(ctx context.Context, b Business) (int64, error)
	CreateReview(ctx context.Context, r Review) (Review, error)
	DeleteReview(ctx context.Context, businessID, reviewID int64) (Review, error)
	LogMiss(ctx context.Context, query string, status int, reason string) error

	// Read paths
	GetBusiness(ctx context.Context, id int64) (Business, error)
	ListBusinesses(ctx context.Context, q BusinessQuery) (BusinessPage, error)
	BusinessesInBox(ctx context.Context, box Box) ([]Business, error)
	ListReviews(ctx context.Context, businessID int64) ([]Review, error)
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, slug string) (Category, error)
}

// RatingStore is the narrow view of storage the rating aggregator needs.
type RatingStore interface {
	ReviewStats(ctx context.Context, businessID int64) (count, sum int, err error)
	// SetBusinessRating writes only the derived columns and fires no hooks.
	SetBusinessRating(ctx context.Context, businessID int64, rating float64, count int) error
}

// ReviewObserver runs synchronously after a review write has been committed.
type ReviewObserver interface {
	ReviewCreated(ctx context.Context, r Review) error
	ReviewDeleted(ctx context.Context, r Review) error
}

type PlacesClient interface {
	TextSearch(ctx context.Context, req TextSearchRequest) ([]Place, error)
	NearbySearch(ctx context.Context, req NearbySearchRequest) ([]Place, error)
	FetchPhoto(ctx context.Context, photoName string, maxWidthPx int) ([]byte, string, error)
	PhotoURL(photoName string, maxWidthPx int) string
}

type PhotoStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Read models & queries

type SortKey string

const (
	SortRating  SortKey = "rating"
	SortReviews SortKey = "reviews"
	SortName    SortKey = "name"
	SortPrice   SortKey = "price"
)

// ParseSortKey maps unknown or empty values to SortRating.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(s); k {
	case SortReviews, SortName, SortPrice:
		return k
	}
	return SortRating
}

type BusinessQuery struct {
	Q        string
	Category string
	Sort     SortKey
	PerPage  int
	Page     int
}

type BusinessPage struct {
	Items       []Business
	CurrentPage int
	LastPage    int
	PerPage     int
	Total       int
}

type NearbyQuery struct {
	Lat, Lng float64
	RadiusKm float64
}

// Places (upstream) models

type Place struct {
	ID               string
	DisplayName      string
	FormattedAddress string
	Types            []string
	PrimaryType      string
	PriceLevel       string
	Rating           *float64
	UserRatingCount  *int
	Location         *Coords
	EditorialSummary string
	PhotoNames       []string
}

type Circle struct {
	Center  Coords
	RadiusM float64
}

type TextSearchRequest struct {
	Query        string
	LocationBias *Circle
	PageSize     int
}

type NearbySearchRequest struct {
	Area          Circle
	IncludedTypes []string
	MaxResults    int
}
