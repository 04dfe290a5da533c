package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/stefantrajanov/recenzija-mk/internal/app"
	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

// Wire shapes are camelCase and independent of the column layout.

type location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type businessResource struct {
	ID           int64    `json:"id"`
	PlaceID      string   `json:"placeId"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Category     *string  `json:"category"`
	CategorySlug string   `json:"categorySlug"`
	Rating       float64  `json:"rating"`
	ReviewCount  int      `json:"reviewCount"`
	PriceLevel   *int     `json:"priceLevel"`
	PhotoURL     *string  `json:"photoUrl"`
	Location     location `json:"location"`
	OpenNow      *bool    `json:"openNow"`
	Description  *string  `json:"description"`
	Types        []string `json:"types"`
	Distance     *float64 `json:"distance,omitempty"`
}

type reviewResource struct {
	ID         int64  `json:"id"`
	BusinessID int64  `json:"businessId"`
	AuthorName string `json:"authorName"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	CreatedAt  string `json:"createdAt"`
}

type categoryResource struct {
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	NameMk string `json:"nameMk"`
	Icon   string `json:"icon"`
	Count  int    `json:"count"`
}

type pageMeta struct {
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
	PerPage     int `json:"perPage"`
	Total       int `json:"total"`
}

type envelope struct {
	Data any       `json:"data"`
	Meta *pageMeta `json:"meta,omitempty"`
}

func toBusiness(b domain.Business) businessResource {
	types := b.Types
	if types == nil {
		types = []string{}
	}
	out := businessResource{
		ID:           b.ID,
		PlaceID:      b.PlaceID,
		Name:         b.Name,
		Address:      b.Address,
		Category:     b.Category,
		CategorySlug: b.CategorySlug,
		Rating:       b.Rating,
		ReviewCount:  b.ReviewCount,
		PriceLevel:   b.PriceLevel,
		PhotoURL:     b.PhotoURL,
		Location:     location{Lat: b.Coords.Lat, Lng: b.Coords.Lng},
		OpenNow:      b.OpenNow,
		Description:  b.Description,
		Types:        types,
	}
	if b.Distance != nil {
		d := math.Round(*b.Distance*100) / 100
		out.Distance = &d
	}
	return out
}

func toBusinesses(bs []domain.Business) []businessResource {
	out := make([]businessResource, 0, len(bs))
	for _, b := range bs {
		out = append(out, toBusiness(b))
	}
	return out
}

func toReview(r domain.Review) reviewResource {
	return reviewResource{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		AuthorName: r.AuthorName,
		Rating:     r.Rating,
		Comment:    r.Comment,
		CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toReviews(rs []domain.Review) []reviewResource {
	out := make([]reviewResource, 0, len(rs))
	for _, r := range rs {
		out = append(out, toReview(r))
	}
	return out
}

func toCategory(c domain.Category) categoryResource {
	return categoryResource{Slug: c.Slug, Name: c.Name, NameMk: c.NameMk, Icon: c.Icon, Count: c.Count}
}

func toCategories(cs []domain.Category) []categoryResource {
	out := make([]categoryResource, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCategory(c))
	}
	return out
}

// reviewRequest is the review POST body. rating stays raw so numeric strings
// are accepted and fractions are reported against the field.
type reviewRequest struct {
	AuthorName string          `json:"author_name"`
	Rating     json.RawMessage `json:"rating"`
	Comment    string          `json:"comment"`
}

// decodeReview reads a review body. A body that is not a JSON object is a
// plain decode error; wrongly typed fields come back as *app.ValidationError.
func decodeReview(r io.Reader) (app.ReviewInput, error) {
	var body reviewRequest
	fields := map[string]string{}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		var ute *json.UnmarshalTypeError
		if !errors.As(err, &ute) || ute.Field == "" {
			return app.ReviewInput{}, err
		}
		fields[ute.Field] = "must be a string"
	}

	in := app.ReviewInput{AuthorName: body.AuthorName, Comment: body.Comment}
	if n, ok := parseRating(body.Rating); ok {
		in.Rating = n
	} else {
		fields["rating"] = "must be an integer"
	}
	if len(fields) > 0 {
		return app.ReviewInput{}, &app.ValidationError{Fields: fields}
	}
	return in, nil
}

// parseRating accepts 4 and "4". A missing or null rating is nil so the
// service reports it as required.
func parseRating(raw json.RawMessage) (*int, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return nil, true
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		if s = strings.TrimSpace(s); s == "" {
			return nil, true
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, false
	}
	return &n, true
}
