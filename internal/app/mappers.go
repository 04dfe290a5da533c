package app

import (
	"errors"
	"mime"
	"strings"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

var (
	errNoPlaceID  = errors.New("place has no id")
	errNoLocation = errors.New("place has no location")
)

// mapPlace converts an upstream place into a business of the given category.
// The derived rating fields and open-now stay unset.
func mapPlace(p domain.Place, categorySlug string) (domain.Business, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.Business{}, errNoPlaceID
	}
	if p.Location == nil {
		return domain.Business{}, errNoLocation
	}

	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = "Unknown"
	}
	types := p.Types
	if types == nil {
		types = []string{}
	}

	b := domain.Business{
		PlaceID:           p.ID,
		Name:              truncate(name, 255),
		Address:           truncate(strings.TrimSpace(p.FormattedAddress), 255),
		CategorySlug:      categorySlug,
		PriceLevel:        mapPriceLevel(p.PriceLevel),
		Coords:            *p.Location,
		Description:       ptrStr(strings.TrimSpace(p.EditorialSummary)),
		Types:             types,
		PlacesRating:      p.Rating,
		PlacesRatingCount: p.UserRatingCount,
	}
	return b, nil
}

// mapPriceLevel maps the Places price enum onto 0..4; anything else is unknown.
func mapPriceLevel(level string) *int {
	var n int
	switch level {
	case "PRICE_LEVEL_FREE":
		n = 0
	case "PRICE_LEVEL_INEXPENSIVE":
		n = 1
	case "PRICE_LEVEL_MODERATE":
		n = 2
	case "PRICE_LEVEL_EXPENSIVE":
		n = 3
	case "PRICE_LEVEL_VERY_EXPENSIVE":
		n = 4
	default:
		return nil
	}
	return &n
}

// photoKey names the mirrored object, e.g. "businesses/ChIJ123.jpg".
func photoKey(placeID, contentType string) string {
	ext := ".jpg"
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		ext = exts[0]
		if contentType == "image/jpeg" {
			ext = ".jpg"
		}
	}
	return "businesses/" + placeID + ext
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
