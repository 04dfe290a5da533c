// internal/adapters/places/client.go
package places

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/stefantrajanov/recenzija-mk/internal/adapters/observability"
	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

const DefaultBaseURL = "https://places.googleapis.com/v1"

var fieldMask = strings.Join([]string{
	"places.id",
	"places.displayName",
	"places.formattedAddress",
	"places.types",
	"places.primaryType",
	"places.priceLevel",
	"places.rating",
	"places.userRatingCount",
	"places.location",
	"places.editorialSummary",
	"places.photos",
}, ",")

// Client talks to the Places API (New). It is safe for concurrent use; all
// calls share one rate limiter.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
}

func New(base, key string, rps int) (*Client, error) {
	if key == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if base == "" {
		base = DefaultBaseURL
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 20 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
	}, nil
}

// ---- Public API ----

func (c *Client) TextSearch(ctx context.Context, r domain.TextSearchRequest) ([]domain.Place, error) {
	body := textSearchBody{TextQuery: r.Query, LanguageCode: "en", PageSize: r.PageSize}
	if r.LocationBias != nil {
		body.LocationBias = &area{Circle: toCircle(*r.LocationBias)}
	}
	return c.search(ctx, "searchText", body)
}

func (c *Client) NearbySearch(ctx context.Context, r domain.NearbySearchRequest) ([]domain.Place, error) {
	body := nearbySearchBody{
		IncludedTypes:       r.IncludedTypes,
		MaxResultCount:      r.MaxResults,
		LanguageCode:        "en",
		LocationRestriction: area{Circle: toCircle(r.Area)},
	}
	return c.search(ctx, "searchNearby", body)
}

// FetchPhoto downloads a photo's bytes. name is the resource name returned by
// a search, "places/{placeId}/photos/{ref}".
func (c *Client) FetchPhoto(ctx context.Context, name string, maxWidthPx int) ([]byte, string, error) {
	u := fmt.Sprintf("%s/%s/media?maxWidthPx=%d", c.base, name, maxWidthPx)
	b, ct, err := c.do(ctx, "photo", http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	if ct == "" {
		ct = http.DetectContentType(b)
	}
	return b, ct, nil
}

// PhotoURL is the direct media URL for name. It embeds the API key, so it is
// only a fallback for when photos cannot be mirrored.
func (c *Client) PhotoURL(name string, maxWidthPx int) string {
	q := url.Values{}
	q.Set("maxWidthPx", strconv.Itoa(maxWidthPx))
	q.Set("key", c.key)
	return fmt.Sprintf("%s/%s/media?%s", c.base, name, q.Encode())
}

// ---- Wire types ----

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type circle struct {
	Center latLng  `json:"center"`
	Radius float64 `json:"radius"`
}

type area struct {
	Circle circle `json:"circle"`
}

type textSearchBody struct {
	TextQuery    string `json:"textQuery"`
	LanguageCode string `json:"languageCode"`
	PageSize     int    `json:"pageSize,omitempty"`
	LocationBias *area  `json:"locationBias,omitempty"`
}

type nearbySearchBody struct {
	IncludedTypes       []string `json:"includedTypes,omitempty"`
	MaxResultCount      int      `json:"maxResultCount,omitempty"`
	LanguageCode        string   `json:"languageCode"`
	LocationRestriction area     `json:"locationRestriction"`
}

type localizedText struct {
	Text string `json:"text"`
}

type wirePlace struct {
	ID               string         `json:"id"`
	DisplayName      *localizedText `json:"displayName"`
	FormattedAddress string         `json:"formattedAddress"`
	Types            []string       `json:"types"`
	PrimaryType      string         `json:"primaryType"`
	PriceLevel       string         `json:"priceLevel"`
	Rating           *float64       `json:"rating"`
	UserRatingCount  *int           `json:"userRatingCount"`
	Location         *latLng        `json:"location"`
	EditorialSummary *localizedText `json:"editorialSummary"`
	Photos           []struct {
		Name string `json:"name"`
	} `json:"photos"`
}

type searchResponse struct {
	Places []wirePlace `json:"places"`
}

func toCircle(c domain.Circle) circle {
	return circle{Center: latLng{Latitude: c.Center.Lat, Longitude: c.Center.Lng}, Radius: c.RadiusM}
}

func (w wirePlace) toDomain() domain.Place {
	p := domain.Place{
		ID:               w.ID,
		FormattedAddress: w.FormattedAddress,
		Types:            w.Types,
		PrimaryType:      w.PrimaryType,
		PriceLevel:       w.PriceLevel,
		Rating:           w.Rating,
		UserRatingCount:  w.UserRatingCount,
	}
	if w.DisplayName != nil {
		p.DisplayName = w.DisplayName.Text
	}
	if w.EditorialSummary != nil {
		p.EditorialSummary = w.EditorialSummary.Text
	}
	if w.Location != nil {
		p.Location = &domain.Coords{Lat: w.Location.Latitude, Lng: w.Location.Longitude}
	}
	for _, ph := range w.Photos {
		p.PhotoNames = append(p.PhotoNames, ph.Name)
	}
	return p
}

// ---- Internals ----

var ErrNoBody = errors.New("places: empty response body")

// HTTPError is a non-success upstream response that was not retried, or
// still failed after the last retry.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("places: status %d", e.Status)
	}
	return fmt.Sprintf("places: status %d: %s", e.Status, e.Body)
}

func (e *HTTPError) StatusCode() int { return e.Status }

func (c *Client) search(ctx context.Context, method string, body any) ([]domain.Place, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	raw, _, err := c.do(ctx, method, http.MethodPost, c.base+"/places:"+method, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrNoBody
	}
	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("places: decode %s: %w", method, err)
	}
	out := make([]domain.Place, 0, len(resp.Places))
	for _, w := range resp.Places {
		out = append(out, w.toDomain())
	}
	return out, nil
}

// do performs a request with client-side rate limiting and retries, returning
// the body and its content type. Retries on 429 and transient 5xx, honoring
// Retry-After when provided.
func (c *Client) do(ctx context.Context, endpoint, method, url string, payload []byte) ([]byte, string, error) {
	// client-side rate limiting
	if err := c.rl.Wait(ctx); err != nil {
		return nil, "", err
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, "", err
		}
		req.Header.Set("X-Goog-Api-Key", c.key)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Goog-FieldMask", fieldMask)
		}
		req.Header.Set("User-Agent", "recenzija-mk/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("places", endpoint, 0, time.Since(start))
			// network error or context canceled
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			return nil, "", lastErr
		}
		observability.ObserveExternal("places", endpoint, resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			b, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			return b, resp.Header.Get("Content-Type"), err

		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusInternalServerError,
			resp.StatusCode == http.StatusBadGateway, resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			lastErr = readError(resp)
			if wait == 0 {
				wait = backoff(i)
			}
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			return nil, "", lastErr

		default:
			return nil, "", readError(resp)
		}
	}

	return nil, "", lastErr
}

// readError reads a small error body for diagnostics and closes it.
func readError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns 200ms, 400ms, 800ms... for attempt i, plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
