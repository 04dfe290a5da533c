// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/stefantrajanov/recenzija-mk/internal/app"
	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

const maxBodyBytes = 64 << 10

type Handlers struct {
	Q           *app.QueryService
	R           *app.ReviewService
	AdminSecret []byte
}

type problem struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/businesses", h.listBusinesses)
		r.Get("/businesses/nearby", h.nearby)
		r.Get("/businesses/{id}", h.getBusiness)
		r.Get("/businesses/{businessId}/reviews", h.listReviews)
		r.Post("/businesses/{businessId}/reviews", h.createReview)
		r.With(RequireAdmin(h.AdminSecret)).
			Delete("/businesses/{businessId}/reviews/{reviewId}", h.deleteReview)

		r.Get("/categories", h.listCategories)
		r.Get("/categories/{slug}", h.getCategory)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string, fields map[string]string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	p := problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Errors: fields}
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problems. Validation errors use
// validationStatus since the nearby query and review body differ.
func writeError(w http.ResponseWriter, r *http.Request, err error, validationStatus int, notFound string) {
	var verr *app.ValidationError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, validationStatus, "Validation Failed", "the given data was invalid", verr.Fields)
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", notFound, nil)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "", nil)
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes a 200 with a weak ETag, or 304 when the client already
// has this version.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// idParam returns false for anything that is not a positive integer; such
// ids can never match a row.
func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// intQuery is lenient: garbage reads as 0 and the service applies defaults.
func intQuery(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func (h *Handlers) listBusinesses(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	page, err := h.Q.ListBusinesses(r.Context(), domain.BusinessQuery{
		Q:        qs.Get("q"),
		Category: qs.Get("category"),
		Sort:     domain.SortKey(qs.Get("sort")),
		PerPage:  intQuery(r, "per_page"),
		Page:     intQuery(r, "page"),
	})
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "")
		return
	}
	writeCached(w, r, envelope{
		Data: toBusinesses(page.Items),
		Meta: &pageMeta{CurrentPage: page.CurrentPage, LastPage: page.LastPage, PerPage: page.PerPage, Total: page.Total},
	})
}

func (h *Handlers) nearby(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	q, err := app.ParseNearbyQuery(qs.Get("lat"), qs.Get("lng"), qs.Get("radius"))
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "")
		return
	}
	out, err := h.Q.Nearby(r.Context(), q)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "")
		return
	}
	writeCached(w, r, envelope{Data: toBusinesses(out)})
}

func (h *Handlers) getBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "business not found", nil)
		return
	}
	b, err := h.Q.GetBusiness(r.Context(), id)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "business not found")
		return
	}
	writeCached(w, r, envelope{Data: toBusiness(b)})
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "businessId")
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "business not found", nil)
		return
	}
	// Newest first; aligns with DB index on (business_id, created_at, id)
	rs, err := h.Q.ListReviews(r.Context(), id)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "business not found")
		return
	}
	writeCached(w, r, envelope{Data: toReviews(rs)})
}

func (h *Handlers) createReview(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "businessId")
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "business not found", nil)
		return
	}

	in, err := decodeReview(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var verr *app.ValidationError
		if errors.As(err, &verr) {
			writeError(w, r, err, http.StatusUnprocessableEntity, "")
			return
		}
		writeProblem(w, http.StatusBadRequest, "Bad Request", "body must be a JSON object with author_name, rating and comment", nil)
		return
	}

	rv, err := h.R.Submit(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err, http.StatusUnprocessableEntity, "business not found")
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Data: toReview(rv)})
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	businessID, ok1 := idParam(r, "businessId")
	reviewID, ok2 := idParam(r, "reviewId")
	if !ok1 || !ok2 {
		writeProblem(w, http.StatusNotFound, "Not Found", "review not found", nil)
		return
	}
	if err := h.R.Delete(r.Context(), businessID, reviewID); err != nil {
		writeError(w, r, err, http.StatusBadRequest, "review not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Q.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "")
		return
	}
	writeCached(w, r, envelope{Data: toCategories(cs)})
}

func (h *Handlers) getCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.Q.GetCategory(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest, "category not found")
		return
	}
	writeCached(w, r, envelope{Data: toCategory(c)})
}
