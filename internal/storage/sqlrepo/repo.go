package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stefantrajanov/recenzija-mk/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repo {
	return &Repo{db: db, now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }}
}

// ---- write paths ----

func (r *Repo) UpsertCategory(ctx context.Context, c domain.Category) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		var id int64
		err := tx.QueryRowContext(ctx, selectCategoryIDSQL, c.Slug).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, insertCategorySQL, c.Slug, c.Name, c.NameMk, c.Icon, now, now)
		case err == nil:
			_, err = tx.ExecContext(ctx, updateCategorySQL, c.Name, c.NameMk, c.Icon, now, id)
		}
		if err != nil {
			return fmt.Errorf("upsert category %q: %w", c.Slug, err)
		}
		return nil
	})
}

// UpsertBusiness inserts or updates by place id and returns the row id.
// The derived rating columns are never written here.
func (r *Repo) UpsertBusiness(ctx context.Context, b domain.Business) (int64, error) {
	types := b.Types
	if types == nil {
		types = []string{}
	}
	typesJSON, err := json.Marshal(types)
	if err != nil {
		return 0, err
	}

	var id int64
	err = r.inTx(ctx, func(tx *sql.Tx) error {
		now := r.now()
		err := tx.QueryRowContext(ctx, selectBusinessIDSQL, b.PlaceID).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, insertBusinessSQL,
				b.PlaceID,
				b.Name,
				b.Address,
				b.CategorySlug,
				valInt(b.PriceLevel),
				valStr(b.PhotoURL),
				b.Coords.Lat,
				b.Coords.Lng,
				valBool(b.OpenNow),
				valStr(b.Description),
				string(typesJSON),
				valF64(b.PlacesRating),
				valInt(b.PlacesRatingCount),
				now,
				now,
			)
			if err != nil {
				return err
			}
			id, err = res.LastInsertId()
			return err
		case err != nil:
			return err
		}
		_, err = tx.ExecContext(ctx, updateBusinessSQL,
			b.Name,
			b.Address,
			b.CategorySlug,
			valInt(b.PriceLevel),
			valStr(b.PhotoURL),
			b.Coords.Lat,
			b.Coords.Lng,
			valBool(b.OpenNow),
			valStr(b.Description),
			string(typesJSON),
			valF64(b.PlacesRating),
			valInt(b.PlacesRatingCount),
			now,
			id,
		)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("upsert business %q: %w", b.PlaceID, err)
	}
	return id, nil
}

func (r *Repo) CreateReview(ctx context.Context, rv domain.Review) (domain.Review, error) {
	rv.CreatedAt = r.now()
	res, err := r.db.ExecContext(ctx, insertReviewSQL, rv.BusinessID, rv.AuthorName, rv.Rating, rv.Comment, rv.CreatedAt)
	if err != nil {
		return domain.Review{}, fmt.Errorf("insert review: %w", err)
	}
	if rv.ID, err = res.LastInsertId(); err != nil {
		return domain.Review{}, err
	}
	return rv, nil
}

// DeleteReview removes a review that belongs to businessID and returns it.
func (r *Repo) DeleteReview(ctx context.Context, businessID, reviewID int64) (domain.Review, error) {
	var out domain.Review
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = scanReview(tx.QueryRowContext(ctx, selectReviewSQL, reviewID, businessID))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, deleteReviewSQL, reviewID)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Review{}, domain.ErrNotFound
		}
		return domain.Review{}, fmt.Errorf("delete review %d: %w", reviewID, err)
	}
	return out, nil
}

func (r *Repo) LogMiss(ctx context.Context, query string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, query, status, reason, r.now())
	return err
}

// ---- rating store ----

func (r *Repo) ReviewStats(ctx context.Context, businessID int64) (int, int, error) {
	var count, sum int
	if err := r.db.QueryRowContext(ctx, reviewStatsSQL, businessID).Scan(&count, &sum); err != nil {
		return 0, 0, fmt.Errorf("review stats for %d: %w", businessID, err)
	}
	return count, sum, nil
}

func (r *Repo) SetBusinessRating(ctx context.Context, businessID int64, rating float64, count int) error {
	if _, err := r.db.ExecContext(ctx, setBusinessRatingSQL, rating, count, businessID); err != nil {
		return fmt.Errorf("set rating for %d: %w", businessID, err)
	}
	return nil
}

// ---- read paths ----

func (r *Repo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	b, err := scanBusiness(r.db.QueryRowContext(ctx, selectBusinessSQL+"WHERE b.id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Business{}, domain.ErrNotFound
		}
		return domain.Business{}, err
	}
	return b, nil
}

// ListBusinesses expects q to be normalized (PerPage and Page >= 1).
func (r *Repo) ListBusinesses(ctx context.Context, q domain.BusinessQuery) (domain.BusinessPage, error) {
	var (
		conds []string
		args  []any
	)
	if s := strings.TrimSpace(q.Q); s != "" {
		pat := "%" + escapeLike(strings.ToLower(s)) + "%"
		conds = append(conds, searchPredicate)
		args = append(args, pat, pat, pat)
	}
	if q.Category != "" {
		conds = append(conds, "b.category_slug = ?")
		args = append(args, q.Category)
	}
	where := ""
	if len(conds) > 0 {
		where = "\nWHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countBusinessesSQL+where, args...).Scan(&total); err != nil {
		return domain.BusinessPage{}, fmt.Errorf("count businesses: %w", err)
	}

	query := selectBusinessSQL + where + "\nORDER BY " + orderBy(q.Sort) + "\nLIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, q.PerPage, (q.Page-1)*q.PerPage)...)
	if err != nil {
		return domain.BusinessPage{}, fmt.Errorf("list businesses: %w", err)
	}
	items, err := scanBusinesses(rows)
	if err != nil {
		return domain.BusinessPage{}, err
	}

	lastPage := (total + q.PerPage - 1) / q.PerPage
	if lastPage < 1 {
		lastPage = 1
	}
	return domain.BusinessPage{
		Items:       items,
		CurrentPage: q.Page,
		LastPage:    lastPage,
		PerPage:     q.PerPage,
		Total:       total,
	}, nil
}

// BusinessesInBox is the coarse geo pre-filter; callers compute exact distances.
func (r *Repo) BusinessesInBox(ctx context.Context, box domain.Box) ([]domain.Business, error) {
	rows, err := r.db.QueryContext(ctx, selectBusinessSQL+"WHERE "+inBoxPredicate,
		box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("businesses in box: %w", err)
	}
	return scanBusinesses(rows)
}

// ListReviews returns newest first.
func (r *Repo) ListReviews(ctx context.Context, businessID int64) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, listReviewsSQL, businessID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := []domain.Review{}
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, selectCategoriesSQL+groupCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.Slug, &c.Name, &c.NameMk, &c.Icon, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) GetCategory(ctx context.Context, slug string) (domain.Category, error) {
	var c domain.Category
	err := r.db.QueryRowContext(ctx, selectCategoriesSQL+"WHERE c.slug = ?"+groupCategoriesSQL, slug).
		Scan(&c.Slug, &c.Name, &c.NameMk, &c.Icon, &c.Count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Category{}, domain.ErrNotFound
		}
		return domain.Category{}, fmt.Errorf("get category %q: %w", slug, err)
	}
	return c, nil
}

// ---- helpers ----

func (r *Repo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func orderBy(k domain.SortKey) string {
	switch k {
	case domain.SortName:
		return "b.name ASC, b.id ASC"
	case domain.SortReviews:
		return "b.review_count DESC, b.id ASC"
	case domain.SortPrice:
		// unknown price sorts as the lowest
		return "b.price_level IS NULL DESC, b.price_level ASC, b.id ASC"
	default:
		return "b.rating DESC, b.id ASC"
	}
}

// escapeLike makes user input match literally inside a LIKE ... ESCAPE '!' pattern.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReview(s scanner) (domain.Review, error) {
	var rv domain.Review
	err := s.Scan(&rv.ID, &rv.BusinessID, &rv.AuthorName, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	return rv, err
}

func scanBusinesses(rows *sql.Rows) ([]domain.Business, error) {
	defer rows.Close()
	out := []domain.Business{}
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanBusiness(s scanner) (domain.Business, error) {
	var (
		b                 domain.Business
		category          sql.NullString
		priceLevel        sql.NullInt64
		photoURL, desc    sql.NullString
		openNow           sql.NullBool
		typesJSON         sql.NullString
		placesRating      sql.NullFloat64
		placesRatingCount sql.NullInt64
	)
	if err := s.Scan(
		&b.ID,
		&b.PlaceID,
		&b.Name,
		&b.Address,
		&b.CategorySlug,
		&category,
		&b.Rating,
		&b.ReviewCount,
		&priceLevel,
		&photoURL,
		&b.Coords.Lat,
		&b.Coords.Lng,
		&openNow,
		&desc,
		&typesJSON,
		&placesRating,
		&placesRatingCount,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return domain.Business{}, err
	}

	if category.Valid {
		v := category.String
		b.Category = &v
	}
	if priceLevel.Valid {
		p := int(priceLevel.Int64)
		b.PriceLevel = &p
	}
	if photoURL.Valid {
		v := photoURL.String
		b.PhotoURL = &v
	}
	if openNow.Valid {
		v := openNow.Bool
		b.OpenNow = &v
	}
	if desc.Valid {
		v := desc.String
		b.Description = &v
	}
	b.Types = []string{}
	if typesJSON.Valid && typesJSON.String != "" {
		_ = json.Unmarshal([]byte(typesJSON.String), &b.Types)
	}
	if placesRating.Valid {
		f := placesRating.Float64
		b.PlacesRating = &f
	}
	if placesRatingCount.Valid {
		n := int(placesRatingCount.Int64)
		b.PlacesRatingCount = &n
	}
	return b, nil
}
