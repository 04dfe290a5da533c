package sqlrepo

// Statements stick to the SQL subset MySQL and SQLite share: `?` placeholders,
// LIMIT/OFFSET, LastInsertId, no dialect-specific upserts.

const selectCategoryIDSQL = `SELECT id FROM categories WHERE slug = ?`

const insertCategorySQL = `
INSERT INTO categories (slug, name, name_mk, icon, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`

const updateCategorySQL = `
UPDATE categories
SET name = ?, name_mk = ?, icon = ?, updated_at = ?
WHERE id = ?
`

const selectBusinessIDSQL = `SELECT id FROM businesses WHERE place_id = ?`

// rating and review_count are left at their defaults; only the aggregator sets them.
const insertBusinessSQL = `
INSERT INTO businesses
  (place_id, name, address, category_slug, price_level, photo_url, latitude, longitude,
   open_now, description, types, places_rating, places_rating_count, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateBusinessSQL = `
UPDATE businesses SET
  name                = ?,
  address             = ?,
  category_slug       = ?,
  price_level         = ?,
  photo_url           = ?,
  latitude            = ?,
  longitude           = ?,
  open_now            = ?,
  description         = ?,
  types               = ?,
  places_rating       = ?,
  places_rating_count = ?,
  updated_at          = ?
WHERE id = ?
`

const setBusinessRatingSQL = `UPDATE businesses SET rating = ?, review_count = ? WHERE id = ?`

const insertReviewSQL = `
INSERT INTO reviews (business_id, author_name, rating, comment, created_at)
VALUES (?, ?, ?, ?, ?)
`

const selectReviewSQL = `
SELECT id, business_id, author_name, rating, comment, created_at
FROM reviews
WHERE id = ? AND business_id = ?
`

const deleteReviewSQL = `DELETE FROM reviews WHERE id = ?`

const reviewStatsSQL = `
SELECT COUNT(*), COALESCE(SUM(rating), 0)
FROM reviews
WHERE business_id = ?
`

const listReviewsSQL = `
SELECT id, business_id, author_name, rating, comment, created_at
FROM reviews
WHERE business_id = ?
ORDER BY created_at DESC, id DESC
`

const insertMissSQL = `
INSERT INTO seed_misses (query, http_status, reason, seen_at)
VALUES (?, ?, ?, ?)
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// Every business read joins the category for its display name.
const selectBusinessSQL = `
SELECT
  b.id,
  b.place_id,
  b.name,
  b.address,
  b.category_slug,
  c.name,
  b.rating,
  b.review_count,
  b.price_level,
  b.photo_url,
  b.latitude,
  b.longitude,
  b.open_now,
  b.description,
  b.types,
  b.places_rating,
  b.places_rating_count,
  b.created_at,
  b.updated_at
FROM businesses b
LEFT JOIN categories c ON c.slug = b.category_slug
`

const countBusinessesSQL = `SELECT COUNT(*) FROM businesses b`

// '!' is the LIKE escape character; see escapeLike.
const searchPredicate = `(LOWER(b.name) LIKE ? ESCAPE '!'
  OR LOWER(b.address) LIKE ? ESCAPE '!'
  OR LOWER(COALESCE(b.description, '')) LIKE ? ESCAPE '!')`

const inBoxPredicate = `b.latitude BETWEEN ? AND ? AND b.longitude BETWEEN ? AND ?`

const selectCategoriesSQL = `
SELECT c.slug, c.name, c.name_mk, c.icon, COUNT(b.id)
FROM categories c
LEFT JOIN businesses b ON b.category_slug = c.slug
`

const groupCategoriesSQL = `
GROUP BY c.id, c.slug, c.name, c.name_mk, c.icon
ORDER BY c.id
`
