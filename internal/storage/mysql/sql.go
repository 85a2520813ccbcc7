package mysql

const bannerColumns = `
  id, title, description, image, link, active, sort_order, category, audience,
  locations, start_at, end_at, impressions, clicks, created_by, created_at, updated_at`

const insertBannerSQL = `
INSERT INTO banners
  (id, title, description, image, link, active, sort_order, category, audience,
   locations, start_at, end_at, impressions, clicks, created_by, created_at, updated_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, ?)
`

const deleteBannerSQL = `DELETE FROM banners WHERE id = ?`

const toggleActiveSQL = `UPDATE banners SET active = NOT active, updated_at = ? WHERE id = ?`

// Single-statement increments are atomic per row under InnoDB row locks.
const incrImpressionsSQL = `UPDATE banners SET impressions = impressions + 1 WHERE id = ?`
const incrClicksSQL = `UPDATE banners SET clicks = clicks + 1 WHERE id = ?`

const setOrderSQL = `UPDATE banners SET sort_order = ?, updated_at = ? WHERE id = ?`

const existsSQL = `SELECT 1 FROM banners WHERE id = ?`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const getBannerSQL = `SELECT` + bannerColumns + `
FROM banners
WHERE id = ?
`

const displayOrder = ` ORDER BY sort_order ASC, created_at DESC, id ASC`

const activeBannersSQL = `SELECT` + bannerColumns + `
FROM banners
WHERE active = 1
  AND JSON_CONTAINS(locations, JSON_QUOTE(?))
  AND start_at <= ?
  AND (end_at IS NULL OR end_at >= ?)` + displayOrder
