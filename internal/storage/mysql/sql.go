package mysql

const insertRestaurantSQL = `
INSERT INTO restaurants
  (id, name, neighborhood, cuisine_type, doc, unsynced, version)
VALUES
  (?, ?, ?, ?, ?, ?, 1)
`

// Compare-and-set on version; zero rows affected means someone else wrote first.
const updateRestaurantSQL = `
UPDATE restaurants SET
  name         = ?,
  neighborhood = ?,
  cuisine_type = ?,
  doc          = ?,
  unsynced     = ?,
  version      = version + 1
WHERE id = ? AND version = ?
`

const getRestaurantSQL = `
SELECT id, doc, version FROM restaurants WHERE id = ?
`

const listRestaurantsSQL = `
SELECT id, doc, version FROM restaurants ORDER BY id
`

const insertSyncFailureSQL = `
INSERT INTO sync_failures (restaurant_id, local_id, kind, reason)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  reason   = VALUES(reason),
  attempts = sync_failures.attempts + 1
`
