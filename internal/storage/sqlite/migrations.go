package sqlite

import "database/sql"

// migrations contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// The access token index backs the share-path lookup; the updated_at index
// backs the most-recently-updated list ordering.
const schema = `
CREATE TABLE IF NOT EXISTS receipts (
    id TEXT PRIMARY KEY,
    access_token TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    image_url TEXT,
    image_type TEXT,
    items TEXT NOT NULL DEFAULT '[]',
    people TEXT NOT NULL DEFAULT '[]',
    tax_rates TEXT NOT NULL DEFAULT '[]',
    tip_config TEXT NOT NULL DEFAULT '{"is_percentage":true,"value":20}',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_receipts_access_token ON receipts(access_token);
CREATE INDEX IF NOT EXISTS idx_receipts_updated_at ON receipts(updated_at DESC);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
