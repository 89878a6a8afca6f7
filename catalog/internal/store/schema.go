package store

import "database/sql"

// Schema is the complete catalog schema. The two UNIQUE indexes on
// price_history and price_drops are load-bearing correctness invariants:
// duplicate submissions land on them and are discarded as already
// recorded, never treated as errors.
const Schema = `
-- Catalog: one row per distinct real-world listing
CREATE TABLE IF NOT EXISTS catalog_items (
    canonical_key    TEXT PRIMARY KEY,
    retailer         TEXT NOT NULL,
    retailer_name    TEXT NOT NULL,
    title            TEXT NOT NULL,
    price            TEXT NOT NULL,
    original_price   TEXT,
    discount_percent INTEGER,
    currency         TEXT NOT NULL,
    image            TEXT NOT NULL,
    images_json      TEXT NOT NULL DEFAULT '[]',
    product_url      TEXT NOT NULL,
    sale_url         TEXT NOT NULL DEFAULT '',
    category         TEXT NOT NULL DEFAULT '',
    gender           TEXT NOT NULL DEFAULT '',
    colors_json      TEXT NOT NULL DEFAULT '[]',
    sizes_json       TEXT NOT NULL DEFAULT '[]',
    sizes_raw_json   TEXT NOT NULL DEFAULT '[]',
    in_stock         INTEGER NOT NULL DEFAULT 1,
    state            TEXT NOT NULL DEFAULT 'active',
    last_seen_at     INTEGER,
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_retailer_state ON catalog_items(retailer, state);

-- Price history: append-only, one snapshot per (item, run)
CREATE TABLE IF NOT EXISTS price_history (
    run_id           TEXT NOT NULL,
    canonical_key    TEXT NOT NULL,
    retailer         TEXT NOT NULL,
    price            TEXT NOT NULL,
    original_price   TEXT,
    discount_percent INTEGER,
    currency         TEXT NOT NULL,
    observed_at      INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_history_key_run ON price_history(canonical_key, run_id);
CREATE INDEX IF NOT EXISTS idx_history_key_time ON price_history(canonical_key, observed_at DESC);

-- Price drops: one event per distinct new price point
CREATE TABLE IF NOT EXISTS price_drops (
    id            TEXT PRIMARY KEY,
    canonical_key TEXT NOT NULL,
    retailer      TEXT NOT NULL,
    title         TEXT NOT NULL,
    product_url   TEXT NOT NULL,
    currency      TEXT NOT NULL,
    old_price     TEXT NOT NULL,
    new_price     TEXT NOT NULL,
    drop_percent  INTEGER,
    run_id        TEXT NOT NULL,
    detected_at   INTEGER NOT NULL,
    notified      INTEGER NOT NULL DEFAULT 0,
    notified_at   INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_drops_key_price ON price_drops(canonical_key, new_price);
CREATE INDEX IF NOT EXISTS idx_drops_notified ON price_drops(notified, detected_at);
CREATE INDEX IF NOT EXISTS idx_drops_retailer_time ON price_drops(retailer, detected_at DESC);

-- Run log (operator-visible summaries)
CREATE TABLE IF NOT EXISTS runs (
    id              TEXT PRIMARY KEY,
    retailer        TEXT NOT NULL,
    state           TEXT NOT NULL DEFAULT 'pending',
    observed        INTEGER NOT NULL DEFAULT 0,
    rejected        INTEGER NOT NULL DEFAULT 0,
    created         INTEGER NOT NULL DEFAULT 0,
    updated         INTEGER NOT NULL DEFAULT 0,
    reactivated     INTEGER NOT NULL DEFAULT 0,
    deactivated     INTEGER NOT NULL DEFAULT 0,
    history_written INTEGER NOT NULL DEFAULT 0,
    drops           INTEGER NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT '',
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_retailer_time ON runs(retailer, started_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
