// Package catalog turns periodic retailer snapshots into a consistent,
// deduplicated catalog with append-only price history and price-drop
// events.
//
// One run is a single crawl pass over one retailer: the adapter's raw
// records are sanitized, drops are detected against the catalog's last
// committed prices, snapshots are appended, the catalog is upserted, and
// items not observed in the run are swept inactive. Every write is
// idempotent at the row/key level, so retrying a failed run converges.
package catalog

import "github.com/pricepulse/pricepulse/catalog/internal/store"

// Re-export store types for the public API.
type (
	Item       = store.Item
	Snapshot   = store.Snapshot
	DropEvent  = store.DropEvent
	RunSummary = store.Run
)

// Item lifecycle states.
const (
	StateActive   = store.StateActive
	StateInactive = store.StateInactive
)

// Run states.
const (
	RunPending     = store.RunPending
	RunCrawling    = store.RunCrawling
	RunSanitizing  = store.RunSanitizing
	RunCommitting  = store.RunCommitting
	RunReconciling = store.RunReconciling
	RunDone        = store.RunDone
	RunFailed      = store.RunFailed
)
