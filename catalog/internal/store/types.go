package store

import "github.com/shopspring/decimal"

// Item lifecycle states.
const (
	StateActive   = "active"
	StateInactive = "inactive"
)

// Run states, in pipeline order.
const (
	RunPending     = "pending"
	RunCrawling    = "crawling"
	RunSanitizing  = "sanitizing"
	RunCommitting  = "committing"
	RunReconciling = "reconciling"
	RunDone        = "done"
	RunFailed      = "failed"
)

// Item is one catalog entry, a distinct real-world listing on one
// retailer. Mutable; identity is CanonicalKey, which never changes once
// assigned.
type Item struct {
	CanonicalKey    string           `json:"canonical_key"`
	Retailer        string           `json:"retailer"`
	RetailerName    string           `json:"retailer_name"`
	Title           string           `json:"title"`
	Price           decimal.Decimal  `json:"price"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *int64           `json:"discount_percent,omitempty"`
	Currency        string           `json:"currency"`
	Image           string           `json:"image"`
	Images          []string         `json:"images"`
	ProductURL      string           `json:"product_url"`
	SaleURL         string           `json:"sale_url"`
	Category        string           `json:"category,omitempty"`
	Gender          string           `json:"gender,omitempty"`
	Colors          []string         `json:"colors"`
	Sizes           []string         `json:"sizes"`
	SizesRaw        []string         `json:"sizes_raw"`
	InStock         bool             `json:"in_stock"`
	State           string           `json:"state"`
	LastSeenAt      int64            `json:"last_seen_at"`
	CreatedAt       int64            `json:"created_at"`
	UpdatedAt       int64            `json:"updated_at"`
}

// Snapshot is one immutable price observation tied to a run.
// At most one exists per (canonical_key, run_id).
type Snapshot struct {
	RunID           string           `json:"run_id"`
	CanonicalKey    string           `json:"canonical_key"`
	Retailer        string           `json:"retailer"`
	Price           decimal.Decimal  `json:"price"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`
	DiscountPercent *int64           `json:"discount_percent,omitempty"`
	Currency        string           `json:"currency"`
	ObservedAt      int64            `json:"observed_at"`
}

// DropEvent records a price decreasing to a new, previously unrecorded
// value for an item. Unique per (canonical_key, new_price): the same item
// settling at the same lower price never produces a second event.
type DropEvent struct {
	ID           string          `json:"id"`
	CanonicalKey string          `json:"canonical_key"`
	Retailer     string          `json:"retailer"`
	Title        string          `json:"title"`
	ProductURL   string          `json:"product_url"`
	Currency     string          `json:"currency"`
	OldPrice     decimal.Decimal `json:"old_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	DropPercent  *int64          `json:"drop_percent,omitempty"`
	RunID        string          `json:"run_id"`
	DetectedAt   int64           `json:"detected_at"`
	Notified     bool            `json:"notified"`
	NotifiedAt   *int64          `json:"notified_at,omitempty"`
}

// Run is the persisted record of one crawl pass over one retailer,
// including the operator-visible counts.
type Run struct {
	ID             string `json:"id"`
	Retailer       string `json:"retailer"`
	State          string `json:"state"`
	Observed       int    `json:"observed"`
	Rejected       int    `json:"rejected"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Reactivated    int    `json:"reactivated"`
	Deactivated    int    `json:"deactivated"`
	HistoryWritten int    `json:"history_written"`
	Drops          int    `json:"drops"`
	Error          string `json:"error,omitempty"`
	StartedAt      int64  `json:"started_at"`
	FinishedAt     int64  `json:"finished_at,omitempty"`
}
