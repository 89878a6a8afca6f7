// Package store is the data access layer for the catalog pipeline.
//
// All writes are idempotent at the row/key level: catalog rows upsert on
// canonical_key, history and drop rows INSERT OR IGNORE against their
// UNIQUE indexes. Re-running a failed batch converges instead of
// corrupting state.
package store

import (
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Store wraps the catalog database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// chunkSize bounds IN(...) parameter lists well under SQLite's variable
// limit.
const chunkSize = 400

func chunked(keys []string, fn func([]string) error) error {
	for len(keys) > 0 {
		n := min(len(keys), chunkSize)
		if err := fn(keys[:n]); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, 2*n-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

// --- column codecs ---

func encJSON(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decJSON(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func encDec(d decimal.Decimal) string {
	return d.String()
}

func encDecPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decDec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decDecPtr(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d := decDec(s.String)
	return &d
}

func encIntPtr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func decIntPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
