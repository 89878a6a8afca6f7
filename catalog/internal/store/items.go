package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pricepulse/pricepulse/dbopen"
)

const itemColumns = `canonical_key, retailer, retailer_name, title, price,
	original_price, discount_percent, currency, image, images_json,
	product_url, sale_url, category, gender, colors_json, sizes_json,
	sizes_raw_json, in_stock, state, last_seen_at, created_at, updated_at`

// ExistingKeys reports, for each of the given canonical keys that already
// has a catalog row, that row's lifecycle state.
func (s *Store) ExistingKeys(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	err := chunked(keys, func(chunk []string) error {
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		rows, err := s.DB.QueryContext(ctx,
			`SELECT canonical_key, state FROM catalog_items WHERE canonical_key IN (`+placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k, state string
			if err := rows.Scan(&k, &state); err != nil {
				return err
			}
			out[k] = state
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("existing keys: %w", err)
	}
	return out, nil
}

// PriorPrices returns the current catalog price for each of the given keys
// that exists. One bulk read per chunk; this is the drop detector's
// baseline, so it must run before the same batch is upserted.
func (s *Store) PriorPrices(ctx context.Context, keys []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(keys))
	err := chunked(keys, func(chunk []string) error {
		args := make([]any, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		rows, err := s.DB.QueryContext(ctx,
			`SELECT canonical_key, price FROM catalog_items WHERE canonical_key IN (`+placeholders(len(chunk))+`)`,
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k, price string
			if err := rows.Scan(&k, &price); err != nil {
				return err
			}
			out[k] = decDec(price)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("prior prices: %w", err)
	}
	return out, nil
}

// UpsertResult reports the outcome of one catalog batch write.
// Reactivated counts the subset of Updated that flipped back from
// inactive.
type UpsertResult struct {
	Created     int
	Updated     int
	Reactivated int
	Failed      int
}

// UpsertItems writes the batch insert-or-update keyed by canonical_key.
// Mutable fields are overwritten, state is forced to active, last_seen_at
// is stamped with observedAt; created_at is only set on insert. Row
// failures are counted, never escalated — one bad row must not abort its
// siblings.
func (s *Store) UpsertItems(ctx context.Context, items []*Item, observedAt int64) (UpsertResult, error) {
	var res UpsertResult
	if len(items) == 0 {
		return res, nil
	}

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.CanonicalKey
	}
	existing, err := s.ExistingKeys(ctx, keys)
	if err != nil {
		return res, err
	}

	now := time.Now().UnixMilli()
	const q = `INSERT INTO catalog_items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?, ?)
		ON CONFLICT(canonical_key) DO UPDATE SET
			retailer_name=excluded.retailer_name,
			title=excluded.title,
			price=excluded.price,
			original_price=excluded.original_price,
			discount_percent=excluded.discount_percent,
			currency=excluded.currency,
			image=excluded.image,
			images_json=excluded.images_json,
			product_url=excluded.product_url,
			sale_url=excluded.sale_url,
			category=excluded.category,
			gender=excluded.gender,
			colors_json=excluded.colors_json,
			sizes_json=excluded.sizes_json,
			sizes_raw_json=excluded.sizes_raw_json,
			in_stock=excluded.in_stock,
			state='active',
			last_seen_at=excluded.last_seen_at,
			updated_at=excluded.updated_at`

	for _, it := range items {
		_, err := s.DB.ExecContext(ctx, q,
			it.CanonicalKey, it.Retailer, it.RetailerName, it.Title, encDec(it.Price),
			encDecPtr(it.OriginalPrice), encIntPtr(it.DiscountPercent), it.Currency,
			it.Image, encJSON(it.Images), it.ProductURL, it.SaleURL,
			it.Category, it.Gender, encJSON(it.Colors), encJSON(it.Sizes),
			encJSON(it.SizesRaw), boolInt(it.InStock), observedAt, now, now,
		)
		if err != nil {
			res.Failed++
			continue
		}
		if state, ok := existing[it.CanonicalKey]; ok {
			res.Updated++
			if state == StateInactive {
				res.Reactivated++
			}
		} else {
			res.Created++
		}
	}
	return res, nil
}

// DeactivateMissing flips active items of the retailer whose key is not in
// seenKeys to inactive and out of stock. It is the only path that
// deactivates an item. An empty seenKeys deactivates every active item of
// the retailer (a successful run that observed nothing).
func (s *Store) DeactivateMissing(ctx context.Context, retailer string, seenKeys []string, now int64) (int, error) {
	if len(seenKeys) <= chunkSize {
		args := []any{now, retailer}
		for _, k := range seenKeys {
			args = append(args, k)
		}
		q := `UPDATE catalog_items SET state='inactive', in_stock=0, updated_at=?
			WHERE retailer=? AND state='active'`
		if len(seenKeys) > 0 {
			q += ` AND canonical_key NOT IN (` + placeholders(len(seenKeys)) + `)`
		}
		res, err := s.DB.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("deactivate missing: %w", err)
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	// Large seen sets go through a temp table so the sweep stays a single
	// conditional bulk update. The sweep contends with commit writes, so
	// the transaction runs under the busy-retry helper.
	var n int64
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE seen_keys (key TEXT PRIMARY KEY)`); err != nil {
			return fmt.Errorf("temp table: %w", err)
		}
		for i := 0; i < len(seenKeys); i += chunkSize {
			chunk := seenKeys[i:min(i+chunkSize, len(seenKeys))]
			args := make([]any, len(chunk))
			values := ""
			for j, k := range chunk {
				if j > 0 {
					values += ","
				}
				values += "(?)"
				args[j] = k
			}
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO seen_keys (key) VALUES `+values, args...); err != nil {
				return fmt.Errorf("fill temp: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE catalog_items SET state='inactive', in_stock=0, updated_at=?
			WHERE retailer=? AND state='active'
			AND canonical_key NOT IN (SELECT key FROM seen_keys)`, now, retailer)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx, `DROP TABLE seen_keys`); err != nil {
			return fmt.Errorf("drop temp: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deactivate missing: %w", err)
	}
	return int(n), nil
}

// GetItem retrieves one catalog item by canonical key, or nil.
func (s *Store) GetItem(ctx context.Context, canonicalKey string) (*Item, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM catalog_items WHERE canonical_key = ?`, canonicalKey)
	it, err := scanItem(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return it, err
}

// ListItems returns catalog items, optionally filtered by retailer and
// state, newest first.
func (s *Store) ListItems(ctx context.Context, retailer, state string, limit int) ([]*Item, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + itemColumns + ` FROM catalog_items WHERE 1=1`
	var args []any
	if retailer != "" {
		q += ` AND retailer = ?`
		args = append(args, retailer)
	}
	if state != "" {
		q += ` AND state = ?`
		args = append(args, state)
	}
	q += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanItem(scan func(...any) error) (*Item, error) {
	var it Item
	var price string
	var origPrice sql.NullString
	var discount sql.NullInt64
	var images, colors, sizes, sizesRaw string
	var inStock int
	var lastSeen sql.NullInt64
	err := scan(
		&it.CanonicalKey, &it.Retailer, &it.RetailerName, &it.Title, &price,
		&origPrice, &discount, &it.Currency, &it.Image, &images,
		&it.ProductURL, &it.SaleURL, &it.Category, &it.Gender, &colors, &sizes,
		&sizesRaw, &inStock, &it.State, &lastSeen, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	it.Price = decDec(price)
	it.OriginalPrice = decDecPtr(origPrice)
	it.DiscountPercent = decIntPtr(discount)
	it.Images = decJSON(images)
	it.Colors = decJSON(colors)
	it.Sizes = decJSON(sizes)
	it.SizesRaw = decJSON(sizesRaw)
	it.InStock = inStock != 0
	if lastSeen.Valid {
		it.LastSeenAt = lastSeen.Int64
	}
	return &it, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
