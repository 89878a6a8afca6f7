package store

import (
	"context"
	"database/sql"
)

// AppendSnapshots batch-appends price snapshots. Rows that collide with an
// existing (canonical_key, run_id) pair — a retried run re-submitting the
// same batch — are discarded as already recorded. Returns the number of
// rows actually written and the number that failed outright.
func (s *Store) AppendSnapshots(ctx context.Context, snaps []*Snapshot) (written, failed int, err error) {
	const q = `INSERT OR IGNORE INTO price_history
		(run_id, canonical_key, retailer, price, original_price, discount_percent, currency, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, sn := range snaps {
		res, err := s.DB.ExecContext(ctx, q,
			sn.RunID, sn.CanonicalKey, sn.Retailer, encDec(sn.Price),
			encDecPtr(sn.OriginalPrice), encIntPtr(sn.DiscountPercent),
			sn.Currency, sn.ObservedAt,
		)
		if err != nil {
			failed++
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}
	return written, failed, nil
}

// ListHistory returns the price snapshots for one item, newest first.
func (s *Store) ListHistory(ctx context.Context, canonicalKey string, limit int) ([]*Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT run_id, canonical_key, retailer, price, original_price,
		discount_percent, currency, observed_at
		FROM price_history WHERE canonical_key = ?
		ORDER BY observed_at DESC LIMIT ?`, canonicalKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*Snapshot
	for rows.Next() {
		var sn Snapshot
		var price string
		var origPrice sql.NullString
		var discount sql.NullInt64
		if err := rows.Scan(&sn.RunID, &sn.CanonicalKey, &sn.Retailer, &price,
			&origPrice, &discount, &sn.Currency, &sn.ObservedAt); err != nil {
			return nil, err
		}
		sn.Price = decDec(price)
		sn.OriginalPrice = decDecPtr(origPrice)
		sn.DiscountPercent = decIntPtr(discount)
		snaps = append(snaps, &sn)
	}
	return snaps, rows.Err()
}

// CountHistory returns the number of snapshots recorded for one item.
func (s *Store) CountHistory(ctx context.Context, canonicalKey string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_history WHERE canonical_key = ?`, canonicalKey).Scan(&n)
	return n, err
}
