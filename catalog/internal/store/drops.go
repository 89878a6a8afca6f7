package store

import (
	"context"
	"database/sql"
)

// InsertDrop records a price drop event. A collision on the
// (canonical_key, new_price) UNIQUE index means the same item already
// settled at this price once — the insert is silently accepted as already
// recorded and false is returned.
func (s *Store) InsertDrop(ctx context.Context, d *DropEvent) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO price_drops
		(id, canonical_key, retailer, title, product_url, currency,
		old_price, new_price, drop_percent, run_id, detected_at, notified, notified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		d.ID, d.CanonicalKey, d.Retailer, d.Title, d.ProductURL, d.Currency,
		encDec(d.OldPrice), encDec(d.NewPrice), encIntPtr(d.DropPercent),
		d.RunID, d.DetectedAt,
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

const dropColumns = `id, canonical_key, retailer, title, product_url, currency,
	old_price, new_price, drop_percent, run_id, detected_at, notified, notified_at`

// ListDrops returns drop events, optionally filtered by retailer, newest
// first.
func (s *Store) ListDrops(ctx context.Context, retailer string, limit int) ([]*DropEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + dropColumns + ` FROM price_drops`
	var args []any
	if retailer != "" {
		q += ` WHERE retailer = ?`
		args = append(args, retailer)
	}
	q += ` ORDER BY detected_at DESC LIMIT ?`
	args = append(args, limit)
	return s.queryDrops(ctx, q, args...)
}

// ListUnnotified returns drop events not yet handed to dispatch, oldest
// first so notifications go out in detection order.
func (s *Store) ListUnnotified(ctx context.Context, limit int) ([]*DropEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryDrops(ctx,
		`SELECT `+dropColumns+` FROM price_drops WHERE notified = 0
		ORDER BY detected_at ASC LIMIT ?`, limit)
}

// MarkNotified records that dispatch delivered the event.
func (s *Store) MarkNotified(ctx context.Context, id string, at int64) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE price_drops SET notified = 1, notified_at = ? WHERE id = ?`, at, id)
	return err
}

func (s *Store) queryDrops(ctx context.Context, q string, args ...any) ([]*DropEvent, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drops []*DropEvent
	for rows.Next() {
		var d DropEvent
		var oldPrice, newPrice string
		var discount sql.NullInt64
		var notified int
		var notifiedAt sql.NullInt64
		if err := rows.Scan(&d.ID, &d.CanonicalKey, &d.Retailer, &d.Title,
			&d.ProductURL, &d.Currency, &oldPrice, &newPrice, &discount,
			&d.RunID, &d.DetectedAt, &notified, &notifiedAt); err != nil {
			return nil, err
		}
		d.OldPrice = decDec(oldPrice)
		d.NewPrice = decDec(newPrice)
		d.DropPercent = decIntPtr(discount)
		d.Notified = notified != 0
		d.NotifiedAt = decIntPtr(notifiedAt)
		drops = append(drops, &d)
	}
	return drops, rows.Err()
}
