// Package pipeline implements the per-run commit sequence: drop detection
// against the catalog's last committed prices, append-only history writes,
// and the idempotent catalog upsert.
//
// The stages run in a fixed order — detect, history, upsert — because the
// detector's baseline is the catalog price BEFORE this run's upsert
// lands. Re-running the same batch before the upsert commits is therefore
// idempotent: the baseline hasn't moved, and the history and drop tables
// discard duplicates on their unique keys.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/pricepulse/pricepulse/catalog/internal/store"
	"github.com/pricepulse/pricepulse/idgen"
)

// Pipeline commits one sanitized batch per run.
type Pipeline struct {
	store  *store.Store
	logger *slog.Logger
	newID  idgen.Generator
}

// New creates a Pipeline.
func New(st *store.Store, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:  st,
		logger: logger,
		newID:  idgen.Prefixed("drp_", idgen.Default),
	}
}

// CommitResult aggregates the counts of one commit pass.
type CommitResult struct {
	Drops          int
	HistoryWritten int
	Created        int
	Updated        int
	Reactivated    int
	Failed         int
}

// Commit runs detect → history → upsert for the batch. Store-level
// failures are fatal to the run; row-level conflicts and failures are
// absorbed and counted.
func (p *Pipeline) Commit(ctx context.Context, items []*store.Item, runID string, observedAt int64) (*CommitResult, error) {
	res := &CommitResult{}
	if len(items) == 0 {
		return res, nil
	}

	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.CanonicalKey
	}

	// Baseline: last committed catalog price, read before the upsert.
	prior, err := p.store.PriorPrices(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read baseline: %w", err)
	}

	snaps := make([]*store.Snapshot, 0, len(items))
	for _, it := range items {
		if prev, ok := prior[it.CanonicalKey]; ok && it.Price.LessThan(prev) {
			inserted, err := p.store.InsertDrop(ctx, p.buildDrop(it, prev, runID, observedAt))
			if err != nil {
				p.logger.Warn("pipeline: record drop", "key", it.CanonicalKey, "error", err)
			} else if inserted {
				res.Drops++
			}
		}
		snaps = append(snaps, &store.Snapshot{
			RunID:           runID,
			CanonicalKey:    it.CanonicalKey,
			Retailer:        it.Retailer,
			Price:           it.Price,
			OriginalPrice:   it.OriginalPrice,
			DiscountPercent: it.DiscountPercent,
			Currency:        it.Currency,
			ObservedAt:      observedAt,
		})
	}

	written, failed, err := p.store.AppendSnapshots(ctx, snaps)
	if err != nil {
		return nil, fmt.Errorf("pipeline: append history: %w", err)
	}
	res.HistoryWritten = written
	res.Failed += failed

	up, err := p.store.UpsertItems(ctx, items, observedAt)
	if err != nil {
		return nil, fmt.Errorf("pipeline: upsert catalog: %w", err)
	}
	res.Created = up.Created
	res.Updated = up.Updated
	res.Reactivated = up.Reactivated
	res.Failed += up.Failed

	return res, nil
}

// Sweep deactivates active items of the retailer that were not observed in
// this run. Runs after Commit; the seen set is the batch's key set.
func (p *Pipeline) Sweep(ctx context.Context, retailer string, seenKeys []string, now int64) (int, error) {
	n, err := p.store.DeactivateMissing(ctx, retailer, seenKeys, now)
	if err != nil {
		return 0, fmt.Errorf("pipeline: sweep: %w", err)
	}
	return n, nil
}

func (p *Pipeline) buildDrop(it *store.Item, oldPrice decimal.Decimal, runID string, detectedAt int64) *store.DropEvent {
	d := &store.DropEvent{
		ID:           p.newID(),
		CanonicalKey: it.CanonicalKey,
		Retailer:     it.Retailer,
		Title:        it.Title,
		ProductURL:   it.ProductURL,
		Currency:     it.Currency,
		OldPrice:     oldPrice,
		NewPrice:     it.Price,
		RunID:        runID,
		DetectedAt:   detectedAt,
	}
	if oldPrice.IsPositive() {
		pct := oldPrice.Sub(it.Price).Div(oldPrice).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		d.DropPercent = &pct
	}
	return d
}
