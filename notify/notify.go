// Package notify dispatches price-drop events to an outbound channel.
//
// The catalog records drops durably and marks them notified only after a
// successful send, so a crashed dispatcher re-delivers rather than drops.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pricepulse/pricepulse/catalog"
)

// Sender delivers one drop event to the outside world.
type Sender interface {
	Send(ctx context.Context, d *catalog.DropEvent) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, d *catalog.DropEvent) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, d *catalog.DropEvent) error {
	return f(ctx, d)
}

// Queue is the slice of the catalog service the dispatcher needs.
type Queue interface {
	UnnotifiedDrops(ctx context.Context, limit int) ([]*catalog.DropEvent, error)
	MarkDropNotified(ctx context.Context, id string) error
}

// Dispatcher drains the unnotified-drops queue through a Sender.
type Dispatcher struct {
	queue    Queue
	sender   Sender
	logger   *slog.Logger
	interval time.Duration
	batch    int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithInterval sets the polling interval. Default: 1 minute.
func WithInterval(d time.Duration) Option {
	return func(dp *Dispatcher) { dp.interval = d }
}

// WithBatchSize caps events handled per pass. Default: 50.
func WithBatchSize(n int) Option {
	return func(dp *Dispatcher) { dp.batch = n }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(dp *Dispatcher) { dp.logger = l }
}

// New creates a Dispatcher.
func New(q Queue, s Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    q,
		sender:   s,
		logger:   slog.Default(),
		interval: time.Minute,
		batch:    50,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DispatchOnce sends every pending drop in one pass. A failed send leaves
// the event pending for the next pass; the pass continues with the rest.
// Returns the number of events successfully dispatched.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.queue.UnnotifiedDrops(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("notify: read queue: %w", err)
	}
	sent := 0
	for _, ev := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if err := d.sender.Send(ctx, ev); err != nil {
			d.logger.Warn("notify: send failed", "drop", ev.ID, "key", ev.CanonicalKey, "error", err)
			continue
		}
		if err := d.queue.MarkDropNotified(ctx, ev.ID); err != nil {
			// The send happened; a retry next pass means a duplicate
			// notification, which beats a silent loss.
			d.logger.Error("notify: mark notified", "drop", ev.ID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Run polls the queue until ctx is cancelled. Blocks.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("notify: dispatcher started", "interval", d.interval)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notify: dispatcher stopped")
			return
		case <-ticker.C:
			if n, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("notify: dispatch pass", "error", err)
			} else if n > 0 {
				d.logger.Info("notify: dispatched", "count", n)
			}
		}
	}
}

// LogSender writes drop notifications to the log. The default channel
// when nothing external is configured.
type LogSender struct {
	Logger *slog.Logger
}

// Send implements Sender.
func (s LogSender) Send(_ context.Context, d *catalog.DropEvent) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("price drop",
		"retailer", d.Retailer,
		"title", d.Title,
		"old", d.OldPrice,
		"new", d.NewPrice,
		"percent", d.DropPercent,
		"url", d.ProductURL)
	return nil
}
