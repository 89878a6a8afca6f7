package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pricepulse/pricepulse/adapter"
	"github.com/pricepulse/pricepulse/catalog/internal/pipeline"
	"github.com/pricepulse/pricepulse/catalog/internal/scheduler"
	"github.com/pricepulse/pricepulse/catalog/internal/store"
)

// Service is the catalog engine: it owns the store, the retailer
// registry, and the run state machine.
//
// Runs are serialized by a mutex. The pipeline's writes are idempotent,
// so overlap would be safe for the data, but interleaved runs of the
// same retailer would make the sweep's seen set meaningless.
type Service struct {
	cfg       *Config
	store     *store.Store
	pipe      *pipeline.Pipeline
	sanitizer *Sanitizer
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	adapters map[string]adapter.Adapter
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service on an open database. The schema is applied if
// missing.
func New(db *sql.DB, cfg *Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	s := &Service{
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		adapters: make(map[string]adapter.Adapter),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}
	s.store = store.NewStore(db)
	s.pipe = pipeline.New(s.store, s.logger)
	s.sanitizer = NewSanitizer(s.logger)
	return s, nil
}

// RegisterAdapter binds an extraction adapter to a retailer slug.
func (s *Service) RegisterAdapter(retailer string, a adapter.Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[retailer] = a
}

// Run executes one full pass for a single retailer and returns its run
// summary. At most one run executes at a time; callers block until the
// current run finishes.
//
// An adapter failure marks the run failed and returns a wrapped
// ErrCrawlFailed; nothing is committed and no sweep happens. Failures
// after a successful crawl also mark the run failed, but partial commits
// are safe to retry because every write is idempotent.
func (s *Service) Run(ctx context.Context, retailer string) (*RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(ctx, retailer)
}

// RunAll runs every configured retailer sequentially. One retailer's
// failure does not stop the others; the first error is returned after
// all retailers ran.
func (s *Service) RunAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, r := range s.cfg.Retailers {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.runLocked(ctx, r.Name); err != nil {
			s.logger.Error("run failed", "retailer", r.Name, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Start runs scheduled passes until ctx is cancelled. Blocks. A
// RunInterval of 0 disables scheduling and Start returns immediately.
func (s *Service) Start(ctx context.Context) {
	if s.cfg.RunInterval <= 0 {
		s.logger.Info("scheduler disabled")
		return
	}
	sched := scheduler.New(func(ctx context.Context) {
		if err := s.RunAll(ctx); err != nil {
			s.logger.Error("scheduled pass finished with errors", "error", err)
		}
	}, scheduler.Config{Interval: time.Duration(s.cfg.RunInterval)}, s.logger)
	sched.Run(ctx)
}

func (s *Service) runLocked(ctx context.Context, retailer string) (*RunSummary, error) {
	rcfg := s.cfg.Retailer(retailer)
	if rcfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRetailer, retailer)
	}
	ad := s.adapters[retailer]
	if ad == nil {
		return nil, fmt.Errorf("%w: %s has no adapter", ErrUnknownRetailer, retailer)
	}

	started := s.now()
	run := &store.Run{
		ID:        fmt.Sprintf("%s:%d", retailer, started.UnixMilli()),
		Retailer:  retailer,
		State:     store.RunPending,
		StartedAt: started.UnixMilli(),
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRun, run.ID)
		}
		return nil, fmt.Errorf("catalog: record run: %w", err)
	}
	log := s.logger.With("retailer", retailer, "run", run.ID)
	log.Info("run started")

	fail := func(stage string, err error) (*RunSummary, error) {
		run.State = store.RunFailed
		run.Error = err.Error()
		run.FinishedAt = s.now().UnixMilli()
		if ferr := s.store.FinishRun(ctx, run); ferr != nil {
			log.Error("finish failed run", "error", ferr)
		}
		log.Error("run failed", "stage", stage, "error", err)
		return run, err
	}

	// Crawl.
	s.transition(ctx, run, store.RunCrawling, log)
	recs, err := ad.Crawl(ctx, retailer, rcfg.StartURLs)
	if err != nil {
		return fail("crawl", fmt.Errorf("%w: %s: %v", ErrCrawlFailed, retailer, err))
	}
	run.Observed = len(recs)

	// Sanitize.
	s.transition(ctx, run, store.RunSanitizing, log)
	observedAt := s.now().UnixMilli()
	items, rejected := s.sanitizer.Sanitize(rcfg, recs, observedAt)
	run.Rejected = rejected

	batch := make([]*store.Item, len(items))
	seen := make([]string, len(items))
	for i := range items {
		batch[i] = &items[i]
		seen[i] = items[i].CanonicalKey
	}

	// Commit: detect drops, append history, upsert catalog.
	s.transition(ctx, run, store.RunCommitting, log)
	res, err := s.pipe.Commit(ctx, batch, run.ID, observedAt)
	if err != nil {
		return fail("commit", err)
	}
	run.Drops = res.Drops
	run.HistoryWritten = res.HistoryWritten
	run.Created = res.Created
	run.Updated = res.Updated
	run.Reactivated = res.Reactivated

	// Reconcile: the crawl succeeded, so anything not in the seen set is
	// genuinely gone from the retailer, even when the set is empty.
	s.transition(ctx, run, store.RunReconciling, log)
	deactivated, err := s.pipe.Sweep(ctx, retailer, seen, observedAt)
	if err != nil {
		return fail("sweep", err)
	}
	run.Deactivated = deactivated

	run.State = store.RunDone
	run.FinishedAt = s.now().UnixMilli()
	if err := s.store.FinishRun(ctx, run); err != nil {
		return fail("finish", fmt.Errorf("catalog: finish run: %w", err))
	}
	log.Info("run done",
		"observed", run.Observed,
		"rejected", run.Rejected,
		"created", run.Created,
		"updated", run.Updated,
		"reactivated", run.Reactivated,
		"deactivated", run.Deactivated,
		"history", run.HistoryWritten,
		"drops", run.Drops)
	return run, nil
}

func (s *Service) transition(ctx context.Context, run *store.Run, state string, log *slog.Logger) {
	run.State = state
	if err := s.store.UpdateRunState(ctx, run.ID, state); err != nil {
		log.Warn("record run state", "state", state, "error", err)
	}
}

// Items lists catalog items, optionally filtered by retailer and state.
func (s *Service) Items(ctx context.Context, retailer, state string, limit int) ([]*Item, error) {
	return s.store.ListItems(ctx, retailer, state, limit)
}

// Item returns one catalog item by canonical key, or nil.
func (s *Service) Item(ctx context.Context, canonicalKey string) (*Item, error) {
	return s.store.GetItem(ctx, canonicalKey)
}

// History returns an item's price snapshots, newest first.
func (s *Service) History(ctx context.Context, canonicalKey string, limit int) ([]*Snapshot, error) {
	return s.store.ListHistory(ctx, canonicalKey, limit)
}

// Drops lists detected price drops, newest first.
func (s *Service) Drops(ctx context.Context, retailer string, limit int) ([]*DropEvent, error) {
	return s.store.ListDrops(ctx, retailer, limit)
}

// Runs lists run summaries, newest first.
func (s *Service) Runs(ctx context.Context, retailer string, limit int) ([]*RunSummary, error) {
	return s.store.ListRuns(ctx, retailer, limit)
}

// GetRun returns one run summary by id, or nil.
func (s *Service) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	return s.store.GetRun(ctx, runID)
}

// UnnotifiedDrops lists drops not yet dispatched, oldest first.
func (s *Service) UnnotifiedDrops(ctx context.Context, limit int) ([]*DropEvent, error) {
	return s.store.ListUnnotified(ctx, limit)
}

// MarkDropNotified records a successful dispatch of a drop event.
func (s *Service) MarkDropNotified(ctx context.Context, id string) error {
	return s.store.MarkNotified(ctx, id, s.now().UnixMilli())
}
