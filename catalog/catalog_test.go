package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pricepulse/pricepulse/adapter"
	"github.com/pricepulse/pricepulse/dbopen"
)

func testConfig() *Config {
	return &Config{
		DefaultCurrency: "GBP",
		Retailers: []Retailer{
			{
				Name:        "demo",
				DisplayName: "Demo Store",
				StartURLs:   []string{"https://demo.test/sale"},
				Listing:     ListingRule{PathSuffix: ".html"},
			},
			{
				Name:      "other",
				StartURLs: []string{"https://other.test/sale"},
				Listing:   ListingRule{PathSuffix: ".html"},
			},
		},
	}
}

// testClock hands out strictly increasing times so run ids never collide.
func testClock() func() time.Time {
	t := time.UnixMilli(1_700_000_000_000)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func testService(t *testing.T) *Service {
	t.Helper()
	db := dbopen.OpenMemory(t)
	svc, err := New(db, testConfig(), WithClock(testClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func staticAdapter(recs ...adapter.RawRecord) adapter.Adapter {
	return adapter.Func(func(context.Context, string, []string) ([]adapter.RawRecord, error) {
		return recs, nil
	})
}

func record(url, price string) adapter.RawRecord {
	return adapter.RawRecord{
		"title":      "Satin Midi Dress",
		"price":      price,
		"image":      "https://img.demo.test/1.jpg",
		"productUrl": url,
	}
}

// WHAT: the three-run lifecycle of a single product. Run 1 creates it,
// run 2 at a lower price records one drop, run 3 without it sweeps it
// inactive.
// WHY: this is the end-to-end contract of the engine; every stage and
// every summary count is visible here.
func TestService_RunLifecycle(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	url := "https://demo.test/p/dress-1.html"

	svc.RegisterAdapter("demo", staticAdapter(record(url, "30.00")))
	run1, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatalf("run 1: %v", err)
	}
	if run1.State != RunDone {
		t.Fatalf("run 1 state = %s", run1.State)
	}
	if run1.Observed != 1 || run1.Created != 1 || run1.Drops != 0 || run1.HistoryWritten != 1 {
		t.Errorf("run 1 counts: %+v", run1)
	}

	svc.RegisterAdapter("demo", staticAdapter(record(url, "25.00")))
	run2, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatalf("run 2: %v", err)
	}
	if run2.Drops != 1 || run2.Updated != 1 || run2.Created != 0 {
		t.Errorf("run 2 counts: %+v", run2)
	}

	// Crawl succeeds but sees nothing: the product is gone.
	svc.RegisterAdapter("demo", staticAdapter())
	run3, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatalf("run 3: %v", err)
	}
	if run3.Deactivated != 1 {
		t.Errorf("run 3 deactivated = %d", run3.Deactivated)
	}

	key := CanonicalKey("demo", url)
	it, err := svc.Item(ctx, key)
	if err != nil || it == nil {
		t.Fatalf("Item: %v %v", it, err)
	}
	if it.State != StateInactive {
		t.Errorf("state = %s", it.State)
	}
	hist, err := svc.History(ctx, key, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Errorf("history rows = %d", len(hist))
	}
	drops, err := svc.Drops(ctx, "demo", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(drops) != 1 {
		t.Fatalf("drops = %d", len(drops))
	}
	if drops[0].DropPercent == nil || *drops[0].DropPercent != 17 {
		t.Errorf("drop percent = %v", drops[0].DropPercent)
	}

	// Run 4: reappearing at the same price flips the item back to active,
	// counts as a reactivation, and records no new drop.
	svc.RegisterAdapter("demo", staticAdapter(record(url, "25.00")))
	run4, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatalf("run 4: %v", err)
	}
	if run4.Reactivated != 1 || run4.Drops != 0 {
		t.Errorf("run 4 counts: reactivated=%d drops=%d", run4.Reactivated, run4.Drops)
	}
	it, _ = svc.Item(ctx, key)
	if it.State != StateActive {
		t.Errorf("state after reappearance = %s", it.State)
	}
}

// WHAT: an adapter failure marks the run failed, commits nothing, and
// does not sweep the retailer's existing items.
func TestService_CrawlFailure(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	url := "https://demo.test/p/dress-1.html"

	svc.RegisterAdapter("demo", staticAdapter(record(url, "30.00")))
	if _, err := svc.Run(ctx, "demo"); err != nil {
		t.Fatal(err)
	}

	svc.RegisterAdapter("demo", adapter.Func(func(context.Context, string, []string) ([]adapter.RawRecord, error) {
		return nil, errors.New("net: connection reset")
	}))
	run, err := svc.Run(ctx, "demo")
	if !errors.Is(err, ErrCrawlFailed) {
		t.Fatalf("err = %v", err)
	}
	if run.State != RunFailed || run.Error == "" {
		t.Errorf("run = %+v", run)
	}

	it, err := svc.Item(ctx, CanonicalKey("demo", url))
	if err != nil || it == nil {
		t.Fatal(err)
	}
	if it.State != StateActive {
		t.Errorf("item swept by a failed run: state = %s", it.State)
	}
}

// WHAT: one retailer's failure does not block the others in RunAll.
func TestService_RunAllIsolation(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	svc.RegisterAdapter("demo", adapter.Func(func(context.Context, string, []string) ([]adapter.RawRecord, error) {
		return nil, errors.New("boom")
	}))
	svc.RegisterAdapter("other", staticAdapter(record("https://other.test/p/2.html", "10.00")))

	err := svc.RunAll(ctx)
	if !errors.Is(err, ErrCrawlFailed) {
		t.Fatalf("RunAll err = %v", err)
	}
	items, err := svc.Items(ctx, "other", StateActive, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("other retailer items = %d", len(items))
	}
}

// WHAT: unknown retailers and unregistered adapters are rejected up front.
func TestService_UnknownRetailer(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	if _, err := svc.Run(ctx, "nope"); !errors.Is(err, ErrUnknownRetailer) {
		t.Errorf("err = %v", err)
	}
	// Configured but no adapter registered.
	if _, err := svc.Run(ctx, "demo"); !errors.Is(err, ErrUnknownRetailer) {
		t.Errorf("err = %v", err)
	}
}

// WHAT: a run id collision surfaces as ErrDuplicateRun.
// WHY: run ids embed a millisecond timestamp; a frozen clock is the only
// way two runs collide, and the second must not silently share the row.
func TestService_DuplicateRun(t *testing.T) {
	db := dbopen.OpenMemory(t)
	frozen := time.UnixMilli(1_700_000_000_000)
	svc, err := New(db, testConfig(), WithClock(func() time.Time { return frozen }))
	if err != nil {
		t.Fatal(err)
	}
	svc.RegisterAdapter("demo", staticAdapter())

	if _, err := svc.Run(context.Background(), "demo"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Run(context.Background(), "demo"); !errors.Is(err, ErrDuplicateRun) {
		t.Fatalf("err = %v", err)
	}
}

// WHAT: sweeps are scoped to the retailer being run.
func TestService_SweepScopedPerRetailer(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	svc.RegisterAdapter("demo", staticAdapter(record("https://demo.test/p/1.html", "30.00")))
	svc.RegisterAdapter("other", staticAdapter(record("https://other.test/p/2.html", "10.00")))
	if err := svc.RunAll(ctx); err != nil {
		t.Fatal(err)
	}

	// Demo goes empty; other is untouched because only demo ran.
	svc.RegisterAdapter("demo", staticAdapter())
	if _, err := svc.Run(ctx, "demo"); err != nil {
		t.Fatal(err)
	}

	otherItems, err := svc.Items(ctx, "other", StateActive, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(otherItems) != 1 {
		t.Errorf("other retailer swept: %d active", len(otherItems))
	}
}

// WHAT: rejected records count toward the summary but never reach the
// catalog.
func TestService_RejectCounting(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	bad := adapter.RawRecord{"title": "", "price": "x"}
	svc.RegisterAdapter("demo", staticAdapter(record("https://demo.test/p/1.html", "30.00"), bad))

	run, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}
	if run.Observed != 2 || run.Rejected != 1 || run.Created != 1 {
		t.Errorf("counts: observed=%d rejected=%d created=%d", run.Observed, run.Rejected, run.Created)
	}
}

// WHAT: run summaries persist and list newest first.
func TestService_RunListing(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	svc.RegisterAdapter("demo", staticAdapter(record("https://demo.test/p/1.html", "30.00")))
	r1, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := svc.Run(ctx, "demo")
	if err != nil {
		t.Fatal(err)
	}

	runs, err := svc.Runs(ctx, "demo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != r2.ID || runs[1].ID != r1.ID {
		t.Fatalf("runs = %+v", runs)
	}
	got, err := svc.GetRun(ctx, r1.ID)
	if err != nil || got == nil || got.State != RunDone {
		t.Fatalf("GetRun: %+v %v", got, err)
	}
}

// WHAT: drop events move through the notification queue exactly once.
func TestService_NotificationQueue(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	url := "https://demo.test/p/1.html"

	svc.RegisterAdapter("demo", staticAdapter(record(url, "30.00")))
	if _, err := svc.Run(ctx, "demo"); err != nil {
		t.Fatal(err)
	}
	svc.RegisterAdapter("demo", staticAdapter(record(url, "20.00")))
	if _, err := svc.Run(ctx, "demo"); err != nil {
		t.Fatal(err)
	}

	pending, err := svc.UnnotifiedDrops(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d", len(pending))
	}
	if err := svc.MarkDropNotified(ctx, pending[0].ID); err != nil {
		t.Fatal(err)
	}
	pending, err = svc.UnnotifiedDrops(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after mark = %d", len(pending))
	}
}
