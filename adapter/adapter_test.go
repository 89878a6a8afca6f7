package adapter

import (
	"context"
	"testing"
)

func TestFunc_ImplementsAdapter(t *testing.T) {
	var a Adapter = Func(func(_ context.Context, retailer string, _ []string) ([]RawRecord, error) {
		return []RawRecord{{"title": retailer}}, nil
	})
	recs, err := a.Crawl(context.Background(), "demo", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].String("title") != "demo" {
		t.Fatalf("unexpected records: %v", recs)
	}
}

func TestRawRecord_String(t *testing.T) {
	r := RawRecord{"title": "Hoodie", "price": 30.5, "count": 3, "ok": true}
	if got := r.String("title"); got != "Hoodie" {
		t.Fatalf("String(title) = %q", got)
	}
	// Numeric values are formatted so a numeric price still parses.
	if got := r.String("price"); got != "30.5" {
		t.Fatalf("String(price) = %q, want 30.5", got)
	}
	if got := r.String("count"); got != "3" {
		t.Fatalf("String(count) = %q, want 3", got)
	}
	// Everything else and missing keys read as empty.
	if got := r.String("ok"); got != "" {
		t.Fatalf("String(ok) = %q, want empty", got)
	}
	if got := r.String("missing"); got != "" {
		t.Fatalf("String(missing) = %q, want empty", got)
	}
}

func TestRawRecord_Strings(t *testing.T) {
	r := RawRecord{
		"images": []any{"a.jpg", 42, "b.jpg"},
		"colors": []string{"black", "white"},
		"single": "one",
	}
	if got := r.Strings("images"); len(got) != 2 || got[0] != "a.jpg" || got[1] != "b.jpg" {
		t.Fatalf("Strings(images) = %v", got)
	}
	if got := r.Strings("colors"); len(got) != 2 {
		t.Fatalf("Strings(colors) = %v", got)
	}
	if got := r.Strings("single"); len(got) != 1 || got[0] != "one" {
		t.Fatalf("Strings(single) = %v", got)
	}
	if got := r.Strings("missing"); got != nil {
		t.Fatalf("Strings(missing) = %v, want nil", got)
	}
}

func TestRawRecord_Bool(t *testing.T) {
	r := RawRecord{"inStock": false}
	if r.Bool("inStock", true) {
		t.Fatal("explicit false should win over default")
	}
	if !r.Bool("missing", true) {
		t.Fatal("missing key should use default")
	}
}
