package catalog

import (
	"strings"
	"testing"
)

func TestCanonicalKey_Deterministic(t *testing.T) {
	a := CanonicalKey("demo", "https://x/p/1.html")
	b := CanonicalKey("demo", "https://x/p/1.html")
	if a != b {
		t.Fatalf("same input, different keys: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "demo:") {
		t.Fatalf("key not retailer-namespaced: %q", a)
	}
}

func TestCanonicalKey_StableUnderTracking(t *testing.T) {
	// WHAT: Tracking parameters never change an item's identity.
	// WHY: The same product reached via a campaign link must not become a
	// duplicate catalog row.
	base := CanonicalKey("demo", "https://x/p/1.html")
	for _, u := range []string{
		"https://x/p/1.html?utm_source=news",
		"https://x/p/1.html?utm_source=news&utm_medium=email&utm_campaign=sale",
		"https://x/p/1.html?affid=123",
		"https://x/p/1.html?cmp=a&kid=b",
		"https://x/p/1.html?gclid=xyz&fbclid=abc",
		"https://x/p/1.html#reviews",
	} {
		if got := CanonicalKey("demo", u); got != base {
			t.Errorf("key changed for %s: %q vs %q", u, got, base)
		}
	}
}

func TestCanonicalKey_PreservesRealParams(t *testing.T) {
	// Non-tracking parameters are identity-relevant (e.g. a colour
	// variant) and must survive, in their original order.
	with := CanonicalKey("demo", "https://x/p/1.html?color=black")
	without := CanonicalKey("demo", "https://x/p/1.html")
	if with == without {
		t.Fatal("real query parameter was stripped")
	}

	mixed := CanonicalKey("demo", "https://x/p/1.html?color=black&utm_source=n")
	if mixed != with {
		t.Fatal("stripping tracking params disturbed the surviving ones")
	}

	// Parameter order is left untouched, so a reordered URL is a
	// different key. Accepted: retailers emit links in a stable order.
	reordered := CanonicalKey("demo", "https://x/p/1.html?b=2&a=1")
	ordered := CanonicalKey("demo", "https://x/p/1.html?a=1&b=2")
	if reordered == ordered {
		t.Fatal("expected order-sensitive keys")
	}
}

func TestCanonicalKey_RetailerNamespacing(t *testing.T) {
	const u = "https://x/p/1.html"
	if CanonicalKey("r1", u) == CanonicalKey("r2", u) {
		t.Fatal("two retailers collided on an identical path")
	}
}

func TestCanonicalKey_UnparseableURLFallsBackToRaw(t *testing.T) {
	// WHAT: A malformed URL hashes verbatim instead of failing.
	// WHY: One bad URL must not block the run; the cost is that it isn't
	// normalized, which is an accepted inconsistency.
	raw := "::not a url::"
	a := CanonicalKey("demo", raw)
	b := CanonicalKey("demo", raw)
	if a != b {
		t.Fatal("fallback hashing is not deterministic")
	}
	if !strings.HasPrefix(a, "demo:") {
		t.Fatalf("fallback key not namespaced: %q", a)
	}
}

func TestNormalizeListingURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://x/p/1.html?utm_source=a", "https://x/p/1.html", true},
		{"https://x/p/1.html?color=red&utm_medium=b&size=m", "https://x/p/1.html?color=red&size=m", true},
		{"https://x/p/1.html#frag", "https://x/p/1.html", true},
		{"https://x/p/1.html?affid=7", "https://x/p/1.html", true},
		{"not-a-url", "not-a-url", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := NormalizeListingURL(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeListingURL(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
