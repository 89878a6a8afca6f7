package catalog

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during URL normalization.
// utm_* is handled as a prefix match.
var trackingParams = map[string]struct{}{
	"affid":  {},
	"cmp":    {},
	"kid":    {},
	"gclid":  {},
	"fbclid": {},
}

func isTrackingParam(key string) bool {
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}

// NormalizeListingURL strips the fragment and known tracking parameters
// from a listing URL, leaving all other path and query structure (and the
// order of surviving parameters) untouched. An unparseable URL is
// returned verbatim with ok=false; the caller hashes it as-is rather than
// failing the record.
func NormalizeListingURL(raw string) (normalized string, ok bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw, false
	}

	u.Fragment = ""

	if u.RawQuery != "" {
		// Filter pairs by hand: url.Values.Encode would re-sort the
		// surviving parameters and change keys we must leave alone.
		pairs := strings.Split(u.RawQuery, "&")
		kept := pairs[:0]
		for _, pair := range pairs {
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			if decoded, err := url.QueryUnescape(key); err == nil {
				key = decoded
			}
			if !isTrackingParam(key) {
				kept = append(kept, pair)
			}
		}
		u.RawQuery = strings.Join(kept, "&")
	}

	return u.String(), true
}

// CanonicalKey derives the stable identity of a listing:
// "{retailer}:{sha1(normalizedURL)}". Deterministic and
// retailer-namespaced: two retailers never collide even on identical
// paths. The key never changes once assigned to a catalog row.
func CanonicalKey(retailer, rawListingURL string) string {
	normalized, _ := NormalizeListingURL(rawListingURL)
	sum := sha1.Sum([]byte(normalized))
	return retailer + ":" + hex.EncodeToString(sum[:])
}
