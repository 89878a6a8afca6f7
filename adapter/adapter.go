// Package adapter defines the extraction boundary: something that crawls a
// retailer's listing pages and returns loosely structured product records.
//
// The catalog core consumes this interface and makes no assumptions about
// how the records were produced. A Rod-based browser implementation is
// bundled (see Browser); tests use Func.
package adapter

import (
	"context"
	"strconv"
)

// RawRecord is one loosely typed product record from an extraction pass.
// Expected keys: title, price (number or parseable string), image or
// images, productUrl; optionally originalPrice, category, gender, colors,
// sizes, inStock, saleUrl.
type RawRecord map[string]any

// Adapter produces raw product listings for one retailer.
type Adapter interface {
	Crawl(ctx context.Context, retailer string, startURLs []string) ([]RawRecord, error)
}

// Func adapts a plain function to the Adapter interface.
type Func func(ctx context.Context, retailer string, startURLs []string) ([]RawRecord, error)

// Crawl implements Adapter.
func (f Func) Crawl(ctx context.Context, retailer string, startURLs []string) ([]RawRecord, error) {
	return f(ctx, retailer, startURLs)
}

// String returns the value for key as a string, or "" when absent or not
// string-like. Numbers are formatted, so a numeric price still parses.
func (r RawRecord) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Strings returns the value for key as a string slice. Scalars are wrapped,
// non-string elements are skipped.
func (r RawRecord) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// Bool returns the value for key as a bool, or def when absent or not a bool.
func (r RawRecord) Bool(key string, def bool) bool {
	if v, ok := r[key].(bool); ok {
		return v
	}
	return def
}
