package catalog

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pricepulse/pricepulse/adapter"
	"github.com/pricepulse/pricepulse/catalog/internal/store"
)

// priceRe pulls the first number out of a price string. Accepts "£24.99",
// "24,99 €", "NOW 19.00" and the like.
var priceRe = regexp.MustCompile(`\d+(?:[.,]\d{1,2})?`)

// ParsePrice extracts a decimal price from a raw display string. A comma
// decimal separator is accepted. Returns false for strings with no number
// or with a non-positive value.
func ParsePrice(raw string) (decimal.Decimal, bool) {
	m := priceRe.FindString(raw)
	if m == "" {
		return decimal.Decimal{}, false
	}
	m = strings.ReplaceAll(m, ",", ".")
	d, err := decimal.NewFromString(m)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// canonical size ladder, in display order
var sizeOrder = []string{"XXS", "XS", "S", "M", "L", "XL", "XXL", "XXXL"}

var sizeAliases = map[string]string{
	"2XS": "XXS",
	"2XL": "XXL",
	"3XL": "XXXL",
}

// NormalizeSizes uppercases, trims and dedupes raw size labels, folds
// common aliases onto the XXS..XXXL ladder, and returns the ladder sizes
// present, in ladder order. Numeric and other non-ladder labels are
// dropped here; the sanitizer preserves them in SizesRaw.
func NormalizeSizes(raw []string) []string {
	onLadder := make(map[string]bool, len(raw))
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if alias, ok := sizeAliases[s]; ok {
			s = alias
		}
		for _, l := range sizeOrder {
			if s == l {
				onLadder[s] = true
				break
			}
		}
	}
	var out []string
	for _, l := range sizeOrder {
		if onLadder[l] {
			out = append(out, l)
		}
	}
	return out
}

// categoryRules maps title keywords to a category, checked in order so
// the more specific words win.
var categoryRules = []struct {
	category string
	words    []string
}{
	{"dresses", []string{"dress", "gown"}},
	{"jumpsuits", []string{"jumpsuit", "playsuit", "romper"}},
	{"coats", []string{"coat", "jacket", "blazer", "parka", "puffer"}},
	{"knitwear", []string{"jumper", "sweater", "cardigan", "knit", "hoodie", "sweatshirt"}},
	{"jeans", []string{"jeans", "denim"}},
	{"trousers", []string{"trouser", "pants", "legging", "jogger", "chino"}},
	{"skirts", []string{"skirt"}},
	{"shorts", []string{"shorts"}},
	{"tops", []string{"top", "shirt", "blouse", "tee", "bodysuit", "cami", "vest", "corset"}},
	{"swimwear", []string{"bikini", "swimsuit", "swim"}},
	{"shoes", []string{"shoe", "boot", "heel", "sandal", "trainer", "sneaker", "loafer", "mule"}},
	{"bags", []string{"bag", "clutch", "tote", "backpack"}},
	{"accessories", []string{"belt", "scarf", "hat", "necklace", "earring", "ring", "bracelet", "sunglasses"}},
}

// DeriveCategory classifies a product by keywords in its title, falling
// back to its URL path, or "other".
func DeriveCategory(title, productURL string) string {
	t := strings.ToLower(title) + " " + strings.ToLower(productURL)
	for _, rule := range categoryRules {
		for _, w := range rule.words {
			if strings.Contains(t, w) {
				return rule.category
			}
		}
	}
	return "other"
}

// dedupeStrings keeps first occurrences, dropping empties.
func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Sanitizer turns raw adapter records into catalog item candidates.
type Sanitizer struct {
	logger *slog.Logger
}

// NewSanitizer returns a sanitizer logging rejects through logger.
func NewSanitizer(logger *slog.Logger) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sanitizer{logger: logger}
}

// Sanitize validates and normalizes a batch of raw records for one
// retailer. Records missing a title, a parseable positive price, a
// primary image, or a product URL passing the retailer's listing rule
// are rejected. Returns the accepted items and the reject count.
func (s *Sanitizer) Sanitize(r *Retailer, recs []adapter.RawRecord, now int64) ([]store.Item, int) {
	items := make([]store.Item, 0, len(recs))
	rejected := 0
	keys := make(map[string]bool, len(recs))
	for _, rec := range recs {
		item, reason := s.one(r, rec, now)
		if reason != "" {
			rejected++
			s.logger.Debug("record rejected",
				"retailer", r.Name,
				"reason", reason,
				"url", rec.String("productUrl"))
			continue
		}
		// Two raw records resolving to the same canonical key collapse
		// to the first one.
		if keys[item.CanonicalKey] {
			rejected++
			continue
		}
		keys[item.CanonicalKey] = true
		items = append(items, item)
	}
	return items, rejected
}

func (s *Sanitizer) one(r *Retailer, rec adapter.RawRecord, now int64) (store.Item, string) {
	title := strings.TrimSpace(rec.String("title"))
	if title == "" {
		return store.Item{}, "empty title"
	}
	price, ok := ParsePrice(rec.String("price"))
	if !ok {
		return store.Item{}, "unparseable price"
	}
	image := strings.TrimSpace(rec.String("image"))
	if image == "" {
		if imgs := rec.Strings("images"); len(imgs) > 0 {
			image = strings.TrimSpace(imgs[0])
		}
	}
	if image == "" {
		return store.Item{}, "missing image"
	}
	productURL := strings.TrimSpace(rec.String("productUrl"))
	if productURL == "" || !r.Listing.Match(productURL) {
		return store.Item{}, "not a product page"
	}
	// Stored URLs are the normalized ones; tracking noise stays out of
	// the catalog.
	productURL, _ = NormalizeListingURL(productURL)
	saleURL, _ := NormalizeListingURL(strings.TrimSpace(rec.String("saleUrl")))

	item := store.Item{
		CanonicalKey: CanonicalKey(r.Name, productURL),
		Retailer:     r.Name,
		RetailerName: r.DisplayName,
		Title:        title,
		Price:        price,
		Currency:     r.Currency,
		Image:        image,
		Images:       dedupeStrings(rec.Strings("images")),
		ProductURL:   productURL,
		SaleURL:      saleURL,
		Category:     DeriveCategory(title, productURL),
		Gender:       r.Gender,
		Colors:       dedupeStrings(rec.Strings("colors")),
		SizesRaw:     dedupeStrings(rec.Strings("sizes")),
		InStock:      rec.Bool("inStock", true),
		State:        store.StateActive,
		LastSeenAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	item.Sizes = NormalizeSizes(item.SizesRaw)
	if len(item.Images) == 0 {
		item.Images = []string{image}
	}

	// An original price only survives if it is strictly above the
	// current price; anything else is noise from the listing markup.
	if orig, ok := ParsePrice(rec.String("originalPrice")); ok && orig.GreaterThan(price) {
		item.OriginalPrice = &orig
		pct := orig.Sub(price).Div(orig).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		item.DiscountPercent = &pct
	}
	if c := strings.TrimSpace(rec.String("category")); c != "" {
		item.Category = strings.ToLower(c)
	}
	if g := strings.TrimSpace(rec.String("gender")); g != "" {
		item.Gender = g
	}
	return item, ""
}
