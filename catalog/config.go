package catalog

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pricepulse/pricepulse/adapter"
)

// defaultDenyPaths are path fragments that identify known non-product
// pages regardless of retailer config.
var defaultDenyPaths = []string{
	"/cart", "/basket", "/checkout", "/search", "/account", "/login",
	"/register", "/wishlist", "/help", "/stores",
}

// ListingRule decides whether a URL is actually a product detail page.
// The deny list is checked first, then the suffix, then the path pattern;
// with neither suffix nor pattern configured anything not denied passes.
type ListingRule struct {
	// PathSuffix accepts URLs whose path ends with this suffix
	// (e.g. ".html").
	PathSuffix string `yaml:"path_suffix"`
	// PathPattern accepts URLs whose path matches this regular expression
	// (e.g. "/products/[0-9]+").
	PathPattern string `yaml:"path_pattern"`
	// Deny extends the built-in denylist of non-product path fragments.
	Deny []string `yaml:"deny"`

	pattern *regexp.Regexp
}

func (r *ListingRule) compile() error {
	if r.PathPattern == "" {
		return nil
	}
	p, err := regexp.Compile(r.PathPattern)
	if err != nil {
		return fmt.Errorf("%w: listing path_pattern: %v", ErrInvalidInput, err)
	}
	r.pattern = p
	return nil
}

// Match reports whether rawURL looks like a product detail page.
func (r *ListingRule) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)

	for _, deny := range defaultDenyPaths {
		if strings.Contains(path, deny) {
			return false
		}
	}
	for _, deny := range r.Deny {
		if deny != "" && strings.Contains(path, strings.ToLower(deny)) {
			return false
		}
	}

	if r.PathSuffix != "" && !strings.HasSuffix(path, strings.ToLower(r.PathSuffix)) {
		return false
	}
	if r.pattern != nil && !r.pattern.MatchString(path) {
		return false
	}
	return true
}

// Retailer configures one monitored retailer.
type Retailer struct {
	// Name is the retailer slug used in keys and rows ("prettylittlething").
	Name string `yaml:"name"`
	// DisplayName is the human-readable store name.
	DisplayName string `yaml:"display_name"`
	// Currency for this retailer's prices. Default: the global default.
	Currency string `yaml:"currency"`
	// StartURLs are the listing/sale pages handed to the adapter.
	StartURLs []string `yaml:"start_urls"`
	// Gender tags every record from this retailer's configured pages
	// ("women", "men"), optional.
	Gender string `yaml:"gender"`
	// Listing is the product-detail-page predicate.
	Listing ListingRule `yaml:"listing"`
	// Selectors drive the bundled browser adapter.
	Selectors adapter.Selectors `yaml:"selectors"`
}

// Duration is re-exported so config consumers don't import adapter for it.
type Duration = adapter.Duration

// Config configures the catalog service.
type Config struct {
	// DefaultCurrency is used when a retailer doesn't set one. Default: "GBP".
	DefaultCurrency string `yaml:"default_currency"`
	// RunInterval is the scheduler period. 0 disables scheduled passes.
	RunInterval Duration `yaml:"run_interval"`
	// Browser tunes the bundled browser adapter.
	Browser adapter.BrowserConfig `yaml:"browser"`
	// Retailers is the registry, in run order.
	Retailers []Retailer `yaml:"retailers"`
}

func (c *Config) defaults() error {
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = "GBP"
	}
	for i := range c.Retailers {
		r := &c.Retailers[i]
		if r.Name == "" {
			return fmt.Errorf("%w: retailer %d has no name", ErrInvalidInput, i)
		}
		if r.DisplayName == "" {
			r.DisplayName = r.Name
		}
		if r.Currency == "" {
			r.Currency = c.DefaultCurrency
		}
		if err := r.Listing.compile(); err != nil {
			return fmt.Errorf("retailer %s: %w", r.Name, err)
		}
	}
	return nil
}

// Retailer looks up a retailer by slug, or nil.
func (c *Config) Retailer(name string) *Retailer {
	for i := range c.Retailers {
		if c.Retailers[i].Name == name {
			return &c.Retailers[i]
		}
	}
	return nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
