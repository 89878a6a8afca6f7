package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Selectors tells the browser adapter where product data lives in the DOM.
// Card and Link locate detail-page links on a listing page; the rest are
// evaluated on each detail page.
type Selectors struct {
	Card          string `yaml:"card"`           // product card on the listing page
	Link          string `yaml:"link"`           // anchor inside a card (default: "a")
	Title         string `yaml:"title"`          // e.g. "#pdp-name, h1"
	Price         string `yaml:"price"`          // current price element
	OriginalPrice string `yaml:"original_price"` // struck-through price, optional
	Image         string `yaml:"image"`          // primary image element
}

// BrowserConfig tunes the Rod-based adapter.
type BrowserConfig struct {
	// Remote is a DevTools websocket URL of an already-running Chrome.
	// Empty launches a local browser via Rod's default launcher.
	Remote string `yaml:"remote"`
	// Stealth applies the stealth evasions to every page.
	Stealth bool `yaml:"stealth"`
	// NavTimeout bounds each navigation. Default: 30s.
	NavTimeout Duration `yaml:"nav_timeout"`
	// MaxProducts caps detail pages visited per run. Default: 200.
	MaxProducts int `yaml:"max_products"`
	// ScrollPasses is how many times listing pages are scrolled to trigger
	// lazy loading. Default: 8.
	ScrollPasses int `yaml:"scroll_passes"`
}

func (c *BrowserConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = Duration(30 * time.Second)
	}
	if c.MaxProducts <= 0 {
		c.MaxProducts = 200
	}
	if c.ScrollPasses <= 0 {
		c.ScrollPasses = 8
	}
}

// Browser is an Adapter that drives a headless Chrome through Rod.
// One Browser is constructed per retailer, carrying that retailer's
// selectors.
type Browser struct {
	cfg    BrowserConfig
	sel    Selectors
	logger *slog.Logger
}

// NewBrowser creates a Browser adapter.
func NewBrowser(cfg BrowserConfig, sel Selectors, logger *slog.Logger) *Browser {
	cfg.defaults()
	if sel.Link == "" {
		sel.Link = "a"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{cfg: cfg, sel: sel, logger: logger}
}

// Crawl visits each start URL, collects product links, then extracts one
// RawRecord per detail page. Individual page failures are logged and
// skipped; only browser-level failures abort the crawl.
func (b *Browser) Crawl(ctx context.Context, retailer string, startURLs []string) ([]RawRecord, error) {
	browser := rod.New().Context(ctx)
	if b.cfg.Remote != "" {
		browser = browser.ControlURL(b.cfg.Remote)
	}
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("adapter: connect browser: %w", err)
	}
	defer browser.Close()

	var records []RawRecord
	for _, startURL := range startURLs {
		links, err := b.collectLinks(ctx, browser, startURL)
		if err != nil {
			b.logger.Warn("adapter: listing page failed", "retailer", retailer, "url", startURL, "error", err)
			continue
		}
		for _, link := range links {
			if len(records) >= b.cfg.MaxProducts {
				return records, nil
			}
			rec, err := b.extractDetail(ctx, browser, link)
			if err != nil {
				b.logger.Warn("adapter: detail page failed", "retailer", retailer, "url", link, "error", err)
				continue
			}
			rec["saleUrl"] = startURL
			records = append(records, rec)
		}
	}
	return records, nil
}

func (b *Browser) openPage(ctx context.Context, browser *rod.Browser, pageURL string) (*rod.Page, error) {
	var page *rod.Page
	var err error
	if b.cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, time.Duration(b.cfg.NavTimeout))
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("adapter: wait load timeout", "url", pageURL, "error", err)
	}
	return page, nil
}

// collectLinks scrolls a listing page and gathers deduplicated detail links.
func (b *Browser) collectLinks(ctx context.Context, browser *rod.Browser, startURL string) ([]string, error) {
	page, err := b.openPage(ctx, browser, startURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	for pass := 0; pass < b.cfg.ScrollPasses; pass++ {
		if _, err := page.Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
			break
		}
		time.Sleep(700 * time.Millisecond)
	}

	res, err := page.Eval(`(card, link) => {
		const out = [];
		for (const c of document.querySelectorAll(card)) {
			const a = c.querySelector(link);
			if (a && a.href) out.push(a.href);
		}
		return out;
	}`, b.sel.Card, b.sel.Link)
	if err != nil {
		return nil, fmt.Errorf("collect links: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	for _, v := range res.Value.Arr() {
		href := v.Str()
		if href == "" {
			continue
		}
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}
		links = append(links, href)
	}
	return links, nil
}

// extractDetail pulls the selector-addressed fields from one detail page.
func (b *Browser) extractDetail(ctx context.Context, browser *rod.Browser, pageURL string) (RawRecord, error) {
	page, err := b.openPage(ctx, browser, pageURL)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	res, err := page.Eval(`(titleSel, priceSel, origSel, imageSel) => {
		const clean = (t) => (t || "").replace(/\s+/g, " ").trim();
		const text = (sel) => {
			if (!sel) return "";
			const el = document.querySelector(sel);
			return el ? clean(el.textContent) : "";
		};
		const imgSrc = (sel) => {
			if (!sel) return "";
			const el = document.querySelector(sel);
			if (!el) return "";
			return el.src || el.getAttribute("data-src") || "";
		};
		const images = Array.from(document.querySelectorAll("img[src]"))
			.map((i) => i.src)
			.filter((s) => s && !s.endsWith(".svg"))
			.slice(0, 12);
		return {
			title: text(titleSel) || clean(document.title),
			price: text(priceSel),
			originalPrice: text(origSel),
			image: imgSrc(imageSel) || images[0] || "",
			images: images,
			productUrl: location.href,
		};
	}`, b.sel.Title, b.sel.Price, b.sel.OriginalPrice, b.sel.Image)
	if err != nil {
		return nil, fmt.Errorf("extract detail: %w", err)
	}

	v := res.Value
	rec := RawRecord{
		"title":      v.Get("title").Str(),
		"price":      v.Get("price").Str(),
		"image":      v.Get("image").Str(),
		"productUrl": v.Get("productUrl").Str(),
	}
	if s := v.Get("originalPrice").Str(); s != "" {
		rec["originalPrice"] = s
	}
	var images []string
	for _, img := range v.Get("images").Arr() {
		if s := img.Str(); s != "" {
			images = append(images, s)
		}
	}
	rec["images"] = images
	return rec, nil
}
