package scraper

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"sync"

	// Decoders for dimension validation of downloaded candidates.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shelfshot/shelfshot/pkg/browser"
	"github.com/shelfshot/shelfshot/pkg/catalog"
)

// Coordinator fans the SiteScraper out across the active catalog for one
// identifier and downloads the deduplicated results.
type Coordinator struct {
	config  *Config
	catalog catalog.Catalog
	scraper *SiteScraper
	client  *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(config *Config, cat catalog.Catalog, scraper *SiteScraper) (*Coordinator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if scraper == nil {
		return nil, fmt.Errorf("site scraper is required")
	}

	return &Coordinator{
		config:  config,
		catalog: cat,
		scraper: scraper,
		client:  &http.Client{Timeout: config.DownloadTimeout},
		limiter: rate.NewLimiter(rate.Limit(config.DownloadRatePerS), 2),
		logger:  config.Logger,
	}, nil
}

// CollectOptions tunes one identifier's collection run.
type CollectOptions struct {
	Hints RelevanceHints
	// ExtraURLs are candidate image or product URLs seeded by the
	// product-identification service.
	ExtraURLs []string
	// LowFloor relaxes the download floor for compressed output mode.
	LowFloor bool
}

// Collect scrapes all active stores in fixed-size batches, deduplicates, and
// downloads each unique URL once. Store errors come back as labeled strings
// and never fail the identifier.
func (c *Coordinator) Collect(ctx context.Context, session *browser.Session, identifier string, opts CollectOptions) ([]Candidate, []string) {
	stores := c.catalog.Active()

	log := c.logger.WithField("identifier", identifier)
	log.WithField("store_count", len(stores)).Debug("Starting store fan-out")

	var mu sync.Mutex
	var results []StoreResult

	// Fixed-size batches: batch N+1 never starts before batch N settles.
	// Caps simultaneous tabs and their memory.
	for start := 0; start < len(stores); start += c.config.StoreBatchSize {
		if ctx.Err() != nil {
			break
		}

		end := start + c.config.StoreBatchSize
		if end > len(stores) {
			end = len(stores)
		}

		g, gCtx := errgroup.WithContext(ctx)
		for _, store := range stores[start:end] {
			currentStore := store
			g.Go(func() error {
				urls, err := c.scraper.Scrape(gCtx, session, currentStore, identifier, opts.Hints)
				res := StoreResult{Store: currentStore.Name, URLs: urls}
				if err != nil {
					res.Err = fmt.Sprintf("%s: %v", currentStore.Name, err)
				}
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	var urls []string
	var storeByURL = make(map[string]string)
	var errs []string
	for _, res := range results {
		if res.Err != "" {
			errs = append(errs, res.Err)
		}
		for _, u := range res.URLs {
			urls = append(urls, u)
			if _, ok := storeByURL[u]; !ok {
				storeByURL[u] = res.Store
			}
		}
	}
	for _, u := range opts.ExtraURLs {
		if n := NormalizeURL(u, ""); n != "" && !IsDenied(n) {
			urls = append(urls, n)
			if _, ok := storeByURL[n]; !ok {
				storeByURL[n] = "identified"
			}
		}
	}

	unique := dedupe(urls)
	if len(unique) > c.config.MaxCandidates {
		unique = unique[:c.config.MaxCandidates]
	}

	candidates := c.downloadAll(ctx, unique, storeByURL, opts.LowFloor)

	log.WithFields(logrus.Fields{
		"urls_found":  len(urls),
		"urls_unique": len(unique),
		"downloaded":  len(candidates),
		"store_errs":  len(errs),
	}).Info("Candidate collection finished")

	return candidates, errs
}

// downloadAll fetches each unique URL once, stopping after DownloadsPerItem
// successful fetches. The returned buffers are shared by scoring and
// refinement; a URL is never downloaded twice.
func (c *Coordinator) downloadAll(ctx context.Context, urls []string, storeByURL map[string]string, lowFloor bool) []Candidate {
	minKB, minW, minH := c.config.MinDownloadKB, c.config.MinImageWidth, c.config.MinImageHeight
	if lowFloor {
		minKB, minW, minH = c.config.CompressedFloor()
	}

	var mu sync.Mutex
	var candidates []Candidate

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.StoreBatchSize)

	for _, u := range urls {
		currentURL := u
		g.Go(func() error {
			mu.Lock()
			full := len(candidates) >= c.config.DownloadsPerItem
			mu.Unlock()
			if full {
				return nil
			}

			cand, err := c.download(gCtx, currentURL, minKB, minW, minH)
			if err != nil {
				c.logger.WithError(err).WithField("url", currentURL).Debug("Candidate download discarded")
				return nil
			}
			cand.Store = storeByURL[currentURL]
			mu.Lock()
			if len(candidates) < c.config.DownloadsPerItem {
				candidates = append(candidates, *cand)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return candidates
}

func (c *Coordinator) download(ctx context.Context, url string, minKB, minW, minH int) (*Candidate, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("not an image: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 25<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	sizeKB := len(data) / 1024
	if sizeKB < minKB {
		return nil, fmt.Errorf("below size floor: %d KB", sizeKB)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("undecodable image: %w", err)
	}
	if cfg.Width < minW || cfg.Height < minH {
		return nil, fmt.Errorf("below dimension floor: %dx%d", cfg.Width, cfg.Height)
	}

	return &Candidate{
		SourceURL: url,
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
		SizeKB:    sizeKB,
	}, nil
}

// dedupe removes repeated URLs preserving first-seen order.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	var out []string
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
