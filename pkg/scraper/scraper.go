// Package scraper drives a headless browser against the store catalog to
// discover candidate product images for an identifier, then downloads and
// validates them.
package scraper

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/browser"
	"github.com/shelfshot/shelfshot/pkg/catalog"
)

// genericProductLinkSelectors locate the first product link on a search
// results page when the store's own link selector misses.
var genericProductLinkSelectors = []string{
	"a[href*='/product/']",
	"a[href*='/p/']",
	"a[href*='/ip/']",
	"a[href*='/pd/']",
	"a[href*='/dp/']",
	"a[href*='/itm/']",
}

// SiteScraper scrapes one store for one identifier.
type SiteScraper struct {
	config *Config
	logger *logrus.Logger
}

// NewSiteScraper creates a new SiteScraper
func NewSiteScraper(config *Config) (*SiteScraper, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &SiteScraper{config: config, logger: config.Logger}, nil
}

// Scrape loads the store's search page for the identifier, follows the first
// product link when needed, and returns up to MaxURLsPerStore candidate
// image URLs. Navigation timeouts and selector misses return zero URLs and a
// nil error; only genuine failures surface as errors.
func (s *SiteScraper) Scrape(ctx context.Context, session *browser.Session, store catalog.StoreConfig, identifier string, hints RelevanceHints) ([]string, error) {
	log := s.logger.WithFields(logrus.Fields{
		"store":      store.Name,
		"identifier": identifier,
	})

	tabCtx, closeTab := session.NewTab()
	defer closeTab()

	navCtx, cancel := context.WithTimeout(tabCtx, s.config.NavigationTimeout)
	defer cancel()

	searchURL := store.SearchURL(identifier)
	html, err := s.loadPage(navCtx, searchURL)
	if err != nil {
		if isNavigationTimeout(err) {
			log.WithError(err).Debug("Search page navigation timed out")
			return nil, nil
		}
		return nil, fmt.Errorf("%s: search navigation: %w", store.Name, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%s: parse search page: %w", store.Name, err)
	}

	currentURL := searchURL

	// A visible "no results" marker means the search found nothing under the
	// store's own template; a generic product link is the last chance.
	// Otherwise, if the page isn't already a product page, follow the store's
	// product link selector to reach one.
	if store.NoResultsSelector != "" && doc.Find(store.NoResultsSelector).Length() > 0 {
		log.Debug("Store reported no results, trying generic product link")
		doc, currentURL, err = s.followProductLink(navCtx, doc, store, genericProductLinkSelectors)
		if err != nil || doc == nil {
			return nil, nil
		}
	} else if store.ProductFoundSelector != "" && doc.Find(store.ProductFoundSelector).Length() == 0 {
		selectors := []string{store.ProductLinkSelector}
		selectors = append(selectors, genericProductLinkSelectors...)
		doc, currentURL, err = s.followProductLink(navCtx, doc, store, selectors)
		if err != nil || doc == nil {
			// The search page itself may still be a direct product page
			// under a template variant; fall through with the original doc.
			doc, _ = goquery.NewDocumentFromReader(strings.NewReader(html))
			currentURL = searchURL
		}
	}

	if !IsRelevantProductPage(doc, identifier, hints) {
		log.WithField("category", MatchCategory(doc)).Debug("Relevance check rejected page")
		return nil, nil
	}

	raw := extractImageURLs(doc, store.ProductImageSelector)
	urls := FilterURLs(raw, store.BaseURL, store.ImageURLFilter, s.config.MaxURLsPerStore)

	log.WithFields(logrus.Fields{
		"page":       currentURL,
		"raw_count":  len(raw),
		"kept_count": len(urls),
	}).Debug("Store scrape finished")

	return urls, nil
}

// followProductLink finds the first usable product link in the document and
// navigates to it. Returns a nil document when no link works out.
func (s *SiteScraper) followProductLink(ctx context.Context, doc *goquery.Document, store catalog.StoreConfig, selectors []string) (*goquery.Document, string, error) {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		href, ok := doc.Find(sel).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			continue
		}

		target := href
		if strings.HasPrefix(target, "/") {
			target = strings.TrimRight(store.BaseURL, "/") + target
		}
		if !strings.HasPrefix(target, "http") {
			continue
		}

		html, err := s.loadPage(ctx, target)
		if err != nil {
			if isNavigationTimeout(err) {
				return nil, "", nil
			}
			return nil, "", err
		}
		productDoc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil, "", err
		}
		return productDoc, target, nil
	}
	return nil, "", nil
}

// loadPage navigates the tab and snapshots the rendered DOM. The settle
// delay lets lazy-loaded galleries populate before the snapshot.
func (s *SiteScraper) loadPage(ctx context.Context, url string) (string, error) {
	var html string
	err := chromedp.Run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "en-US,en;q=0.9",
		}),
		chromedp.Navigate(url),
		chromedp.Sleep(s.config.SettleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

func isNavigationTimeout(err error) bool {
	return err == context.DeadlineExceeded ||
		strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "net::ERR_TIMED_OUT")
}
