package scraper

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// genericImageSelectors are product-image selectors common across e-commerce
// templates, tried after the store's own selector.
var genericImageSelectors = []string{
	"meta[property='og:image']",
	"div.product-image img",
	"div.product-gallery img",
	"div[class*='gallery'] img",
	"div[class*='product-media'] img",
	"img[class*='product']",
	"img[itemprop='image']",
	"picture source[srcset]",
	"img[id*='main-image']",
	"img[id*='product-image']",
}

// minScanDimension is the rendered/natural size floor for the full-page scan.
const minScanDimension = 300

// extractImageURLs runs the three extraction strategies in order, merging
// results: (a) the store's own selector honoring srcset, (b) generic
// e-commerce selectors, (c) a full-page scan for large <img> elements.
func extractImageURLs(doc *goquery.Document, storeSelector string) []string {
	var urls []string

	if storeSelector != "" {
		doc.Find(storeSelector).Each(func(_ int, s *goquery.Selection) {
			if u := bestImageSource(s); u != "" {
				urls = append(urls, u)
			}
		})
	}

	for _, sel := range genericImageSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if goquery.NodeName(s) == "meta" {
				if content, ok := s.Attr("content"); ok {
					urls = append(urls, content)
				}
				return
			}
			if u := bestImageSource(s); u != "" {
				urls = append(urls, u)
			}
		})
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if !isLargeEnough(s) {
			return
		}
		if u := bestImageSource(s); u != "" {
			urls = append(urls, u)
		}
	})

	return urls
}

// bestImageSource picks the widest candidate from a srcset when present,
// falling back through the usual lazy-load attributes.
func bestImageSource(s *goquery.Selection) string {
	if srcset, ok := s.Attr("srcset"); ok && srcset != "" {
		if u := widestFromSrcset(srcset); u != "" {
			return u
		}
	}
	for _, attr := range []string{"data-src", "data-lazy-src", "data-old-hires", "data-zoom-image", "src"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// widestFromSrcset parses a width-annotated source set and returns the URL
// with the largest width descriptor. Entries without a width count as 0.
func widestFromSrcset(srcset string) string {
	var bestURL string
	bestWidth := -1

	for _, entry := range strings.Split(srcset, ",") {
		fields := strings.Fields(strings.TrimSpace(entry))
		if len(fields) == 0 {
			continue
		}
		width := 0
		if len(fields) > 1 {
			desc := fields[len(fields)-1]
			if strings.HasSuffix(desc, "w") {
				if n, err := strconv.Atoi(strings.TrimSuffix(desc, "w")); err == nil {
					width = n
				}
			}
		}
		if width > bestWidth {
			bestWidth = width
			bestURL = fields[0]
		}
	}
	return bestURL
}

// isLargeEnough checks rendered or natural size attributes against the scan
// floor. Images without size attributes are skipped in the full-page scan;
// the targeted selectors already cover them.
func isLargeEnough(s *goquery.Selection) bool {
	for _, attr := range []string{"width", "data-width", "naturalwidth"} {
		if v, ok := s.Attr(attr); ok {
			if n, err := strconv.Atoi(strings.TrimSuffix(v, "px")); err == nil && n >= minScanDimension {
				return true
			}
		}
	}
	for _, attr := range []string{"height", "data-height", "naturalheight"} {
		if v, ok := s.Attr(attr); ok {
			if n, err := strconv.Atoi(strings.TrimSuffix(v, "px")); err == nil && n >= minScanDimension {
				return true
			}
		}
	}
	return false
}
