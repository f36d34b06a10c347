package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// categoryKeywords maps a product domain to terms that commonly appear in
// page titles, headings, and breadcrumbs for that domain. Numeric identifier
// collisions (a UPC matching an unrelated electronics part number, say) are
// the main false-positive source this check exists to catch.
var categoryKeywords = map[string][]string{
	"electronics": {"laptop", "monitor", "keyboard", "router", "adapter", "charger", "cable", "hdmi", "usb", "ssd", "processor", "motherboard", "graphics card"},
	"automotive":  {"brake", "rotor", "alternator", "spark plug", "tailgate", "bumper", "headlight", "oem part"},
	"grocery":     {"oz", "pack of", "count", "flavor", "snack", "cereal", "beverage", "organic"},
	"apparel":     {"shirt", "jacket", "sneaker", "mens", "womens", "size chart", "fit"},
	"home":        {"furniture", "decor", "cookware", "bedding", "lighting", "rug", "shelf"},
	"toys":        {"toy", "lego", "playset", "action figure", "board game", "puzzle"},
	"beauty":      {"shampoo", "moisturizer", "serum", "fragrance", "makeup", "lotion"},
}

// RelevanceHints carries optional context from the product-identification
// service. An empty value disables hint matching.
type RelevanceHints struct {
	ProductName string
	Brand       string
	Keywords    []string
}

// pageHeadingText collects the text a shopper would use to recognize the
// product: title, h1, and breadcrumb trail.
func pageHeadingText(doc *goquery.Document) string {
	var parts []string
	parts = append(parts, doc.Find("title").First().Text())
	doc.Find("h1").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	doc.Find("nav[aria-label='breadcrumb'] a, .breadcrumb a, ol.breadcrumb li, ul.breadcrumbs li").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.Text())
	})
	return strings.ToLower(strings.Join(parts, " "))
}

// IsRelevantProductPage applies a lightweight text check against the loaded
// page. With hints available it requires a name/brand/keyword hit; without
// hints it only rejects pages whose headings suggest a different category
// than the identifier's digits alone could confirm.
func IsRelevantProductPage(doc *goquery.Document, identifier string, hints RelevanceHints) bool {
	heading := pageHeadingText(doc)
	if heading == "" {
		// No heading text at all is suspicious but not disqualifying; the
		// scorer still gates downstream.
		return true
	}

	// A literal identifier hit is the strongest possible signal.
	if strings.Contains(heading, strings.ToLower(identifier)) {
		return true
	}

	if hints.ProductName != "" || hints.Brand != "" || len(hints.Keywords) > 0 {
		for _, term := range hintTerms(hints) {
			if len(term) >= 3 && strings.Contains(heading, term) {
				return true
			}
		}
		// Hints exist but nothing matched: category collision.
		return false
	}

	// Without hints, accept unless the page looks like a search/category
	// landing rather than a product page.
	for _, marker := range []string{"search results", "no results", "did you mean", "page not found", "404"} {
		if strings.Contains(heading, marker) {
			return false
		}
	}
	return true
}

func hintTerms(hints RelevanceHints) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(hints.ProductName)) {
		terms = append(terms, w)
	}
	if hints.Brand != "" {
		terms = append(terms, strings.ToLower(hints.Brand))
	}
	for _, k := range hints.Keywords {
		terms = append(terms, strings.ToLower(k))
	}
	return terms
}

// MatchCategory returns the category whose keywords best match the heading
// text, for diagnostics.
func MatchCategory(doc *goquery.Document) string {
	heading := pageHeadingText(doc)
	best, bestHits := "", 0
	for cat, words := range categoryKeywords {
		hits := 0
		for _, w := range words {
			if strings.Contains(heading, w) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = cat, hits
		}
	}
	return best
}
