package scraper

import (
	"regexp"
	"strings"
)

// denySubstrings marks URLs that are never product photography: chrome,
// badges, icons, pixels.
var denySubstrings = []string{
	"logo", "sprite", "icon", "favicon", "placeholder", "spinner",
	"loading", "pixel", "tracking", "beacon", "badge", "payment",
	"visa", "mastercard", "paypal", "amex", "facebook", "twitter",
	"instagram", "youtube", "pinterest", "social", "avatar", "banner",
	"flag", "arrow", "star-rating", "rating-star", "play-button",
	"video-thumb", "1x1", "blank.", "spacer", "transparent",
}

// thumbnailUpgrades rewrites known thumbnail URL shapes to their
// larger-variant equivalents. Applied in order; first match wins per rule.
var thumbnailUpgrades = []struct {
	pattern *regexp.Regexp
	replace string
}{
	// Amazon: ..._SX300_.jpg / ._AC_UL320_. style size tokens
	{regexp.MustCompile(`\._[A-Z]{2}\d+_\.`), "._AC_SL1500_."},
	{regexp.MustCompile(`\._AC_[A-Z]{2}\d+_\.`), "._AC_SL1500_."},
	// Walmart: ?odnHeight=180&odnWidth=180
	{regexp.MustCompile(`odnHeight=\d+`), "odnHeight=1500"},
	{regexp.MustCompile(`odnWidth=\d+`), "odnWidth=1500"},
	// Scene7 (Target, others): ?wid=300&hei=300
	{regexp.MustCompile(`wid=\d+`), "wid=1500"},
	{regexp.MustCompile(`hei=\d+`), "hei=1500"},
	// eBay: s-l300.jpg
	{regexp.MustCompile(`s-l\d+\.`), "s-l1600."},
	// Wayfair: resize-h300-w300
	{regexp.MustCompile(`resize-h\d+-w\d+`), "resize-h1600-w1600"},
}

// NormalizeURL makes a discovered image URL absolute and upgrades known
// thumbnail patterns to their full-size variants. Returns "" for URLs that
// cannot be product images.
func NormalizeURL(raw, baseURL string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}

	// data: URIs and obvious non-http schemes are useless downstream.
	if strings.HasPrefix(u, "data:") || strings.HasPrefix(u, "javascript:") {
		return ""
	}

	switch {
	case strings.HasPrefix(u, "//"):
		u = "https:" + u
	case strings.HasPrefix(u, "/"):
		u = strings.TrimRight(baseURL, "/") + u
	case !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://"):
		return ""
	}

	for _, up := range thumbnailUpgrades {
		u = up.pattern.ReplaceAllString(u, up.replace)
	}

	return u
}

// IsDenied reports whether the URL matches the non-product deny list.
func IsDenied(u string) bool {
	lower := strings.ToLower(u)
	for _, s := range denySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// FilterURLs normalizes, deny-filters, applies the store's URL filter, and
// deduplicates while preserving discovery order.
func FilterURLs(raw []string, baseURL, storeFilter string, cap int) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, r := range raw {
		u := NormalizeURL(r, baseURL)
		if u == "" || IsDenied(u) {
			continue
		}
		if storeFilter != "" && !strings.Contains(u, storeFilter) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
		if cap > 0 && len(out) >= cap {
			break
		}
	}
	return out
}
