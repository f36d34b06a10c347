// Package catalog holds the static scraping recipes for the curated list of
// retailer sites. Pure data, read-only at run time.
package catalog

import (
	"fmt"
	"net/url"
	"strings"
)

// StoreConfig is an immutable per-store scraping recipe.
type StoreConfig struct {
	Name    string
	BaseURL string

	// SearchURLTemplate contains a %s placeholder for the URL-escaped identifier.
	SearchURLTemplate string

	// Extraction selectors
	ProductLinkSelector  string
	ProductImageSelector string
	NoResultsSelector    string
	ProductFoundSelector string

	// ImageURLFilter, when non-empty, is a substring every candidate image URL
	// must contain (typically the store's CDN host).
	ImageURLFilter string

	MinImageWidth  int
	MinImageHeight int
	Active         bool
}

// SearchURL builds the search URL for the given identifier.
func (s StoreConfig) SearchURL(identifier string) string {
	return fmt.Sprintf(s.SearchURLTemplate, url.QueryEscape(strings.TrimSpace(identifier)))
}

// Catalog is an ordered collection of store recipes.
type Catalog []StoreConfig

// Active returns the stores currently enabled for scraping, in catalog order.
func (c Catalog) Active() []StoreConfig {
	var active []StoreConfig
	for _, s := range c {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}

// ByName returns the store with the given name, if present.
func (c Catalog) ByName(name string) (StoreConfig, bool) {
	for _, s := range c {
		if s.Name == name {
			return s, true
		}
	}
	return StoreConfig{}, false
}
