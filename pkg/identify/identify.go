// Package identify asks a web-search-backed LLM what product an identifier
// refers to. The answer seeds scraping with relevance keywords and extra
// candidate URLs; every failure degrades to "no hints" because the pipeline
// never depends on it.
package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/llm"
)

const identifyPrompt = `You are a product catalog lookup service. Given the product identifier below (a SKU, UPC, or EAN), respond with ONLY a JSON object in this exact shape, no prose:

{"name": "...", "brand": "...", "description": "...", "keywords": ["..."], "urls": ["..."]}

"urls" should list up to 3 retailer product-page URLs likely to show this exact product. Use empty strings/arrays for anything you cannot determine.

Identifier: %s`

// Product is the best-guess identification for one identifier.
type Product struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	URLs        []string `json:"urls"`
}

// Identifier resolves product identifiers through an LLM.
type Identifier struct {
	llm     llm.LLM
	timeout time.Duration
	logger  *logrus.Logger
}

// NewIdentifier creates a new Identifier. A nil model disables
// identification entirely; Lookup then always returns nil.
func NewIdentifier(model llm.LLM, logger *logrus.Logger) *Identifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Identifier{
		llm:     model,
		timeout: 20 * time.Second,
		logger:  logger,
	}
}

// Lookup returns the identified product, or nil when identification is
// unavailable or fails. Never returns an error to the caller.
func (i *Identifier) Lookup(ctx context.Context, identifier string) *Product {
	if i.llm == nil {
		return nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	completion, err := i.llm.Generate(lookupCtx, fmt.Sprintf(identifyPrompt, identifier),
		llm.WithTemperature(0.2),
		llm.WithMaxTokens(400),
	)
	if err != nil {
		i.logger.WithError(err).WithField("identifier", identifier).Debug("Product identification failed")
		return nil
	}

	product := parseProduct(completion)
	if product == nil {
		i.logger.WithField("identifier", identifier).Debug("Product identification returned unparseable output")
		return nil
	}

	i.logger.WithFields(logrus.Fields{
		"identifier": identifier,
		"name":       product.Name,
		"brand":      product.Brand,
		"url_count":  len(product.URLs),
	}).Debug("Product identified")
	return product
}

// parseProduct leniently extracts the JSON object from a completion that may
// be wrapped in code fences or prose.
func parseProduct(completion string) *Product {
	s := strings.TrimSpace(completion)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil
	}

	var product Product
	if err := json.Unmarshal([]byte(s[start:end+1]), &product); err != nil {
		return nil
	}
	if product.Name == "" && product.Brand == "" && len(product.URLs) == 0 {
		return nil
	}
	return &product
}
