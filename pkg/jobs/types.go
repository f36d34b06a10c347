// Package jobs owns the order state machine: it drives the per-identifier
// pipeline, enforces the job-wide timeout, computes terminal status, and
// issues refunds. The stuck-order sweeper lives here too.
package jobs

import (
	"context"
	"time"

	"github.com/shelfshot/shelfshot/pkg/browser"
	"github.com/shelfshot/shelfshot/pkg/db/models"
	"github.com/shelfshot/shelfshot/pkg/identify"
	"github.com/shelfshot/shelfshot/pkg/refine"
	"github.com/shelfshot/shelfshot/pkg/scraper"
)

// OrderStore is the persistence surface the orchestrator and sweeper need.
type OrderStore interface {
	GetOrder(ctx context.Context, orderID string) (*models.ScrapeOrder, error)
	UpdateItemStatus(ctx context.Context, itemID string, status models.ItemStatus, imagesFound int, errMsg string) error
	RecordItemProgress(ctx context.Context, orderID string, imagesFound int) error
	FinalizeOrder(ctx context.Context, orderID string, status models.OrderStatus, artifactURL string) error
	FailNonTerminalItems(ctx context.Context, orderID, reason string) error
	RefundOrder(ctx context.Context, orderID string) error
	AddProcessedImage(ctx context.Context, img *models.ProcessedImage) error
	ListStuckOrders(ctx context.Context, olderThan time.Duration) ([]models.ScrapeOrder, error)
	ResetItemsForRetry(ctx context.Context, orderID string) error
}

// Collector gathers downloaded candidates for one identifier.
type Collector interface {
	Collect(ctx context.Context, session *browser.Session, identifier string, opts scraper.CollectOptions) ([]scraper.Candidate, []string)
}

// Selector scores candidates and returns the delivery set.
type Selector interface {
	Select(candidates []scraper.Candidate) []scraper.Candidate
}

// ImageRefiner produces the studio artifact for a selected candidate.
type ImageRefiner interface {
	Refine(ctx context.Context, cand *scraper.Candidate, mode refine.Mode) *refine.Result
}

// ProductIdentifier opportunistically resolves an identifier to product
// metadata. Implementations must degrade to nil rather than failing.
type ProductIdentifier interface {
	Lookup(ctx context.Context, identifier string) *identify.Product
}

// BrowserFactory launches the job's browser session. Injected so tests can
// run the state machine without Chrome.
type BrowserFactory interface {
	NewSession(ctx context.Context) (*browser.Session, error)
}

// ItemResult is the per-identifier outcome reported in the job summary.
type ItemResult struct {
	Identifier  string
	Status      models.ItemStatus
	ImagesFound int
	Error       string
}

// JobSummary is the return value of a whole job run.
type JobSummary struct {
	OrderID        string
	Results        []ItemResult
	TotalImages    int
	ProcessedCount int
	FailedCount    int
	ArtifactURL    string
	TimedOut       bool
}

// ProgressFunc is invoked after each identifier settles. processed increases
// monotonically up to total.
type ProgressFunc func(processed, total int, identifier string, imagesFound int)
