package jobs

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/browser"
	"github.com/shelfshot/shelfshot/pkg/db/models"
	"github.com/shelfshot/shelfshot/pkg/identify"
	"github.com/shelfshot/shelfshot/pkg/orders"
	"github.com/shelfshot/shelfshot/pkg/refine"
	"github.com/shelfshot/shelfshot/pkg/scraper"
	"github.com/shelfshot/shelfshot/pkg/storage"
)

// Config holds orchestrator settings
type Config struct {
	// HardTimeout is the wall-clock budget for one whole job. When it fires
	// the order is force-failed and refunded; in-flight work is not
	// interrupted but its results are discarded.
	HardTimeout time.Duration
	Mode        refine.Mode
	Logger      *logrus.Logger
}

// NewConfig creates an orchestrator Config from environment variables.
func NewConfig(logger *logrus.Logger) (*Config, error) {
	timeoutSec, _ := strconv.Atoi(getEnvOrDefault("JOB_HARD_TIMEOUT_SECONDS", "300"))

	mode := refine.ModeStudio
	if os.Getenv("PIPELINE_OUTPUT_MODE") == string(refine.ModeCompressed) {
		mode = refine.ModeCompressed
	}

	cfg := &Config{
		HardTimeout: time.Duration(timeoutSec) * time.Second,
		Mode:        mode,
		Logger:      logger,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings and applies defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = 5 * time.Minute
	}
	if c.Mode == "" {
		c.Mode = refine.ModeStudio
	}
	return nil
}

// Orchestrator runs scrape jobs end to end.
type Orchestrator struct {
	config     *Config
	store      OrderStore
	browsers   BrowserFactory
	collector  Collector
	selector   Selector
	refiner    ImageRefiner
	identifier ProductIdentifier
	objects    storage.ObjectStorage
	logger     *logrus.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(config *Config, store OrderStore, browsers BrowserFactory, collector Collector, selector Selector, refiner ImageRefiner, identifier ProductIdentifier, objects storage.ObjectStorage) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if collector == nil || selector == nil {
		return nil, fmt.Errorf("collector and selector are required")
	}
	if objects == nil {
		return nil, fmt.Errorf("object storage is required")
	}

	return &Orchestrator{
		config:     config,
		store:      store,
		browsers:   browsers,
		collector:  collector,
		selector:   selector,
		refiner:    refiner,
		identifier: identifier,
		objects:    objects,
		logger:     config.Logger,
	}, nil
}

// jobState is shared between the pipeline goroutine and the timeout path.
type jobState struct {
	timedOut atomic.Bool
}

// RunScrapeJob processes every non-skipped item of the order sequentially
// and returns the job summary. The hard timer races natural completion: on
// expiry the order is force-failed, refunded, and any late pipeline results
// are discarded by the terminal-status guard.
func (o *Orchestrator) RunScrapeJob(ctx context.Context, orderID string, onProgress ProgressFunc) (*JobSummary, error) {
	log := o.logger.WithField("order_id", orderID)

	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	state := &jobState{}
	done := make(chan *JobSummary, 1)

	go func() {
		done <- o.runPipeline(ctx, order, state, onProgress)
	}()

	select {
	case summary := <-done:
		return summary, nil

	case <-time.After(o.config.HardTimeout):
		state.timedOut.Store(true)
		log.WithField("timeout", o.config.HardTimeout.String()).Error("Job exceeded hard timeout, force-failing order")

		// Writes below race the pipeline goroutine; the terminal-status
		// guard in FinalizeOrder means whichever side loses becomes a no-op.
		_ = o.store.FailNonTerminalItems(ctx, orderID, "job timed out")
		if err := o.store.FinalizeOrder(ctx, orderID, models.OrderFailed, ""); err == nil {
			o.refund(ctx, orderID, log)
		}

		return &JobSummary{OrderID: orderID, TimedOut: true}, fmt.Errorf("job %s timed out after %s", orderID, o.config.HardTimeout)
	}
}

// RetryScrapeJob reopens a settled order and runs it again. Only pending,
// processing, and failed items re-enter the pipeline; completed and skipped
// items keep their delivered state and no new item rows are created.
func (o *Orchestrator) RetryScrapeJob(ctx context.Context, orderID string, onProgress ProgressFunc) (*JobSummary, error) {
	if err := o.store.ResetItemsForRetry(ctx, orderID); err != nil {
		return nil, fmt.Errorf("failed to reset order %s for retry: %w", orderID, err)
	}
	o.logger.WithField("order_id", orderID).Info("Order reset, retrying")
	return o.RunScrapeJob(ctx, orderID, onProgress)
}

// runPipeline is the sequential per-identifier loop. Panics anywhere inside
// are caught at this level: all non-terminal items are failed with the panic
// text, the order fails, and the refund is issued.
func (o *Orchestrator) runPipeline(ctx context.Context, order *models.ScrapeOrder, state *jobState, onProgress ProgressFunc) (summary *JobSummary) {
	log := o.logger.WithField("order_id", order.ID)
	summary = &JobSummary{OrderID: order.ID}

	defer func() {
		if r := recover(); r != nil {
			errText := fmt.Sprintf("pipeline panic: %v", r)
			log.WithField("panic", r).Error("Pipeline crashed, failing order")
			_ = o.store.FailNonTerminalItems(ctx, order.ID, errText)
			if err := o.store.FinalizeOrder(ctx, order.ID, models.OrderFailed, ""); err == nil {
				o.refund(ctx, order.ID, log)
			}
			summary.FailedCount = len(order.Items)
		}
	}()

	var session *browser.Session
	if o.browsers != nil {
		s, err := o.browsers.NewSession(ctx)
		if err != nil {
			log.WithError(err).Error("Browser launch failed, failing order")
			_ = o.store.FailNonTerminalItems(ctx, order.ID, "browser launch failed")
			if ferr := o.store.FinalizeOrder(ctx, order.ID, models.OrderFailed, ""); ferr == nil {
				o.refund(ctx, order.ID, log)
			}
			summary.FailedCount = len(order.Items)
			return summary
		}
		session = s
		// One browser process per job, always reaped, success or failure.
		defer s.Close()
	}

	var attempted, failed, totalImages int
	var archive []storage.ArchiveEntry

	for _, item := range order.Items {
		if item.Status == models.ItemSkipped {
			continue
		}
		if item.Status == models.ItemCompleted {
			// Already delivered on a previous run; keeps counting toward
			// the terminal status and the order counters, which a retry
			// reset back to zero.
			attempted++
			totalImages += item.ImagesFound
			if !state.timedOut.Load() {
				_ = o.store.RecordItemProgress(ctx, order.ID, item.ImagesFound)
			}
			continue
		}
		attempted++

		result := o.processItem(ctx, session, order, &item, state)
		summary.Results = append(summary.Results, result.ItemResult)
		totalImages += result.ImagesFound
		if result.Status == models.ItemFailed {
			failed++
		}
		archive = append(archive, result.archive...)

		if !state.timedOut.Load() {
			_ = o.store.RecordItemProgress(ctx, order.ID, result.ImagesFound)
		}

		summary.ProcessedCount++
		if onProgress != nil {
			onProgress(summary.ProcessedCount, len(order.Items), item.Identifier, result.ImagesFound)
		}
	}

	summary.TotalImages = totalImages
	summary.FailedCount = failed

	if state.timedOut.Load() {
		log.Warn("Pipeline finished after timeout, results discarded")
		return summary
	}

	status := ComputeOrderStatus(totalImages, failed, attempted)

	var artifactURL string
	if status != models.OrderFailed && len(archive) > 0 {
		url, err := storage.PackageOrder(ctx, o.objects, order.ID, archive)
		if err != nil {
			log.WithError(err).Warn("Artifact packaging failed")
		} else {
			artifactURL = url
		}
	}
	summary.ArtifactURL = artifactURL

	if err := o.store.FinalizeOrder(ctx, order.ID, status, artifactURL); err != nil {
		// Late finish after a timeout force-fail lands here; nothing to do.
		log.WithError(err).Warn("Order was already finalized, discarding result")
		return summary
	}

	if status == models.OrderFailed {
		o.refund(ctx, order.ID, log)
	}

	log.WithFields(logrus.Fields{
		"status":       string(status),
		"total_images": totalImages,
		"failed_items": failed,
		"attempted":    attempted,
	}).Info("Job finished")

	return summary
}

// itemOutcome bundles an item's result with its archive contributions.
type itemOutcome struct {
	ItemResult
	archive []storage.ArchiveEntry
}

// processItem runs collect -> select -> refine -> persist for one
// identifier. Every failure is contained: the item fails, the job continues.
func (o *Orchestrator) processItem(ctx context.Context, session *browser.Session, order *models.ScrapeOrder, item *models.OrderItem, state *jobState) itemOutcome {
	log := o.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"item_id":    item.ID,
		"identifier": item.Identifier,
	})

	outcome := itemOutcome{ItemResult: ItemResult{Identifier: item.Identifier}}

	_ = o.store.UpdateItemStatus(ctx, item.ID, models.ItemProcessing, 0, "")

	var product *identify.Product
	if o.identifier != nil {
		product = o.identifier.Lookup(ctx, item.Identifier)
	}

	opts := scraper.CollectOptions{LowFloor: o.config.Mode == refine.ModeCompressed}
	if product != nil {
		opts.Hints = scraper.RelevanceHints{
			ProductName: product.Name,
			Brand:       product.Brand,
			Keywords:    product.Keywords,
		}
		opts.ExtraURLs = product.URLs
	}

	candidates, storeErrs := o.collector.Collect(ctx, session, item.Identifier, opts)
	selected := o.selector.Select(candidates)

	persisted := 0
	for i := range selected {
		cand := &selected[i]

		data, width, height, contentType, upscaled := o.refineOne(ctx, cand)

		ext := "png"
		if contentType == "image/jpeg" {
			ext = "jpg"
		}
		key := fmt.Sprintf("orders/%s/%s/%d.%s", order.ID, item.ID, persisted+1, ext)

		url, err := o.objects.Put(ctx, key, data, contentType)
		if err != nil {
			log.WithError(err).WithField("url", cand.SourceURL).Warn("Image upload failed, excluding candidate")
			continue
		}

		if state.timedOut.Load() {
			// The order is already failed; do not resurrect rows for it.
			continue
		}

		_ = o.store.AddProcessedImage(ctx, &models.ProcessedImage{
			ItemID:         item.ID,
			OrderID:        order.ID,
			StorageKey:     key,
			URL:            url,
			Width:          width,
			Height:         height,
			SizeBytes:      len(data),
			SourceURL:      cand.SourceURL,
			Store:          cand.Store,
			QualityScore:   cand.QualityScore,
			WatermarkScore: cand.WatermarkScore,
			Upscaled:       upscaled,
		})

		outcome.archive = append(outcome.archive, storage.ArchiveEntry{
			Identifier: item.Identifier,
			Filename:   fmt.Sprintf("%d.%s", persisted+1, ext),
			Data:       data,
		})
		persisted++
	}

	outcome.ImagesFound = persisted

	if persisted > 0 {
		outcome.Status = models.ItemCompleted
	} else {
		outcome.Status = models.ItemFailed
		if len(storeErrs) > 0 {
			outcome.Error = strings.Join(storeErrs, "; ")
		} else {
			outcome.Error = "no qualifying images found"
		}
	}

	if !state.timedOut.Load() {
		_ = o.store.UpdateItemStatus(ctx, item.ID, outcome.Status, persisted, outcome.Error)
	}

	log.WithFields(logrus.Fields{
		"status":       string(outcome.Status),
		"images_found": persisted,
		"candidates":   len(candidates),
	}).Info("Item processed")

	return outcome
}

// refineOne applies the refinement stage, falling back to the raw candidate
// bytes when the stage reports unrecoverable failure.
func (o *Orchestrator) refineOne(ctx context.Context, cand *scraper.Candidate) (data []byte, width, height int, contentType string, upscaled bool) {
	if o.refiner != nil {
		if result := o.refiner.Refine(ctx, cand, o.config.Mode); result != nil {
			return result.Data, result.Width, result.Height, result.ContentType, result.Upscaled
		}
	}
	return cand.Data, cand.Width, cand.Height, "image/jpeg", false
}

// refund issues the idempotent refund; a second attempt is success.
func (o *Orchestrator) refund(ctx context.Context, orderID string, log *logrus.Entry) {
	if err := o.store.RefundOrder(ctx, orderID); err != nil && err != orders.ErrAlreadyRefunded {
		log.WithError(err).Error("CRITICAL: refund failed for failed order")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
