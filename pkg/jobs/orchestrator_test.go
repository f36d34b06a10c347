package jobs_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/browser"
	"github.com/shelfshot/shelfshot/pkg/db/models"
	"github.com/shelfshot/shelfshot/pkg/jobs"
	"github.com/shelfshot/shelfshot/pkg/orders"
	"github.com/shelfshot/shelfshot/pkg/refine"
	"github.com/shelfshot/shelfshot/pkg/scraper"
)

// fakeStore is an in-memory OrderStore tracking every state transition.
type fakeStore struct {
	mu           sync.Mutex
	order        *models.ScrapeOrder
	finalized    bool
	finalStatus  models.OrderStatus
	artifactURL  string
	refunds      int
	refundsFail  bool
	itemStatuses map[string]models.ItemStatus
	itemErrors   map[string]string
	images       []*models.ProcessedImage
	progress     int
	progressImgs int
	stuck        []models.ScrapeOrder
}

func newFakeStore(order *models.ScrapeOrder) *fakeStore {
	f := &fakeStore{
		order:        order,
		itemStatuses: make(map[string]models.ItemStatus),
		itemErrors:   make(map[string]string),
	}
	for _, item := range order.Items {
		f.itemStatuses[item.ID] = item.Status
	}
	return f
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (*models.ScrapeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order == nil || f.order.ID != orderID {
		return nil, orders.ErrOrderNotFound
	}
	copied := *f.order
	return &copied, nil
}

func (f *fakeStore) UpdateItemStatus(ctx context.Context, itemID string, status models.ItemStatus, imagesFound int, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.itemStatuses[itemID].IsTerminal() {
		return nil
	}
	f.itemStatuses[itemID] = status
	f.itemErrors[itemID] = errMsg
	return nil
}

func (f *fakeStore) RecordItemProgress(ctx context.Context, orderID string, imagesFound int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress++
	f.progressImgs += imagesFound
	return nil
}

func (f *fakeStore) FinalizeOrder(ctx context.Context, orderID string, status models.OrderStatus, artifactURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalized {
		return orders.ErrOrderTerminal
	}
	f.finalized = true
	f.finalStatus = status
	f.artifactURL = artifactURL
	return nil
}

func (f *fakeStore) FailNonTerminalItems(ctx context.Context, orderID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.order.Items {
		if !f.itemStatuses[item.ID].IsTerminal() {
			f.itemStatuses[item.ID] = models.ItemFailed
			f.itemErrors[item.ID] = reason
		}
	}
	return nil
}

func (f *fakeStore) RefundOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds++
	if f.refundsFail || f.refunds > 1 {
		return orders.ErrAlreadyRefunded
	}
	return nil
}

func (f *fakeStore) AddProcessedImage(ctx context.Context, img *models.ProcessedImage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img)
	return nil
}

func (f *fakeStore) ListStuckOrders(ctx context.Context, olderThan time.Duration) ([]models.ScrapeOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stuck, nil
}

func (f *fakeStore) ResetItemsForRetry(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.order.Items {
		item := &f.order.Items[i]
		if item.Status == models.ItemCompleted || item.Status == models.ItemSkipped {
			continue
		}
		item.Status = models.ItemPending
		item.ImagesFound = 0
		item.ErrorMessage = ""
		f.itemStatuses[item.ID] = models.ItemPending
	}
	f.order.Status = models.OrderPending
	f.finalized = false
	f.finalStatus = ""
	return nil
}

func (f *fakeStore) snapshot() fakeStore {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeStore{
		finalized:    f.finalized,
		finalStatus:  f.finalStatus,
		artifactURL:  f.artifactURL,
		refunds:      f.refunds,
		progress:     f.progress,
		progressImgs: f.progressImgs,
	}
}

// fakeCollector returns canned candidates per identifier.
type fakeCollector struct {
	candidates map[string][]scraper.Candidate
	errors     map[string][]string
	delay      time.Duration
}

func (f *fakeCollector) Collect(ctx context.Context, session *browser.Session, identifier string, opts scraper.CollectOptions) ([]scraper.Candidate, []string) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.candidates[identifier], f.errors[identifier]
}

// passSelector keeps every candidate in order.
type passSelector struct{}

func (passSelector) Select(candidates []scraper.Candidate) []scraper.Candidate {
	return candidates
}

// fakeObjects records every upload.
type fakeObjects struct {
	mu   sync.Mutex
	keys []string
	fail bool
}

func (f *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("upload rejected")
	}
	f.keys = append(f.keys, key)
	return "http://storage.local/" + key, nil
}

func (f *fakeObjects) keyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.keys)
}

func testOrder(identifiers ...string) *models.ScrapeOrder {
	order := &models.ScrapeOrder{
		ID:         "order-1",
		UserID:     "user-1",
		Status:     models.OrderProcessing,
		TotalItems: len(identifiers),
	}
	for i, id := range identifiers {
		order.Items = append(order.Items, models.OrderItem{
			ID:         fmt.Sprintf("item-%d", i+1),
			OrderID:    order.ID,
			Identifier: id,
			Status:     models.ItemPending,
			Position:   i,
		})
	}
	return order
}

func candidate(url string, kb int) scraper.Candidate {
	return scraper.Candidate{
		SourceURL: url,
		Store:     "amazon",
		Data:      []byte("not-a-real-image"),
		Width:     1200,
		Height:    1200,
		SizeKB:    kb,
	}
}

var _ = Describe("Orchestrator", func() {
	var (
		logger  *logrus.Logger
		objects *fakeObjects
	)

	BeforeEach(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		objects = &fakeObjects{}
	})

	newOrchestrator := func(store *fakeStore, collector jobs.Collector, timeout time.Duration) *jobs.Orchestrator {
		config := &jobs.Config{
			HardTimeout: timeout,
			Mode:        refine.ModeStudio,
			Logger:      logger,
		}
		orch, err := jobs.NewOrchestrator(config, store, nil, collector, passSelector{}, nil, nil, objects)
		Expect(err).NotTo(HaveOccurred(), "Failed to create orchestrator")
		return orch
	}

	Describe("RunScrapeJob", func() {
		It("completes an order when every identifier yields images", func() {
			store := newFakeStore(testOrder("B0TEST0001", "B0TEST0002"))
			collector := &fakeCollector{candidates: map[string][]scraper.Candidate{
				"B0TEST0001": {candidate("https://m.media-amazon.com/a.jpg", 200)},
				"B0TEST0002": {candidate("https://m.media-amazon.com/b.jpg", 300)},
			}}

			var progressCalls int
			summary, err := newOrchestrator(store, collector, time.Minute).RunScrapeJob(
				context.Background(), "order-1",
				func(processed, total int, identifier string, imagesFound int) {
					progressCalls++
				},
			)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalImages).To(Equal(2))
			Expect(summary.FailedCount).To(BeZero())
			Expect(summary.TimedOut).To(BeFalse())
			Expect(summary.ArtifactURL).NotTo(BeEmpty(), "Successful orders should ship an archive")
			Expect(progressCalls).To(Equal(2))

			snap := store.snapshot()
			Expect(snap.finalStatus).To(Equal(models.OrderCompleted))
			Expect(snap.refunds).To(BeZero(), "Successful orders must never refund")
			Expect(store.itemStatuses["item-1"]).To(Equal(models.ItemCompleted))
			Expect(store.itemStatuses["item-2"]).To(Equal(models.ItemCompleted))
		})

		It("marks the order partial when one identifier finds nothing", func() {
			store := newFakeStore(testOrder("B0TEST0001", "B0MISSING0"))
			collector := &fakeCollector{
				candidates: map[string][]scraper.Candidate{
					"B0TEST0001": {candidate("https://m.media-amazon.com/a.jpg", 200)},
				},
				errors: map[string][]string{
					"B0MISSING0": {"walmart: navigation timed out"},
				},
			}

			summary, err := newOrchestrator(store, collector, time.Minute).RunScrapeJob(context.Background(), "order-1", nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.FailedCount).To(Equal(1))
			Expect(store.snapshot().finalStatus).To(Equal(models.OrderPartial))
			Expect(store.itemStatuses["item-2"]).To(Equal(models.ItemFailed))
			Expect(store.itemErrors["item-2"]).To(ContainSubstring("navigation timed out"))
			Expect(store.snapshot().refunds).To(BeZero(), "Partial orders keep their charge")
		})

		It("fails and refunds when nothing is found for any identifier", func() {
			store := newFakeStore(testOrder("B0NOPE0001", "B0NOPE0002"))
			collector := &fakeCollector{}

			summary, err := newOrchestrator(store, collector, time.Minute).RunScrapeJob(context.Background(), "order-1", nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalImages).To(BeZero())
			Expect(summary.ArtifactURL).To(BeEmpty(), "Failed orders ship no archive")

			snap := store.snapshot()
			Expect(snap.finalStatus).To(Equal(models.OrderFailed))
			Expect(snap.refunds).To(Equal(1), "Failed orders refund exactly once")
			Expect(store.itemErrors["item-1"]).To(Equal("no qualifying images found"))
		})

		It("treats a concurrent refund as success", func() {
			store := newFakeStore(testOrder("B0NOPE0001"))
			store.refundsFail = true
			collector := &fakeCollector{}

			_, err := newOrchestrator(store, collector, time.Minute).RunScrapeJob(context.Background(), "order-1", nil)

			Expect(err).NotTo(HaveOccurred(), "already-refunded must not surface as a job error")
			Expect(store.snapshot().finalStatus).To(Equal(models.OrderFailed))
		})

		It("excludes candidates whose upload fails rather than failing the item set", func() {
			store := newFakeStore(testOrder("B0TEST0001"))
			objects.fail = true
			collector := &fakeCollector{candidates: map[string][]scraper.Candidate{
				"B0TEST0001": {candidate("https://m.media-amazon.com/a.jpg", 200)},
			}}

			summary, err := newOrchestrator(store, collector, time.Minute).RunScrapeJob(context.Background(), "order-1", nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalImages).To(BeZero())
			Expect(store.snapshot().finalStatus).To(Equal(models.OrderFailed))
		})

		It("skips items already settled by a previous run", func() {
			order := testOrder("B0TEST0001", "B0TEST0002")
			order.Items[0].Status = models.ItemSkipped
			store := newFakeStore(order)
			collector := &fakeCollector{candidates: map[string][]scraper.Candidate{
				"B0TEST0002": {candidate("https://m.media-amazon.com/b.jpg", 300)},
			}}

			summary, err := newOrchestrator(store, collector, time.Minute).RunScrapeJob(context.Background(), "order-1", nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalImages).To(Equal(1))
			Expect(store.snapshot().finalStatus).To(Equal(models.OrderCompleted))
			Expect(store.itemStatuses["item-1"]).To(Equal(models.ItemSkipped))
		})

		It("retries only unfinished items and keeps delivered ones counting", func() {
			order := testOrder("B0DONE0001", "B0FAIL0001")
			order.Items[0].Status = models.ItemCompleted
			order.Items[0].ImagesFound = 2
			order.Items[1].Status = models.ItemFailed
			order.Items[1].ErrorMessage = "no qualifying images found"
			store := newFakeStore(order)
			store.finalized = true
			store.finalStatus = models.OrderPartial
			collector := &fakeCollector{candidates: map[string][]scraper.Candidate{
				"B0FAIL0001": {candidate("https://m.media-amazon.com/c.jpg", 250)},
			}}

			summary, err := newOrchestrator(store, collector, time.Minute).RetryScrapeJob(context.Background(), "order-1", nil)

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.TotalImages).To(Equal(3), "Images delivered on the first run keep counting")
			Expect(summary.ProcessedCount).To(Equal(1), "Only the reset item re-enters the pipeline")

			snap := store.snapshot()
			Expect(snap.finalStatus).To(Equal(models.OrderCompleted))
			Expect(snap.progress).To(Equal(2), "Carried-over items must repopulate the reset order counters")
			Expect(snap.progressImgs).To(Equal(3))
			Expect(store.itemStatuses["item-2"]).To(Equal(models.ItemCompleted))
			Expect(store.order.Items).To(HaveLen(2), "Retrying must not create item rows")
		})

		Context("when the hard timeout fires", func() {
			It("force-fails the order, refunds, and discards the late result", func() {
				store := newFakeStore(testOrder("B0SLOW0001"))
				collector := &fakeCollector{
					delay: 300 * time.Millisecond,
					candidates: map[string][]scraper.Candidate{
						"B0SLOW0001": {candidate("https://m.media-amazon.com/a.jpg", 200)},
					},
				}

				summary, err := newOrchestrator(store, collector, 50*time.Millisecond).RunScrapeJob(context.Background(), "order-1", nil)

				Expect(err).To(HaveOccurred(), "A timed-out job reports an error")
				Expect(summary.TimedOut).To(BeTrue())

				snap := store.snapshot()
				Expect(snap.finalStatus).To(Equal(models.OrderFailed))
				Expect(snap.refunds).To(Equal(1))

				// Let the slow pipeline finish; its results must not land.
				Consistently(func() int {
					store.mu.Lock()
					defer store.mu.Unlock()
					return len(store.images)
				}, 600*time.Millisecond, 50*time.Millisecond).Should(BeZero(), "Late pipeline results must be discarded")

				final := store.snapshot()
				Expect(final.finalStatus).To(Equal(models.OrderFailed), "The late finish must not overwrite the timeout status")
				Expect(final.refunds).To(Equal(1), "The refund must not double-fire")
				Expect(store.itemStatuses["item-1"]).To(Equal(models.ItemFailed), "A late item write must not overwrite the force-fail")
			})
		})
	})
})

var _ = Describe("Sweeper", func() {
	It("fails and refunds abandoned orders", func() {
		order := testOrder("B0STUCK001")
		store := newFakeStore(order)
		store.stuck = []models.ScrapeOrder{*order}

		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		sweeper, err := jobs.NewSweeper(&jobs.SweeperConfig{
			Interval:  time.Hour,
			Staleness: 5 * time.Minute,
			Logger:    logger,
		}, store)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err = sweeper.Run(ctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))

		snap := store.snapshot()
		Expect(snap.finalStatus).To(Equal(models.OrderFailed))
		Expect(snap.refunds).To(Equal(1))
		Expect(store.itemStatuses["item-1"]).To(Equal(models.ItemFailed))
	})

	It("tolerates an already-refunded order", func() {
		order := testOrder("B0STUCK001")
		store := newFakeStore(order)
		store.stuck = []models.ScrapeOrder{*order}
		store.refundsFail = true

		logger := logrus.New()
		logger.SetLevel(logrus.PanicLevel)
		sweeper, err := jobs.NewSweeper(&jobs.SweeperConfig{
			Interval:  time.Hour,
			Staleness: 5 * time.Minute,
			Logger:    logger,
		}, store)
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = sweeper.Run(ctx)

		Expect(store.snapshot().finalStatus).To(Equal(models.OrderFailed), "The sweep must complete despite the duplicate refund")
	})
})
