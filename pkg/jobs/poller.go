package jobs

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/db/models"
)

// OrderSource claims batches of pending orders for processing.
type OrderSource interface {
	ClaimPendingOrders(ctx context.Context, limit int) ([]models.ScrapeOrder, error)
}

// JobRunner runs one claimed order to completion.
type JobRunner interface {
	RunScrapeJob(ctx context.Context, orderID string, onProgress ProgressFunc) (*JobSummary, error)
}

// PollerConfig holds order poller settings
type PollerConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    *logrus.Logger
}

// NewPollerConfig creates a PollerConfig from environment variables.
func NewPollerConfig(logger *logrus.Logger) (*PollerConfig, error) {
	intervalSec, _ := strconv.Atoi(getEnvOrDefault("POLL_INTERVAL_SECONDS", "10"))
	batchSize, _ := strconv.Atoi(getEnvOrDefault("POLL_BATCH_SIZE", "3"))

	cfg := &PollerConfig{
		Interval:  time.Duration(intervalSec) * time.Second,
		BatchSize: batchSize,
		Logger:    logger,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings and applies defaults.
func (c *PollerConfig) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 3
	}
	return nil
}

// Poller claims pending orders and runs them through the job runner, one at
// a time. Claiming flips the order to processing, so multiple workers can
// poll the same table without double-running an order.
type Poller struct {
	config *PollerConfig
	source OrderSource
	runner JobRunner
	logger *logrus.Logger
}

// NewPoller creates a new Poller
func NewPoller(config *PollerConfig, source OrderSource, runner JobRunner) (*Poller, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Poller{
		config: config,
		source: source,
		runner: runner,
		logger: config.Logger,
	}, nil
}

// Run polls until the context ends. Jobs run sequentially within a worker;
// each job already fans out internally across stores.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.WithFields(logrus.Fields{
		"interval":   p.config.Interval.String(),
		"batch_size": p.config.BatchSize,
	}).Info("Starting order poller")

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping order poller")
			return ctx.Err()
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	claimed, err := p.source.ClaimPendingOrders(ctx, p.config.BatchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to claim pending orders")
		return
	}

	for _, order := range claimed {
		if ctx.Err() != nil {
			return
		}

		log := p.logger.WithFields(logrus.Fields{
			"order_id":    order.ID,
			"total_items": order.TotalItems,
		})
		log.Info("Starting claimed job")

		summary, err := p.runner.RunScrapeJob(ctx, order.ID, nil)
		if err != nil {
			log.WithError(err).Error("Job failed")
			continue
		}

		log.WithFields(logrus.Fields{
			"total_images": summary.TotalImages,
			"failed_items": summary.FailedCount,
		}).Info("Job completed")
	}
}
