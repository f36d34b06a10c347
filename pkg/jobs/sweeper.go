package jobs

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shelfshot/shelfshot/pkg/db/models"
	"github.com/shelfshot/shelfshot/pkg/orders"
)

// SweeperConfig holds stuck-order sweeper settings
type SweeperConfig struct {
	Interval time.Duration
	// Staleness is how long an order may sit in processing before the
	// sweeper declares it abandoned.
	Staleness time.Duration
	Logger    *logrus.Logger
}

// NewSweeperConfig creates a SweeperConfig from environment variables.
func NewSweeperConfig(logger *logrus.Logger) (*SweeperConfig, error) {
	intervalSec, _ := strconv.Atoi(getEnvOrDefault("SWEEP_INTERVAL_SECONDS", "120"))
	stalenessSec, _ := strconv.Atoi(getEnvOrDefault("SWEEP_STALENESS_SECONDS", "300"))

	cfg := &SweeperConfig{
		Interval:  time.Duration(intervalSec) * time.Second,
		Staleness: time.Duration(stalenessSec) * time.Second,
		Logger:    logger,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings and applies defaults.
func (c *SweeperConfig) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Minute
	}
	if c.Staleness <= 0 {
		c.Staleness = 5 * time.Minute
	}
	return nil
}

// Sweeper fails and refunds orders whose worker died mid-job. It is the
// safety net behind the in-process hard timeout: a crashed or OOM-killed
// worker leaves its order in processing forever, and only the sweeper can
// settle it.
type Sweeper struct {
	config *SweeperConfig
	store  OrderStore
	logger *logrus.Logger
}

// NewSweeper creates a new Sweeper
func NewSweeper(config *SweeperConfig, store OrderStore) (*Sweeper, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Sweeper{
		config: config,
		store:  store,
		logger: config.Logger,
	}, nil
}

// Run sweeps once at startup, then on every tick until the context ends.
// The startup sweep matters most: it settles orders orphaned by the
// previous process.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"interval":  s.config.Interval.String(),
		"staleness": s.config.Staleness.String(),
	}).Info("Starting stuck-order sweeper")

	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping stuck-order sweeper")
			return ctx.Err()
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	stuck, err := s.store.ListStuckOrders(ctx, s.config.Staleness)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list stuck orders")
		return
	}
	if len(stuck) == 0 {
		return
	}

	s.logger.WithField("count", len(stuck)).Warn("Sweeping stuck orders")

	for _, order := range stuck {
		log := s.logger.WithField("order_id", order.ID)

		if err := s.store.FailNonTerminalItems(ctx, order.ID, "order abandoned by worker"); err != nil {
			log.WithError(err).Error("Failed to fail stuck items")
		}

		if err := s.store.FinalizeOrder(ctx, order.ID, models.OrderFailed, ""); err != nil {
			// A worker finished it between listing and now; leave it alone.
			log.WithError(err).Debug("Stuck order settled itself, skipping")
			continue
		}

		if err := s.store.RefundOrder(ctx, order.ID); err != nil && err != orders.ErrAlreadyRefunded {
			log.WithError(err).Error("CRITICAL: refund failed for swept order")
			continue
		}

		log.Info("Stuck order failed and refunded")
	}
}
