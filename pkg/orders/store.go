// Package orders is the persistence layer for scrape orders, their items,
// delivered images, and the balance ledger.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/shelfshot/shelfshot/pkg/db/models"
)

var (
	// ErrOrderNotFound is returned when the order id does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyRefunded is returned by RefundOrder when another path got
	// there first. Callers treat it as success.
	ErrAlreadyRefunded = errors.New("order already refunded")
	// ErrOrderTerminal is returned when a terminal order is asked to change
	// state; late pipeline results hit this and are discarded.
	ErrOrderTerminal = errors.New("order already in terminal state")
	// ErrInsufficientBalance is returned when the user cannot afford a
	// single identifier.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Config holds order store settings
type Config struct {
	PricePerIdentifier float64
	WriteRetries       int
	RetryBackoff       time.Duration
	Logger             *logrus.Logger
}

// Validate checks settings and applies defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.PricePerIdentifier <= 0 {
		c.PricePerIdentifier = 1.0
	}
	if c.WriteRetries < 1 {
		c.WriteRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return nil
}

// Store wraps the database for order lifecycle operations.
type Store struct {
	config *Config
	db     *gorm.DB
	logger *logrus.Logger
}

// NewStore creates a new order Store
func NewStore(config *Config, db *gorm.DB) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &Store{config: config, db: db, logger: config.Logger}, nil
}

// PricePerIdentifier exposes the configured per-identifier price.
func (s *Store) PricePerIdentifier() float64 {
	return s.config.PricePerIdentifier
}

// CreateOrder charges the user for as many identifiers as their balance
// covers and creates the order with its items. Identifiers beyond the
// affordable count are created directly in skipped state and never enter the
// pipeline.
func (s *Store) CreateOrder(ctx context.Context, userID string, identifiers []string) (*models.ScrapeOrder, error) {
	if len(identifiers) == 0 {
		return nil, fmt.Errorf("no identifiers submitted")
	}

	price := s.config.PricePerIdentifier
	total := float64(len(identifiers)) * price

	affordable, charged, err := s.chargeUpTo(ctx, userID, len(identifiers), price)
	if err != nil {
		return nil, err
	}

	order := &models.ScrapeOrder{
		ID:            uuid.New().String(),
		UserID:        userID,
		Status:        models.OrderPending,
		Identifiers:   identifiers,
		TotalItems:    len(identifiers),
		TotalAmount:   total,
		ChargedAmount: charged,
	}

	items := make([]models.OrderItem, 0, len(identifiers))
	for i, ident := range identifiers {
		item := models.OrderItem{
			ID:         uuid.New().String(),
			OrderID:    order.ID,
			Identifier: strings.TrimSpace(ident),
			Position:   i,
			Status:     models.ItemPending,
		}
		if i >= affordable {
			item.Status = models.ItemSkipped
			item.ErrorMessage = "insufficient balance"
		}
		items = append(items, item)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		ledger := &models.BalanceTransaction{
			ID:      uuid.New().String(),
			UserID:  userID,
			OrderID: order.ID,
			Type:    models.TransactionCharge,
			Amount:  -charged,
			Reason:  fmt.Sprintf("scrape order, %d identifiers", affordable),
		}
		return tx.Create(ledger).Error
	})
	if err != nil {
		// The charge already went through; hand it back rather than strand it.
		_ = s.creditBalance(ctx, userID, charged)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	order.Items = items

	s.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"user_id":    userID,
		"total":      len(identifiers),
		"affordable": affordable,
		"charged":    charged,
	}).Info("Order created")

	return order, nil
}

// chargeUpTo debits the user for up to want identifiers, atomically. The
// conditional UPDATE is the serialization point: concurrent charges against
// the same user cannot both pass the balance guard.
func (s *Store) chargeUpTo(ctx context.Context, userID string, want int, price float64) (affordable int, charged float64, err error) {
	for n := want; n > 0; n-- {
		amount := float64(n) * price
		res := s.db.WithContext(ctx).
			Model(&models.User{}).
			Where("id = ? AND balance >= ?", userID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return 0, 0, fmt.Errorf("failed to charge balance: %w", res.Error)
		}
		if res.RowsAffected > 0 {
			return n, amount, nil
		}
	}
	return 0, 0, ErrInsufficientBalance
}

func (s *Store) creditBalance(ctx context.Context, userID string, amount float64) error {
	return s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount)).Error
}

// GetOrder loads an order with its items in submission order.
func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.ScrapeOrder, error) {
	var order models.ScrapeOrder
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ClaimPendingOrders flips up to limit pending orders to processing and
// returns them, oldest first.
func (s *Store) ClaimPendingOrders(ctx context.Context, limit int) ([]models.ScrapeOrder, error) {
	var claimed []models.ScrapeOrder

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending []models.ScrapeOrder
		if err := tx.
			Where("status = ?", models.OrderPending).
			Order("created_at ASC").
			Limit(limit).
			Find(&pending).Error; err != nil {
			return err
		}

		for _, order := range pending {
			res := tx.Model(&models.ScrapeOrder{}).
				Where("id = ? AND status = ?", order.ID, models.OrderPending).
				Update("status", models.OrderProcessing)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				order.Status = models.OrderProcessing
				claimed = append(claimed, order)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending orders: %w", err)
	}
	return claimed, nil
}

// ListStuckOrders returns processing orders created before the staleness
// cutoff.
func (s *Store) ListStuckOrders(ctx context.Context, olderThan time.Duration) ([]models.ScrapeOrder, error) {
	cutoff := time.Now().Add(-olderThan)
	var stuck []models.ScrapeOrder
	err := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.OrderProcessing, cutoff).
		Find(&stuck).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck orders: %w", err)
	}
	return stuck, nil
}

// UpdateItemStatus writes an item's state transition, with bounded retry.
// Terminal items are left alone: a pipeline write that loses the race
// against a force-fail must not resurrect the item.
func (s *Store) UpdateItemStatus(ctx context.Context, itemID string, status models.ItemStatus, imagesFound int, errMsg string) error {
	updates := map[string]interface{}{
		"status":        status,
		"images_found":  imagesFound,
		"error_message": errMsg,
	}
	if status.IsTerminal() {
		now := time.Now()
		updates["completed_at"] = &now
	}

	return s.withWriteRetry(ctx, "item status", map[string]interface{}{"item_id": itemID, "status": status}, func() error {
		return s.db.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("id = ? AND status IN ?", itemID, []models.ItemStatus{models.ItemPending, models.ItemProcessing}).
			Updates(updates).Error
	})
}

// RecordItemProgress bumps the order's processed count and image total after
// an item settles.
func (s *Store) RecordItemProgress(ctx context.Context, orderID string, imagesFound int) error {
	return s.withWriteRetry(ctx, "order progress", map[string]interface{}{"order_id": orderID}, func() error {
		return s.db.WithContext(ctx).
			Model(&models.ScrapeOrder{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"processed_items": gorm.Expr("processed_items + 1"),
				"total_images":    gorm.Expr("total_images + ?", imagesFound),
			}).Error
	})
}

// FinalizeOrder writes the terminal status. The status guard makes late
// results harmless: once an order is terminal nothing can move it again.
func (s *Store) FinalizeOrder(ctx context.Context, orderID string, status models.OrderStatus, artifactURL string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finalize requires a terminal status, got %s", status)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
	}
	if artifactURL != "" {
		updates["artifact_url"] = artifactURL
	}

	res := s.db.WithContext(ctx).
		Model(&models.ScrapeOrder{}).
		Where("id = ? AND status NOT IN ?", orderID, []models.OrderStatus{
			models.OrderCompleted, models.OrderPartial, models.OrderFailed,
		}).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to finalize order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrOrderTerminal
	}
	return nil
}

// FailNonTerminalItems force-fails every item still pending or processing.
func (s *Store) FailNonTerminalItems(ctx context.Context, orderID, reason string) error {
	now := time.Now()
	return s.withWriteRetry(ctx, "force-fail items", map[string]interface{}{"order_id": orderID}, func() error {
		return s.db.WithContext(ctx).
			Model(&models.OrderItem{}).
			Where("order_id = ? AND status IN ?", orderID, []models.ItemStatus{models.ItemPending, models.ItemProcessing}).
			Updates(map[string]interface{}{
				"status":        models.ItemFailed,
				"error_message": reason,
				"completed_at":  &now,
			}).Error
	})
}

// RefundOrder credits the charged amount back exactly once per order. The
// refunded flag is checked-and-set atomically, so the orchestrator's failure
// path and the sweeper can both call this and only one insertion happens;
// the ledger's unique (order_id, type) index backstops the flag.
func (s *Store) RefundOrder(ctx context.Context, orderID string) error {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.ChargedAmount <= 0 {
		return nil
	}

	res := s.db.WithContext(ctx).
		Model(&models.ScrapeOrder{}).
		Where("id = ? AND refunded = ?", orderID, false).
		Update("refunded", true)
	if res.Error != nil {
		return fmt.Errorf("failed to mark order refunded: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyRefunded
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ledger := &models.BalanceTransaction{
			ID:      uuid.New().String(),
			UserID:  order.UserID,
			OrderID: orderID,
			Type:    models.TransactionRefund,
			Amount:  order.ChargedAmount,
			Reason:  "order failed",
		}
		if err := tx.Create(ledger).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", order.UserID).
			Update("balance", gorm.Expr("balance + ?", order.ChargedAmount)).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyRefunded
		}
		return fmt.Errorf("failed to record refund: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"amount":   order.ChargedAmount,
	}).Info("Order refunded")
	return nil
}

// ResetItemsForRetry returns pending/processing/failed items to pending and
// reopens the order. Completed and skipped items are untouched; no new rows
// are created.
func (s *Store) ResetItemsForRetry(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.OrderItem{}).
			Where("order_id = ? AND status IN ?", orderID, []models.ItemStatus{
				models.ItemPending, models.ItemProcessing, models.ItemFailed,
			}).
			Updates(map[string]interface{}{
				"status":        models.ItemPending,
				"images_found":  0,
				"error_message": "",
				"completed_at":  nil,
			}).Error; err != nil {
			return err
		}

		return tx.Model(&models.ScrapeOrder{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"status":          models.OrderPending,
				"processed_items": 0,
				"total_images":    0,
				"completed_at":    nil,
				"artifact_url":    "",
			}).Error
	})
}

// AddProcessedImage persists one delivered image record.
func (s *Store) AddProcessedImage(ctx context.Context, img *models.ProcessedImage) error {
	if img.ID == "" {
		img.ID = uuid.New().String()
	}
	return s.withWriteRetry(ctx, "processed image", map[string]interface{}{"item_id": img.ItemID}, func() error {
		return s.db.WithContext(ctx).Create(img).Error
	})
}

// withWriteRetry runs a status write with bounded linear backoff. A write
// that keeps failing is logged as critical and swallowed: losing a status
// update must not lose images already produced.
func (s *Store) withWriteRetry(ctx context.Context, op string, fields map[string]interface{}, write func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.config.WriteRetries; attempt++ {
		if lastErr = write(); lastErr == nil {
			return nil
		}
		if attempt < s.config.WriteRetries {
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = s.config.WriteRetries
			case <-time.After(time.Duration(attempt) * s.config.RetryBackoff):
			}
		}
	}

	entry := s.logger.WithError(lastErr).WithField("op", op)
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	entry.Error("CRITICAL: persistence write failed after retries, continuing job")
	return lastErr
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "23505")
}
