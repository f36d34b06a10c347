package jobs

import (
	"github.com/shelfshot/shelfshot/pkg/db/models"
)

// ComputeOrderStatus derives the terminal order status once every item has
// been attempted. The zero-images check deliberately runs before the
// all-failed check: an order whose items report neither failure nor images
// (failed == 0, images == 0) must resolve to failed, never completed.
func ComputeOrderStatus(totalImages, failedItems, attemptedItems int) models.OrderStatus {
	if totalImages == 0 {
		return models.OrderFailed
	}
	if attemptedItems > 0 && failedItems == attemptedItems {
		return models.OrderFailed
	}
	if failedItems > 0 {
		return models.OrderPartial
	}
	return models.OrderCompleted
}
