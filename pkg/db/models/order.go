package models

import (
	"time"

	"github.com/lib/pq"
)

// OrderStatus represents the lifecycle state of a scrape order
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderCompleted  OrderStatus = "completed"
	OrderPartial    OrderStatus = "partial"
	OrderFailed     OrderStatus = "failed"
)

// IsTerminal reports whether the order can no longer change state.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderPartial || s == OrderFailed
}

// ItemStatus represents the lifecycle state of one identifier within an order
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
)

// IsTerminal reports whether the item can no longer change state within the
// current attempt. Skipped items never enter the pipeline at all.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemSkipped
}

// ScrapeOrder represents the database model for an identifier batch
type ScrapeOrder struct {
	ID     string      `gorm:"primaryKey;column:id"`
	UserID string      `gorm:"column:user_id;not null;index"`
	Status OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`

	// Submission order of the requested identifiers
	Identifiers pq.StringArray `gorm:"column:identifiers;type:text[]"`

	// Counts
	TotalItems     int `gorm:"column:total_items;not null"`
	ProcessedItems int `gorm:"column:processed_items;default:0"`
	TotalImages    int `gorm:"column:total_images;default:0"`

	// Money (credits, not cents)
	TotalAmount   float64 `gorm:"column:total_amount;not null"`
	ChargedAmount float64 `gorm:"column:charged_amount;not null"`
	Refunded      bool    `gorm:"column:refunded;default:false"`

	// Final packaged artifact (zip of all item images)
	ArtifactURL string `gorm:"column:artifact_url"`

	CreatedAt   time.Time  `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	CompletedAt *time.Time `gorm:"column:completed_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// TableName specifies the table name for the ScrapeOrder model
func (ScrapeOrder) TableName() string {
	return "scrape_orders"
}

// OrderItem represents one identifier within an order
type OrderItem struct {
	ID         string     `gorm:"primaryKey;column:id"`
	OrderID    string     `gorm:"column:order_id;not null;index"`
	Identifier string     `gorm:"column:identifier;not null"`
	Position   int        `gorm:"column:position;not null"`
	Status     ItemStatus `gorm:"column:status;type:item_status;not null;default:'pending'"`

	ImagesFound  int        `gorm:"column:images_found;default:0"`
	ErrorMessage string     `gorm:"column:error_message"`
	CompletedAt  *time.Time `gorm:"column:completed_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`

	Images []ProcessedImage `gorm:"foreignKey:ItemID"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}
