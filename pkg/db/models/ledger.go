package models

import (
	"time"
)

// TransactionType categorizes balance ledger entries
type TransactionType string

const (
	TransactionCharge TransactionType = "charge"
	TransactionRefund TransactionType = "refund"
	TransactionTopUp  TransactionType = "topup"
)

// User holds the credit balance charged per identifier.
type User struct {
	ID      string  `gorm:"primaryKey;column:id"`
	Email   string  `gorm:"column:email;uniqueIndex"`
	Balance float64 `gorm:"column:balance;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// BalanceTransaction is an append-only ledger entry. The unique index on
// (order_id, type) is what makes the refund path idempotent: a second refund
// insert for the same order violates the constraint and is treated as a no-op.
type BalanceTransaction struct {
	ID      string          `gorm:"primaryKey;column:id"`
	UserID  string          `gorm:"column:user_id;not null;index"`
	OrderID string          `gorm:"column:order_id;uniqueIndex:idx_ledger_order_type"`
	Type    TransactionType `gorm:"column:type;uniqueIndex:idx_ledger_order_type;not null"`
	Amount  float64         `gorm:"column:amount;not null"`
	Reason  string          `gorm:"column:reason"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the BalanceTransaction model
func (BalanceTransaction) TableName() string {
	return "balance_transactions"
}
