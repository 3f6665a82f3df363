package model

import "time"

// Order statuses. Orders are never deleted; only status and receipt
// bookkeeping change after creation.
const (
	OrderStatusPaid     = "paid"
	OrderStatusRefunded = "refunded"
)

// Order is the snapshot of one checkout attempt. IdempotencyKey is
// unique so a retried submission resolves to the same row.
type Order struct {
	ID              uint64      `gorm:"primaryKey"`
	CheckoutGroupID string      `gorm:"size:36;not null;index"`
	IdempotencyKey  string      `gorm:"size:64;not null;uniqueIndex"`
	BuyerEmail      string      `gorm:"size:255;not null"`
	BuyerName       string      `gorm:"size:255"`
	AmountPaid      int64       `gorm:"not null"`
	CheckoutAnswers string      `gorm:"type:jsonb"`
	Status          string      `gorm:"size:32;not null;default:'paid'"`
	ReceiptSentAt   *time.Time
	Items           []OrderItem `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time   `gorm:"autoCreateTime"`
	UpdatedAt       time.Time   `gorm:"autoUpdateTime"`
}

func (Order) TableName() string { return "order" }

// OrderItem is a per-creator line item. Title, UnitPrice and ImageURL
// are copied from the product at purchase time so the order stays
// readable after the product or creator account is deleted.
type OrderItem struct {
	ID           uint64 `gorm:"primaryKey"`
	OrderID      uint64 `gorm:"not null;index"`
	CreatorID    uint64 `gorm:"not null;index"`
	ProductID    uint64 `gorm:"not null;index"`
	ProductTitle string `gorm:"size:255;not null"`
	UnitPrice    int64  `gorm:"not null"`
	ImageURL     string `gorm:"size:512"`
	Quantity     int    `gorm:"not null"`
	Subtotal     int64  `gorm:"not null"`
}

func (OrderItem) TableName() string { return "order_item" }
