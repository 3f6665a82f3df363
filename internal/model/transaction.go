package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ledger entry types. Corrections are appended as new adjustment rows;
// existing rows are never updated or deleted.
const (
	TxTypeSale       = "sale"
	TxTypePayout     = "payout"
	TxTypeFee        = "fee"
	TxTypeAdjustment = "adjustment"
)

// Transaction is an immutable ledger entry. Amounts are signed minor
// currency units: positive credits the creator, negative debits.
// NetAmount is Amount minus the platform fee and is what balance
// aggregation sums; for payout and adjustment rows it equals Amount.
type Transaction struct {
	ID                 uint64          `gorm:"primaryKey"`
	CreatorID          uint64          `gorm:"not null;index"`
	OrderID            *uint64         `gorm:"index"`
	PayoutID           *uint64         `gorm:"index"`
	Type               string          `gorm:"size:32;not null;index"`
	Amount             int64           `gorm:"not null"`
	NetAmount          int64           `gorm:"not null"`
	PlatformFeePercent decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	PlatformFeeAmount  int64           `gorm:"not null;default:0"`
	Description        string          `gorm:"size:255"`
	Metadata           string          `gorm:"type:jsonb"`
	AvailableAt        time.Time       `gorm:"not null;index"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index"`
}

func (Transaction) TableName() string { return "transaction" }
