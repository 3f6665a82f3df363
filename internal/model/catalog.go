package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row checkout validates against. PriceCents is
// the only price the charge is computed from; client-sent prices are
// ignored. SoldCount is maintained transactionally and guards
// TotalQuantity (nil = unlimited stock).
type Product struct {
	ID               uint64    `gorm:"primaryKey"`
	CreatorID        uint64    `gorm:"not null;index"`
	Title            string    `gorm:"size:255;not null"`
	Description      string    `gorm:"type:text"`
	PriceCents       int64     `gorm:"not null"`
	ImageURL         string    `gorm:"size:512"`
	Active           bool      `gorm:"not null;default:true"`
	TotalQuantity    *int
	SoldCount        int       `gorm:"not null;default:0"`
	LimitPerCheckout int       `gorm:"not null;default:0"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (Product) TableName() string { return "product" }

// Creator carries the per-creator commerce configuration the ledger
// snapshots at write time. HoldPeriodDays nil falls back to the
// platform default.
type Creator struct {
	ID             uint64          `gorm:"primaryKey"`
	Email          string          `gorm:"size:255;not null"`
	DisplayName    string          `gorm:"size:255"`
	FeePercent     decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	HoldPeriodDays *int
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (Creator) TableName() string { return "creator" }
