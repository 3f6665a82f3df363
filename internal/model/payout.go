package model

import "time"

// Payout statuses. pending may move to processing or cancelled;
// processing moves to completed or failed. Everything else is terminal.
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
)

// Payout is a withdrawal request. The partial unique index on
// creator_id is what guarantees at most one pending payout per creator:
// a concurrent second insert loses with a duplicate-key error.
type Payout struct {
	ID            uint64     `gorm:"primaryKey"`
	CreatorID     uint64     `gorm:"not null;index;index:idx_payout_pending,unique,where:status = 'pending'"`
	Amount        int64      `gorm:"not null"`
	Status        string     `gorm:"size:20;not null;default:'pending';index"`
	PeriodStart   *time.Time
	PeriodEnd     *time.Time
	ProcessedAt   *time.Time
	FailureReason string     `gorm:"size:255"`
	CreatedAt     time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

func (Payout) TableName() string { return "payout" }
