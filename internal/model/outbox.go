package model

import "time"

// Outbox event types consumed by the notification pipeline (receipt
// emails, creator alerts). Rows commit in the same transaction as the
// order/payout they describe and are published after commit by the
// poller.
const (
	EventOrderCreated    = "order.created"
	EventPayoutRequested = "payout.requested"
	EventPayoutCancelled = "payout.cancelled"
	EventPayoutCompleted = "payout.completed"
	EventPayoutFailed    = "payout.failed"
)

type OutboxEvent struct {
	ID          uint64     `gorm:"primaryKey"`
	Aggregate   string     `gorm:"size:64;not null"`
	AggregateID uint64     `gorm:"not null"`
	EventType   string     `gorm:"size:64;not null"`
	Payload     string     `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	Processed   bool       `gorm:"not null;default:false"`
	ProcessedAt *time.Time
}

func (OutboxEvent) TableName() string { return "event_outbox" }
