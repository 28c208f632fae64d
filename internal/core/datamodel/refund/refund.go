package refund

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
)

// Refund exists at most once per dedupe key regardless of how many times the
// orchestration is retried.
type Refund struct {
	ID              int64     `gorm:"primaryKey"`
	DedupeKey       string    `gorm:"column:dedupe_key;not null;uniqueIndex"`
	SourceType      string    `gorm:"column:source_type;not null"`
	SourceID        string    `gorm:"column:source_id;not null;index"`
	PaymentIntentID string    `gorm:"column:payment_intent_id;not null;index"`
	Status          string    `gorm:"column:status;not null"`
	GatewayRefundID string    `gorm:"column:gateway_refund_id"`
	Reason          string    `gorm:"column:reason"`
	RefundedBy      string    `gorm:"column:refunded_by"`
	CreatedAt       time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time `gorm:"column:updated_at;default:now()"`
}

func (Refund) TableName() string {
	return "refunds"
}
