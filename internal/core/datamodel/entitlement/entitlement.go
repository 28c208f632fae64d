package entitlement

import (
	"time"
)

const (
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
	StatusRevoked   = "REVOKED"
)

// Entitlement is a downstream right granted by a payment (a ticket, a booking
// access grant). The dispute state machine suspends, restores, or revokes them.
type Entitlement struct {
	ID        int64     `gorm:"primaryKey"`
	PaymentID int64     `gorm:"column:payment_id;not null;uniqueIndex:ux_entitlements_payment_kind,priority:1"`
	Kind      string    `gorm:"column:kind;not null;uniqueIndex:ux_entitlements_payment_kind,priority:2"`
	Status    string    `gorm:"column:status;default:ACTIVE"`
	CreatedAt time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:now()"`
}

func (Entitlement) TableName() string {
	return "entitlements"
}
