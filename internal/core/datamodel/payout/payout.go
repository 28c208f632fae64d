package payout

import (
	"time"
)

const (
	StatusHeld      = "HELD"
	StatusReleasing = "RELEASING"
	StatusBlocked   = "BLOCKED"
	StatusCancelled = "CANCELLED"
)

const (
	FeeModeIncluded = "INCLUDED"
	FeeModeAdded    = "ADDED"
	FeeModeOnTop    = "ON_TOP"
)

// PendingPayout is one processor payment-intent worth of platform-held funds
// awaiting release to an organization's connected account.
type PendingPayout struct {
	ID                 int64     `gorm:"primaryKey"`
	PaymentIntentID    string    `gorm:"column:payment_intent_id;not null;uniqueIndex"`
	RecipientAccountID string    `gorm:"column:recipient_account_id;not null"`
	SourceType         string    `gorm:"column:source_type;not null"`
	SourceID           string    `gorm:"column:source_id;not null"`
	Currency           string    `gorm:"column:currency;not null"`
	GrossAmountCents   int64     `gorm:"column:gross_amount_cents;not null"`
	PlatformFeeCents   int64     `gorm:"column:platform_fee_cents;not null"`
	FeeMode            string    `gorm:"column:fee_mode;not null"`
	AmountCents        int64     `gorm:"column:amount_cents;not null"`
	HoldUntil          time.Time `gorm:"column:hold_until;not null"`
	Status             string    `gorm:"column:status;default:HELD;index"`
	BlockedReason      *string   `gorm:"column:blocked_reason"`
	CreatedAt          time.Time `gorm:"column:created_at;default:now()"`
	UpdatedAt          time.Time `gorm:"column:updated_at;default:now()"`
}

func (PendingPayout) TableName() string {
	return "pending_payouts"
}

// ValidFeeMode reports whether mode is one of the declared fee modes.
func ValidFeeMode(mode string) bool {
	switch mode {
	case FeeModeIncluded, FeeModeAdded, FeeModeOnTop:
		return true
	}
	return false
}

// CanTransition encodes the payout state machine:
// HELD|RELEASING -> BLOCKED, BLOCKED -> HELD, HELD|RELEASING -> CANCELLED,
// HELD -> RELEASING. CANCELLED is terminal.
func CanTransition(from, to string) bool {
	switch to {
	case StatusBlocked:
		return from == StatusHeld || from == StatusReleasing
	case StatusHeld:
		return from == StatusBlocked
	case StatusCancelled:
		return from == StatusHeld || from == StatusReleasing
	case StatusReleasing:
		return from == StatusHeld
	}
	return false
}
