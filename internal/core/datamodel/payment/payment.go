package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusCreated        = "CREATED"
	StatusDisputed       = "DISPUTED"
	StatusChargebackWon  = "CHARGEBACK_WON"
	StatusChargebackLost = "CHARGEBACK_LOST"
)

const (
	FeesPending = "PENDING"
	FeesFinal   = "FINAL"
)

// Payment is the aggregate root for one order's money movement. Rows are never
// hard-deleted; financial records are retained indefinitely.
type Payment struct {
	ID                  int64           `gorm:"primaryKey"`
	Status              string          `gorm:"column:status;default:CREATED"`
	SourceType          string          `gorm:"column:source_type;not null;uniqueIndex:ux_payments_source,priority:1"`
	SourceID            string          `gorm:"column:source_id;not null;uniqueIndex:ux_payments_source,priority:2"`
	OrganizationID      int64           `gorm:"column:organization_id;not null;index"`
	PaymentIntentID     string          `gorm:"column:payment_intent_id;uniqueIndex"`
	PricingSnapshot     json.RawMessage `gorm:"column:pricing_snapshot;type:jsonb"`
	ProcessorFeesStatus string          `gorm:"column:processor_fees_status;default:PENDING"`
	ProcessorFeesActual *int64          `gorm:"column:processor_fees_actual"`
	CreatedAt           time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt           time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Payment) TableName() string {
	return "payments"
}

// CanTransition encodes the dispute lifecycle: CREATED -> DISPUTED, then
// DISPUTED -> CHARGEBACK_WON or CHARGEBACK_LOST. Both chargeback outcomes are
// terminal.
func CanTransition(from, to string) bool {
	switch to {
	case StatusDisputed:
		return from == StatusCreated
	case StatusChargebackWon, StatusChargebackLost:
		return from == StatusDisputed
	}
	return false
}

// PricingSnapshotData is the frozen pricing captured at checkout completion.
type PricingSnapshotData struct {
	Currency                  string `json:"currency"`
	GrossAmountCents          int64  `json:"gross_amount_cents"`
	PlatformFeeCents          int64  `json:"platform_fee_cents"`
	ProcessorFeeEstimateCents int64  `json:"processor_fee_estimate_cents"`
}

// Snapshot decodes the stored pricing snapshot. A nil snapshot decodes to the
// zero value so callers can detect the missing-currency case themselves.
func (p *Payment) Snapshot() (*PricingSnapshotData, error) {
	var snap PricingSnapshotData
	if len(p.PricingSnapshot) == 0 {
		return &snap, nil
	}
	if err := json.Unmarshal(p.PricingSnapshot, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Currency returns the snapshot currency, or "" when the snapshot is absent or
// malformed.
func (p *Payment) Currency() string {
	snap, err := p.Snapshot()
	if err != nil {
		return ""
	}
	return snap.Currency
}
