package ledger

import (
	"time"
)

type EntryType string

const (
	EntryGross                   EntryType = "GROSS"
	EntryPlatformFee             EntryType = "PLATFORM_FEE"
	EntryProcessorFeesPending    EntryType = "PROCESSOR_FEES_PENDING"
	EntryProcessorFeesFinal      EntryType = "PROCESSOR_FEES_FINAL"
	EntryProcessorFeesAdjustment EntryType = "PROCESSOR_FEES_ADJUSTMENT"
	EntryRefund                  EntryType = "REFUND"
)

// LedgerEntry is an immutable signed-amount fact. Corrections are made by
// appending offsetting entries, never by editing rows.
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey"`
	PaymentID     int64     `gorm:"column:payment_id;not null;index:ix_ledger_payment;uniqueIndex:ux_ledger_causation,priority:1"`
	EntryType     EntryType `gorm:"column:entry_type;not null;uniqueIndex:ux_ledger_causation,priority:3"`
	AmountCents   int64     `gorm:"column:amount_cents;not null"`
	Currency      string    `gorm:"column:currency;not null"`
	SourceType    string    `gorm:"column:source_type"`
	SourceID      string    `gorm:"column:source_id"`
	CausationID   string    `gorm:"column:causation_id;not null;uniqueIndex:ux_ledger_causation,priority:2"`
	CorrelationID string    `gorm:"column:correlation_id"`
	CreatedAt     time.Time `gorm:"column:created_at;default:now()"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// IsProcessorFee reports whether the entry type carries processor fee amounts.
func (t EntryType) IsProcessorFee() bool {
	switch t {
	case EntryProcessorFeesPending, EntryProcessorFeesFinal, EntryProcessorFeesAdjustment:
		return true
	}
	return false
}
