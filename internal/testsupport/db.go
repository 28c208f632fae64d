package testsupport

import (
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// SQLite-compatible mirrors of the production tables. Postgres column defaults
// like now() and the jsonb type don't parse in SQLite, so the test schema
// declares plain columns and relies on gorm's timestamp conventions instead.

type PaymentTable struct {
	ID                  int64     `gorm:"primaryKey"`
	Status              string    `gorm:"column:status;default:CREATED"`
	SourceType          string    `gorm:"column:source_type;not null;uniqueIndex:ux_payments_source,priority:1"`
	SourceID            string    `gorm:"column:source_id;not null;uniqueIndex:ux_payments_source,priority:2"`
	OrganizationID      int64     `gorm:"column:organization_id;not null;index"`
	PaymentIntentID     string    `gorm:"column:payment_intent_id;uniqueIndex"`
	PricingSnapshot     string    `gorm:"column:pricing_snapshot;type:text"`
	ProcessorFeesStatus string    `gorm:"column:processor_fees_status;default:PENDING"`
	ProcessorFeesActual *int64    `gorm:"column:processor_fees_actual"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (PaymentTable) TableName() string { return "payments" }

type LedgerEntryTable struct {
	ID            int64     `gorm:"primaryKey"`
	PaymentID     int64     `gorm:"column:payment_id;not null;index:ix_ledger_payment;uniqueIndex:ux_ledger_causation,priority:1"`
	EntryType     string    `gorm:"column:entry_type;not null;uniqueIndex:ux_ledger_causation,priority:3"`
	AmountCents   int64     `gorm:"column:amount_cents;not null"`
	Currency      string    `gorm:"column:currency;not null"`
	SourceType    string    `gorm:"column:source_type"`
	SourceID      string    `gorm:"column:source_id"`
	CausationID   string    `gorm:"column:causation_id;not null;uniqueIndex:ux_ledger_causation,priority:2"`
	CorrelationID string    `gorm:"column:correlation_id"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (LedgerEntryTable) TableName() string { return "ledger_entries" }

type PendingPayoutTable struct {
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
	HoldUntil          time.Time `gorm:"column:hold_until"`
	Status             string    `gorm:"column:status;default:HELD;index"`
	BlockedReason      *string   `gorm:"column:blocked_reason"`
	CreatedAt          time.Time `gorm:"column:created_at"`
	UpdatedAt          time.Time `gorm:"column:updated_at"`
}

func (PendingPayoutTable) TableName() string { return "pending_payouts" }

type OutboxEventTable struct {
	ID             int64      `gorm:"primaryKey"`
	EventID        string     `gorm:"column:event_id;not null;uniqueIndex"`
	DedupeKey      string     `gorm:"column:dedupe_key;not null;uniqueIndex"`
	EventType      string     `gorm:"column:event_type;not null"`
	Payload        string     `gorm:"column:payload;type:text"`
	Attempts       int        `gorm:"column:attempts;default:0"`
	NextAttemptAt  time.Time  `gorm:"column:next_attempt_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
	ReasonCode     *string    `gorm:"column:reason_code"`
	LastError      *string    `gorm:"column:last_error"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	LastSeenAt     time.Time  `gorm:"column:last_seen_at"`
}

func (OutboxEventTable) TableName() string { return "outbox_events" }

type ReplayRequestTable struct {
	ID          int64     `gorm:"primaryKey"`
	RequestID   string    `gorm:"column:request_id;not null;uniqueIndex"`
	RequestedBy string    `gorm:"column:requested_by"`
	Result      string    `gorm:"column:result;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (ReplayRequestTable) TableName() string { return "outbox_replay_requests" }

type RefundTable struct {
	ID              int64     `gorm:"primaryKey"`
	DedupeKey       string    `gorm:"column:dedupe_key;not null;uniqueIndex"`
	SourceType      string    `gorm:"column:source_type;not null"`
	SourceID        string    `gorm:"column:source_id;not null;index"`
	PaymentIntentID string    `gorm:"column:payment_intent_id;not null;index"`
	Status          string    `gorm:"column:status;not null"`
	GatewayRefundID string    `gorm:"column:gateway_refund_id"`
	Reason          string    `gorm:"column:reason"`
	RefundedBy      string    `gorm:"column:refunded_by"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (RefundTable) TableName() string { return "refunds" }

type EntitlementTable struct {
	ID        int64     `gorm:"primaryKey"`
	PaymentID int64     `gorm:"column:payment_id;not null;uniqueIndex:ux_entitlements_payment_kind,priority:1"`
	Kind      string    `gorm:"column:kind;not null;uniqueIndex:ux_entitlements_payment_kind,priority:2"`
	Status    string    `gorm:"column:status;default:ACTIVE"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (EntitlementTable) TableName() string { return "entitlements" }

type EventLogTable struct {
	ID        int64     `gorm:"primaryKey"`
	PaymentID int64     `gorm:"column:payment_id;index"`
	EventType string    `gorm:"column:event_type;not null"`
	Actor     string    `gorm:"column:actor"`
	Payload   string    `gorm:"column:payload;type:text"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (EventLogTable) TableName() string { return "event_logs" }

// OpenDB opens an in-memory SQLite database with the full settlement schema.
func OpenDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&PaymentTable{},
		&LedgerEntryTable{},
		&PendingPayoutTable{},
		&OutboxEventTable{},
		&ReplayRequestTable{},
		&RefundTable{},
		&EntitlementTable{},
		&EventLogTable{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
