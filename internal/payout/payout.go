package payout

import (
	"strconv"
	"time"

	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Create(p *payoutdm.PendingPayout) error
	GetByID(id int64) (*payoutdm.PendingPayout, error)
	GetByPaymentIntentID(paymentIntentID string) (*payoutdm.PendingPayout, error)
	UpdateStatus(id int64, from, to string, blockedReason *string) (bool, error)
	Refresh(id int64, amountCents, grossAmountCents, platformFeeCents int64, holdUntil time.Time) error
	ListDueForRelease(now time.Time, limit int) ([]*payoutdm.PendingPayout, error)
}

// Metadata is the payout instruction the processor echoes back on the
// payment-intent webhook. All amounts arrive as decimal strings.
type Metadata struct {
	SourceType       string
	SourceID         string
	Currency         string
	GrossAmountCents int64
	PlatformFeeCents int64
	AmountCents      int64
	FeeMode          string
}

// ParseMetadata decodes and cross-checks the payout metadata map. Any missing
// key, unparseable amount, unknown fee mode, or an amount that disagrees with
// gross minus platform fee returns nil: a payout is never created from
// numbers that do not reconcile.
func ParseMetadata(m map[string]string) *Metadata {
	if m == nil {
		return nil
	}

	sourceType := m["source_type"]
	sourceID := m["source_id"]
	currency := m["currency"]
	feeMode := m["fee_mode"]
	if sourceType == "" || sourceID == "" || len(currency) != 3 {
		return nil
	}
	if !payoutdm.ValidFeeMode(feeMode) {
		return nil
	}

	gross, ok := parseCents(m["gross_amount_cents"])
	if !ok || gross <= 0 {
		return nil
	}
	platformFee, ok := parseCents(m["platform_fee_cents"])
	if !ok || platformFee < 0 || platformFee > gross {
		return nil
	}
	amount, ok := parseCents(m["amount_cents"])
	if !ok || amount != gross-platformFee {
		return nil
	}

	return &Metadata{
		SourceType:       sourceType,
		SourceID:         sourceID,
		Currency:         currency,
		GrossAmountCents: gross,
		PlatformFeeCents: platformFee,
		AmountCents:      amount,
		FeeMode:          feeMode,
	}
}

func parseCents(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
