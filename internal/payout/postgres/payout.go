package postgres

import (
	"errors"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	"gorm.io/gorm"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) WithTx(tx *gorm.DB) payout.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &PayoutRepository{db: tx}
}

func (r *PayoutRepository) Create(p *payoutdm.PendingPayout) error {
	return r.db.Create(p).Error
}

func (r *PayoutRepository) GetByID(id int64) (*payoutdm.PendingPayout, error) {
	var p payoutdm.PendingPayout
	if err := r.db.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepository) GetByPaymentIntentID(paymentIntentID string) (*payoutdm.PendingPayout, error) {
	var p payoutdm.PendingPayout
	err := r.db.Where("payment_intent_id = ?", paymentIntentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpdateStatus moves the row only if it is still in the expected status. The
// boolean result is false when a concurrent writer got there first.
func (r *PayoutRepository) UpdateStatus(id int64, from, to string, blockedReason *string) (bool, error) {
	updates := map[string]interface{}{
		"status":         to,
		"blocked_reason": blockedReason,
		"updated_at":     time.Now().UTC(),
	}
	res := r.db.Model(&payoutdm.PendingPayout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Refresh re-applies webhook metadata to a live payout: amounts and hold are
// rewritten, the status returns to HELD and any block reason is cleared.
// RELEASING and CANCELLED rows are out of its reach.
func (r *PayoutRepository) Refresh(id int64, amountCents, grossAmountCents, platformFeeCents int64, holdUntil time.Time) error {
	return r.db.Model(&payoutdm.PendingPayout{}).
		Where("id = ? AND status IN ?", id, []string{payoutdm.StatusHeld, payoutdm.StatusBlocked}).
		Updates(map[string]interface{}{
			"amount_cents":       amountCents,
			"gross_amount_cents": grossAmountCents,
			"platform_fee_cents": platformFeeCents,
			"hold_until":         holdUntil,
			"status":             payoutdm.StatusHeld,
			"blocked_reason":     nil,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *PayoutRepository) ListDueForRelease(now time.Time, limit int) ([]*payoutdm.PendingPayout, error) {
	var payouts []*payoutdm.PendingPayout
	err := r.db.
		Where("status = ? AND hold_until <= ?", payoutdm.StatusHeld, now).
		Order("hold_until ASC").
		Limit(limit).
		Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}
