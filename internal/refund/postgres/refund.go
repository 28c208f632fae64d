package postgres

import (
	"time"

	refunddm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/refund"
	"github.com/frahmantamala/marketplace-settlement/internal/refund"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RefundRepository struct {
	db *gorm.DB
}

func NewRefundRepository(db *gorm.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) WithTx(tx *gorm.DB) refund.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &RefundRepository{db: tx}
}

// Insert is a no-op when the dedupe key already exists; the caller reads the
// row back to see which invocation won.
func (r *RefundRepository) Insert(rf *refunddm.Refund) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dedupe_key"}},
		DoNothing: true,
	}).Create(rf).Error
}

func (r *RefundRepository) GetByDedupeKey(dedupeKey string) (*refunddm.Refund, error) {
	var rf refunddm.Refund
	if err := r.db.Where("dedupe_key = ?", dedupeKey).First(&rf).Error; err != nil {
		return nil, err
	}
	return &rf, nil
}

func (r *RefundRepository) MarkSucceeded(id int64, gatewayRefundID string) error {
	return r.db.Model(&refunddm.Refund{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":            refunddm.StatusSucceeded,
			"gateway_refund_id": gatewayRefundID,
			"updated_at":        time.Now().UTC(),
		}).Error
}
