package postgres

import (
	"time"

	entitlementdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/entitlement"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EntitlementRepository struct {
	db *gorm.DB
}

func NewEntitlementRepository(db *gorm.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

func (r *EntitlementRepository) WithTx(tx *gorm.DB) entitlement.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &EntitlementRepository{db: tx}
}

// Grant inserts the entitlement, ignoring a duplicate (payment, kind) pair so
// redelivered grants stay idempotent.
func (r *EntitlementRepository) Grant(e *entitlementdm.Entitlement) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(e).Error
}

func (r *EntitlementRepository) ListByPayment(paymentID int64) ([]*entitlementdm.Entitlement, error) {
	var entitlements []*entitlementdm.Entitlement
	err := r.db.Where("payment_id = ?", paymentID).Order("id ASC").Find(&entitlements).Error
	if err != nil {
		return nil, err
	}
	return entitlements, nil
}

func (r *EntitlementRepository) UpdateStatusByPayment(paymentID int64, from []string, to string) (int64, error) {
	res := r.db.Model(&entitlementdm.Entitlement{}).
		Where("payment_id = ? AND status IN ?", paymentID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
