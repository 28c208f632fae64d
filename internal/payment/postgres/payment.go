package postgres

import (
	"errors"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	paymentdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/marketplace-settlement/internal/payment"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) WithTx(tx *gorm.DB) paymentpkg.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(p *paymentdm.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id int64) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByPaymentIntentID(paymentIntentID string) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	err := r.db.Where("payment_intent_id = ?", paymentIntentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetBySource(sourceType, sourceID string) (*paymentdm.Payment, error) {
	var p paymentdm.Payment
	err := r.db.Where("source_type = ? AND source_id = ?", sourceType, sourceID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&paymentdm.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}).Error
}

func (r *PaymentRepository) SetProcessorFees(id int64, feesStatus string, actualCents int64) error {
	return r.db.Model(&paymentdm.Payment{}).Where("id = ?", id).Updates(map[string]interface{}{
		"processor_fees_status": feesStatus,
		"processor_fees_actual": actualCents,
		"updated_at":            time.Now().UTC(),
	}).Error
}
