package payment

import (
	paymentdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payment"
	"gorm.io/gorm"
)

// RepositoryAPI covers the payment aggregate. Payments are mutated only by the
// fee-reconciliation and dispute state machines and never hard-deleted.
type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Create(p *paymentdm.Payment) error
	GetByID(id int64) (*paymentdm.Payment, error)
	GetByPaymentIntentID(paymentIntentID string) (*paymentdm.Payment, error)
	GetBySource(sourceType, sourceID string) (*paymentdm.Payment, error)
	UpdateStatus(id int64, status string) error
	SetProcessorFees(id int64, feesStatus string, actualCents int64) error
}
