package refund

import (
	refunddm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/refund"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Insert(r *refunddm.Refund) error
	GetByDedupeKey(dedupeKey string) (*refunddm.Refund, error)
	MarkSucceeded(id int64, gatewayRefundID string) error
}
