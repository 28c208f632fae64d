package postgres

import (
	ledgerdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/ledger"
	ledgerpkg "github.com/frahmantamala/marketplace-settlement/internal/ledger"
	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) ledgerpkg.RepositoryAPI {
	return &LedgerRepository{
		db: db,
	}
}

func (r *LedgerRepository) WithTx(tx *gorm.DB) ledgerpkg.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &LedgerRepository{db: tx}
}

func (r *LedgerRepository) Append(entries []*ledgerdm.LedgerEntry) error {
	return r.db.Create(entries).Error
}

func (r *LedgerRepository) ExistsCausation(paymentID int64, causationID string) (bool, error) {
	var count int64
	err := r.db.Model(&ledgerdm.LedgerEntry{}).
		Where("payment_id = ? AND causation_id = ?", paymentID, causationID).
		Count(&count).Error
	return count > 0, err
}

func (r *LedgerRepository) SumByPayment(paymentID int64) (int64, error) {
	var sum int64
	err := r.db.Model(&ledgerdm.LedgerEntry{}).
		Where("payment_id = ?", paymentID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) SumProcessorFees(paymentID int64) (int64, error) {
	var sum int64
	err := r.db.Model(&ledgerdm.LedgerEntry{}).
		Where("payment_id = ? AND entry_type IN ?", paymentID, []ledgerdm.EntryType{
			ledgerdm.EntryProcessorFeesPending,
			ledgerdm.EntryProcessorFeesFinal,
			ledgerdm.EntryProcessorFeesAdjustment,
		}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *LedgerRepository) ListByPayment(paymentID int64) ([]*ledgerdm.LedgerEntry, error) {
	var entries []*ledgerdm.LedgerEntry
	err := r.db.Where("payment_id = ?", paymentID).Order("id ASC").Find(&entries).Error
	return entries, err
}
