package postgres

import (
	eventlogdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/eventlog"
	"github.com/frahmantamala/marketplace-settlement/internal/eventlog"
	"gorm.io/gorm"
)

type EventLogRepository struct {
	db *gorm.DB
}

func NewEventLogRepository(db *gorm.DB) *EventLogRepository {
	return &EventLogRepository{db: db}
}

func (r *EventLogRepository) WithTx(tx *gorm.DB) eventlog.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &EventLogRepository{db: tx}
}

func (r *EventLogRepository) Append(entry *eventlogdm.EventLog) error {
	return r.db.Create(entry).Error
}

func (r *EventLogRepository) ListByPayment(paymentID int64) ([]*eventlogdm.EventLog, error) {
	var entries []*eventlogdm.EventLog
	err := r.db.Where("payment_id = ?", paymentID).Order("id ASC").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
