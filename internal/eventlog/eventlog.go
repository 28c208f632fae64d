package eventlog

import (
	"encoding/json"
	"fmt"

	eventlogdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/eventlog"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Append(entry *eventlogdm.EventLog) error
	ListByPayment(paymentID int64) ([]*eventlogdm.EventLog, error)
}

// Append writes one audit row inside the caller's transaction.
func Append(tx *gorm.DB, repo RepositoryAPI, paymentID int64, eventType, actor string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	if err := repo.WithTx(tx).Append(&eventlogdm.EventLog{
		PaymentID: paymentID,
		EventType: eventType,
		Actor:     actor,
		Payload:   body,
	}); err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}
