package eventlog

import (
	"encoding/json"
	"time"
)

// EventLog is an append-only audit trail row for operator and system actions
// against a payment.
type EventLog struct {
	ID        int64           `gorm:"primaryKey"`
	PaymentID int64           `gorm:"column:payment_id;index"`
	EventType string          `gorm:"column:event_type;not null"`
	Actor     string          `gorm:"column:actor"`
	Payload   json.RawMessage `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;default:now()"`
}

func (EventLog) TableName() string {
	return "event_logs"
}
