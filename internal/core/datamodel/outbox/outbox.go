package outbox

import (
	"encoding/json"
	"time"
)

// OutboxEvent is written in the same transaction as the domain mutation it
// narrates and later dispatched by the consumer worker.
type OutboxEvent struct {
	ID             int64           `gorm:"primaryKey"`
	EventID        string          `gorm:"column:event_id;not null;uniqueIndex"`
	DedupeKey      string          `gorm:"column:dedupe_key;not null;uniqueIndex"`
	EventType      string          `gorm:"column:event_type;not null;index"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb"`
	Attempts       int             `gorm:"column:attempts;default:0"`
	NextAttemptAt  time.Time       `gorm:"column:next_attempt_at;index"`
	PublishedAt    *time.Time      `gorm:"column:published_at"`
	DeadLetteredAt *time.Time      `gorm:"column:dead_lettered_at"`
	ReasonCode     *string         `gorm:"column:reason_code"`
	LastError      *string         `gorm:"column:last_error"`
	FirstSeenAt    time.Time       `gorm:"column:first_seen_at"`
	LastSeenAt     time.Time       `gorm:"column:last_seen_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// Pending reports whether the event is still waiting to be delivered.
func (e *OutboxEvent) Pending() bool {
	return e.PublishedAt == nil && e.DeadLetteredAt == nil
}

// ReplayRequest records one operator replay batch. The unique request id makes
// replays idempotent and the newest row anchors the global cooldown window.
type ReplayRequest struct {
	ID          int64           `gorm:"primaryKey"`
	RequestID   string          `gorm:"column:request_id;not null;uniqueIndex"`
	RequestedBy string          `gorm:"column:requested_by"`
	Result      json.RawMessage `gorm:"column:result;type:jsonb"`
	CreatedAt   time.Time       `gorm:"column:created_at;index"`
}

func (ReplayRequest) TableName() string {
	return "outbox_replay_requests"
}
