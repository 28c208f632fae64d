package postgres

import (
	"errors"
	"time"

	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
	outboxpkg "github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) outboxpkg.RepositoryAPI {
	return &OutboxRepository{
		db: db,
	}
}

func (r *OutboxRepository) WithTx(tx *gorm.DB) outboxpkg.RepositoryAPI {
	if tx == nil {
		return r
	}
	return &OutboxRepository{db: tx}
}

// Insert relies on the dedupe_key unique constraint: a colliding insert only
// refreshes last_seen_at and leaves the original event untouched.
func (r *OutboxRepository) Insert(event *outboxdm.OutboxEvent) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "dedupe_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_seen_at": event.LastSeenAt,
		}),
	}).Create(event).Error
}

func (r *OutboxRepository) GetByDedupeKey(dedupeKey string) (*outboxdm.OutboxEvent, error) {
	var event outboxdm.OutboxEvent
	err := r.db.Where("dedupe_key = ?", dedupeKey).First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *OutboxRepository) GetByEventID(eventID string) (*outboxdm.OutboxEvent, error) {
	var event outboxdm.OutboxEvent
	err := r.db.Where("event_id = ?", eventID).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *OutboxRepository) GetDue(now time.Time, limit int) ([]*outboxdm.OutboxEvent, error) {
	var events []*outboxdm.OutboxEvent
	err := r.db.
		Where("published_at IS NULL AND dead_lettered_at IS NULL AND next_attempt_at <= ?", now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Claim leases one due event by pushing next_attempt_at forward under the
// same due condition GetDue selected on. Only one consumer instance wins the
// conditional update; the losers see zero rows and skip the event.
func (r *OutboxRepository) Claim(id int64, now, until time.Time) (bool, error) {
	res := r.db.Model(&outboxdm.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL AND dead_lettered_at IS NULL AND next_attempt_at <= ?", id, now).
		Update("next_attempt_at", until)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *OutboxRepository) MarkPublished(id int64, at time.Time) error {
	return r.db.Model(&outboxdm.OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"published_at": at,
		"reason_code":  nil,
		"last_error":   nil,
	}).Error
}

func (r *OutboxRepository) MarkFailed(id int64, attempts int, nextAttemptAt time.Time, reasonCode, lastError string) error {
	return r.db.Model(&outboxdm.OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempts":        attempts,
		"next_attempt_at": nextAttemptAt,
		"reason_code":     reasonCode,
		"last_error":      lastError,
	}).Error
}

func (r *OutboxRepository) MarkDeadLettered(id int64, at time.Time, reasonCode, lastError string) error {
	return r.db.Model(&outboxdm.OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"dead_lettered_at": at,
		"reason_code":      reasonCode,
		"last_error":       lastError,
	}).Error
}

// Rearm resets a dead-lettered event so the consumer picks it up again.
func (r *OutboxRepository) Rearm(id int64, now time.Time) error {
	return r.db.Model(&outboxdm.OutboxEvent{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempts":         0,
		"dead_lettered_at": nil,
		"next_attempt_at":  now,
		"reason_code":      nil,
		"last_error":       nil,
	}).Error
}

func (r *OutboxRepository) CreateReplayRequest(req *outboxdm.ReplayRequest) error {
	return r.db.Create(req).Error
}

func (r *OutboxRepository) GetReplayRequest(requestID string) (*outboxdm.ReplayRequest, error) {
	var req outboxdm.ReplayRequest
	err := r.db.Where("request_id = ?", requestID).First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *OutboxRepository) LatestReplayRequest() (*outboxdm.ReplayRequest, error) {
	var req outboxdm.ReplayRequest
	err := r.db.Order("created_at DESC").First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}
