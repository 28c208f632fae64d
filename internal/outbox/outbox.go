package outbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Insert(event *outboxdm.OutboxEvent) error
	GetByDedupeKey(dedupeKey string) (*outboxdm.OutboxEvent, error)
	GetByEventID(eventID string) (*outboxdm.OutboxEvent, error)
	GetDue(now time.Time, limit int) ([]*outboxdm.OutboxEvent, error)
	Claim(id int64, now, until time.Time) (bool, error)
	MarkPublished(id int64, at time.Time) error
	MarkFailed(id int64, attempts int, nextAttemptAt time.Time, reasonCode, lastError string) error
	MarkDeadLettered(id int64, at time.Time, reasonCode, lastError string) error
	Rearm(id int64, now time.Time) error
	CreateReplayRequest(req *outboxdm.ReplayRequest) error
	GetReplayRequest(requestID string) (*outboxdm.ReplayRequest, error)
	LatestReplayRequest() (*outboxdm.ReplayRequest, error)
}

// ProducerAPI records an event inside the caller's transaction so the event
// row commits or rolls back together with the domain mutation it narrates.
type ProducerAPI interface {
	Record(tx *gorm.DB, eventType, dedupeKey string, payload interface{}) (string, error)
}

type Producer struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewProducer(repo RepositoryAPI, logger *slog.Logger) *Producer {
	return &Producer{
		repo:   repo,
		logger: logger,
	}
}

// Record enqueues one outbox event. A dedupe-key collision is not an error:
// the existing event id is returned so enqueueing is idempotent under retry.
func (p *Producer) Record(tx *gorm.DB, eventType, dedupeKey string, payload interface{}) (string, error) {
	if eventType == "" || dedupeKey == "" {
		return "", fmt.Errorf("outbox event requires event type and dedupe key")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	repo := p.repo.WithTx(tx)
	now := time.Now().UTC()

	event := &outboxdm.OutboxEvent{
		EventID:       uuid.NewString(),
		DedupeKey:     dedupeKey,
		EventType:     eventType,
		Payload:       body,
		NextAttemptAt: now,
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}

	if err := repo.Insert(event); err != nil {
		return "", fmt.Errorf("failed to insert outbox event: %w", err)
	}

	// The insert is a no-op on dedupe collision, so read back the canonical
	// row to learn which event id actually owns the key.
	stored, err := repo.GetByDedupeKey(dedupeKey)
	if err != nil {
		return "", fmt.Errorf("failed to load outbox event after insert: %w", err)
	}

	if stored.EventID != event.EventID {
		p.logger.Info("outbox event deduplicated",
			"event_type", eventType,
			"dedupe_key", dedupeKey,
			"event_id", stored.EventID)
	}

	return stored.EventID, nil
}
