package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
	"github.com/frahmantamala/marketplace-settlement/internal/core/locking"
	"gorm.io/gorm"
)

// ReplayResult reports, per event id, what the replay batch did.
type ReplayResult struct {
	Rearmed  []string `json:"rearmed"`
	Skipped  []string `json:"skipped"`
	NotFound []string `json:"not_found"`
}

type ReplayConfig struct {
	MaxBatch int
	Cooldown time.Duration
}

type ReplayService struct {
	db     *gorm.DB
	repo   RepositoryAPI
	cfg    ReplayConfig
	logger *slog.Logger
}

func NewReplayService(db *gorm.DB, repo RepositoryAPI, cfg ReplayConfig, logger *slog.Logger) *ReplayService {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 100
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Minute
	}
	return &ReplayService{
		db:     db,
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// ReplayEvents rearms dead-lettered events by id. The request id makes the
// whole batch idempotent: a retried request returns the recorded result of the
// first run instead of rearming twice. One batch per cooldown window globally,
// so a panicked operator cannot cause a retry storm downstream.
func (s *ReplayService) ReplayEvents(requestID, requestedBy string, eventIDs []string) (*ReplayResult, error) {
	if requestID == "" {
		return nil, internal.NewValidationError("replay request id is required", internal.ErrCodeValidationFailed)
	}
	if len(eventIDs) == 0 {
		return nil, internal.NewValidationError("replay batch is empty", internal.ErrCodeValidationFailed)
	}
	if len(eventIDs) > s.cfg.MaxBatch {
		return nil, internal.ErrReplayBatchTooLarge
	}

	var result *ReplayResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := locking.AcquireTx(tx, "outbox:replay"); err != nil {
			return fmt.Errorf("failed to serialize replay: %w", err)
		}

		repo := s.repo.WithTx(tx)

		if prior, err := repo.GetReplayRequest(requestID); err == nil {
			var recorded ReplayResult
			if err := json.Unmarshal(prior.Result, &recorded); err != nil {
				return fmt.Errorf("failed to decode recorded replay result: %w", err)
			}
			s.logger.Info("replay request already processed, returning prior result",
				"request_id", requestID)
			result = &recorded
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to check replay request: %w", err)
		}

		latest, err := repo.LatestReplayRequest()
		if err != nil {
			return fmt.Errorf("failed to load latest replay request: %w", err)
		}
		if latest != nil && time.Since(latest.CreatedAt) < s.cfg.Cooldown {
			return internal.ErrReplayCooldownActive
		}

		now := time.Now().UTC()
		batch := &ReplayResult{
			Rearmed:  []string{},
			Skipped:  []string{},
			NotFound: []string{},
		}

		for _, eventID := range eventIDs {
			event, err := repo.GetByEventID(eventID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					batch.NotFound = append(batch.NotFound, eventID)
					continue
				}
				return fmt.Errorf("failed to load outbox event %s: %w", eventID, err)
			}

			// Only dead-lettered, never-published events qualify.
			if event.PublishedAt != nil || event.DeadLetteredAt == nil {
				batch.Skipped = append(batch.Skipped, eventID)
				continue
			}

			if err := repo.Rearm(event.ID, now); err != nil {
				return fmt.Errorf("failed to rearm outbox event %s: %w", eventID, err)
			}
			eventsReplayed.Inc()
			batch.Rearmed = append(batch.Rearmed, eventID)
		}

		recorded, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("failed to encode replay result: %w", err)
		}

		if err := repo.CreateReplayRequest(&outboxdm.ReplayRequest{
			RequestID:   requestID,
			RequestedBy: requestedBy,
			Result:      recorded,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("failed to record replay request: %w", err)
		}

		result = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("replay batch processed",
		"request_id", requestID,
		"rearmed", len(result.Rearmed),
		"skipped", len(result.Skipped),
		"not_found", len(result.NotFound))

	return result, nil
}
