package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"gorm.io/gorm"
)

const (
	EventPayoutHeld      = "payout.held"
	EventPayoutBlocked   = "payout.blocked"
	EventPayoutUnblocked = "payout.unblocked"
	EventPayoutCancelled = "payout.cancelled"
	EventPayoutReleasing = "payout.releasing"
)

type Config struct {
	HoldDays int
}

type Service struct {
	db       *gorm.DB
	repo     RepositoryAPI
	producer outbox.ProducerAPI
	cfg      Config
	logger   *slog.Logger
}

func NewService(db *gorm.DB, repo RepositoryAPI, producer outbox.ProducerAPI, cfg Config, logger *slog.Logger) *Service {
	if cfg.HoldDays <= 0 {
		cfg.HoldDays = 7
	}
	return &Service{
		db:       db,
		repo:     repo,
		producer: producer,
		cfg:      cfg,
		logger:   logger,
	}
}

type payoutEventPayload struct {
	PayoutID        int64  `json:"payout_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	AmountCents     int64  `json:"amount_cents,omitempty"`
	Currency        string `json:"currency,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Actor           string `json:"actor,omitempty"`
}

// CreateOrRefresh records a held payout for a succeeded payment intent. The
// payment-intent id is the idempotency key: a webhook redelivery rewrites the
// amounts and hold window, returns the payout to HELD and clears any block
// reason. CANCELLED is terminal and RELEASING is already past the hold, so
// neither is revived.
func (s *Service) CreateOrRefresh(ctx context.Context, paymentIntentID, recipientAccountID string, meta *Metadata, paidAt time.Time) (*payoutdm.PendingPayout, error) {
	if meta == nil {
		return nil, internal.NewPreconditionError("payout metadata is missing or does not reconcile", internal.ErrCodeInvalidPayoutMetadata)
	}
	if paymentIntentID == "" || recipientAccountID == "" {
		return nil, internal.NewValidationError("payment intent id and recipient account are required", internal.ErrCodeValidationFailed)
	}

	holdUntil := paidAt.UTC().Add(time.Duration(s.cfg.HoldDays) * 24 * time.Hour)

	var out *payoutdm.PendingPayout
	err := s.db.Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		existing, err := repo.GetByPaymentIntentID(paymentIntentID)
		if err == nil {
			if existing.Status == payoutdm.StatusHeld || existing.Status == payoutdm.StatusBlocked {
				if err := repo.Refresh(existing.ID, meta.AmountCents, meta.GrossAmountCents, meta.PlatformFeeCents, holdUntil); err != nil {
					return fmt.Errorf("failed to refresh pending payout: %w", err)
				}
				existing.AmountCents = meta.AmountCents
				existing.GrossAmountCents = meta.GrossAmountCents
				existing.PlatformFeeCents = meta.PlatformFeeCents
				existing.HoldUntil = holdUntil
				existing.Status = payoutdm.StatusHeld
				existing.BlockedReason = nil
			}
			out = existing
			return nil
		}
		if !errors.Is(err, internal.ErrPayoutNotFound) {
			return err
		}

		p := &payoutdm.PendingPayout{
			PaymentIntentID:    paymentIntentID,
			RecipientAccountID: recipientAccountID,
			SourceType:         meta.SourceType,
			SourceID:           meta.SourceID,
			Currency:           meta.Currency,
			GrossAmountCents:   meta.GrossAmountCents,
			PlatformFeeCents:   meta.PlatformFeeCents,
			FeeMode:            meta.FeeMode,
			AmountCents:        meta.AmountCents,
			HoldUntil:          holdUntil,
			Status:             payoutdm.StatusHeld,
		}
		if err := repo.Create(p); err != nil {
			return fmt.Errorf("failed to create pending payout: %w", err)
		}

		_, err = s.producer.Record(tx, EventPayoutHeld, "payout:held:"+paymentIntentID, payoutEventPayload{
			PayoutID:        p.ID,
			PaymentIntentID: paymentIntentID,
			Status:          payoutdm.StatusHeld,
			AmountCents:     p.AmountCents,
			Currency:        p.Currency,
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue payout held event: %w", err)
		}

		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pending payout recorded",
		"payout_id", out.ID,
		"payment_intent_id", paymentIntentID,
		"amount_cents", out.AmountCents,
		"hold_until", out.HoldUntil,
		"status", out.Status)

	return out, nil
}

// Block moves a payout to BLOCKED so the release sweep skips it.
func (s *Service) Block(ctx context.Context, paymentIntentID, reason string) (*payoutdm.PendingPayout, error) {
	return s.transition(ctx, paymentIntentID, payoutdm.StatusBlocked, reason)
}

// Unblock returns a blocked payout to HELD.
func (s *Service) Unblock(ctx context.Context, paymentIntentID string) (*payoutdm.PendingPayout, error) {
	return s.transition(ctx, paymentIntentID, payoutdm.StatusHeld, "")
}

// Cancel terminally cancels a payout. A blocked payout must be unblocked
// first; cancellation is only reachable from HELD or RELEASING.
func (s *Service) Cancel(ctx context.Context, paymentIntentID, reason string) (*payoutdm.PendingPayout, error) {
	return s.transition(ctx, paymentIntentID, payoutdm.StatusCancelled, reason)
}

func (s *Service) transition(ctx context.Context, paymentIntentID, to, reason string) (*payoutdm.PendingPayout, error) {
	var out *payoutdm.PendingPayout

	err := s.db.Transaction(func(tx *gorm.DB) error {
		p, err := s.TransitionTx(tx, paymentIntentID, to, reason, internal.ActorFromContext(ctx))
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TransitionTx applies one state-machine transition inside the caller's
// transaction and enqueues the matching event. The dispute flow uses this to
// move a payout and settle a chargeback atomically.
func (s *Service) TransitionTx(tx *gorm.DB, paymentIntentID, to, reason, actor string) (*payoutdm.PendingPayout, error) {
	repo := s.repo.WithTx(tx)

	p, err := repo.GetByPaymentIntentID(paymentIntentID)
	if err != nil {
		return nil, err
	}

	if p.Status == to {
		// Already there; state machines absorb webhook redeliveries.
		return p, nil
	}
	if !payoutdm.CanTransition(p.Status, to) {
		return nil, internal.NewConflictError(
			fmt.Sprintf("payout cannot move from %s to %s", p.Status, to),
			internal.ErrCodeInvalidPayoutStatus)
	}

	var blockedReason *string
	if to == payoutdm.StatusBlocked && reason != "" {
		blockedReason = &reason
	}

	moved, err := repo.UpdateStatus(p.ID, p.Status, to, blockedReason)
	if err != nil {
		return nil, fmt.Errorf("failed to update payout status: %w", err)
	}
	if !moved {
		// Lost the race to a concurrent transition.
		return nil, internal.ErrInvalidPayoutStatus
	}

	from := p.Status
	p.Status = to
	p.BlockedReason = blockedReason

	_, err = s.producer.Record(tx, eventForTransition(to, from),
		fmt.Sprintf("payout:%s:%s:%s", to, paymentIntentID, from),
		payoutEventPayload{
			PayoutID:        p.ID,
			PaymentIntentID: paymentIntentID,
			Status:          to,
			Reason:          reason,
			Actor:           actor,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue payout transition event: %w", err)
	}

	s.logger.Info("payout transitioned",
		"payout_id", p.ID,
		"payment_intent_id", paymentIntentID,
		"from", from,
		"to", to,
		"reason", reason,
		"actor", actor)

	return p, nil
}

func eventForTransition(to, from string) string {
	switch to {
	case payoutdm.StatusBlocked:
		return EventPayoutBlocked
	case payoutdm.StatusHeld:
		return EventPayoutUnblocked
	case payoutdm.StatusCancelled:
		return EventPayoutCancelled
	case payoutdm.StatusReleasing:
		return EventPayoutReleasing
	}
	return "payout." + from
}

// Get loads one payout by payment intent id.
func (s *Service) Get(ctx context.Context, paymentIntentID string) (*payoutdm.PendingPayout, error) {
	return s.repo.GetByPaymentIntentID(paymentIntentID)
}

// GetTx loads one payout inside the caller's transaction.
func (s *Service) GetTx(tx *gorm.DB, paymentIntentID string) (*payoutdm.PendingPayout, error) {
	return s.repo.WithTx(tx).GetByPaymentIntentID(paymentIntentID)
}

// SweepDueForRelease moves every HELD payout whose hold has elapsed into
// RELEASING and emits one releasing event each. Downstream transfer execution
// consumes those events; this service's job ends at RELEASING.
func (s *Service) SweepDueForRelease(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	due, err := s.repo.ListDueForRelease(time.Now().UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list payouts due for release: %w", err)
	}

	released := 0
	for _, p := range due {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			_, err := s.TransitionTx(tx, p.PaymentIntentID, payoutdm.StatusReleasing, "", "release-sweep")
			return err
		})
		if err != nil {
			// A dispute may have blocked it between list and transition.
			if errors.Is(err, internal.ErrInvalidPayoutStatus) || isInvalidStatus(err) {
				s.logger.Warn("payout no longer eligible for release",
					"payout_id", p.ID,
					"payment_intent_id", p.PaymentIntentID)
				continue
			}
			return released, err
		}
		released++
	}

	if released > 0 {
		s.logger.Info("release sweep completed", "released", released, "scanned", len(due))
	}
	return released, nil
}

func isInvalidStatus(err error) bool {
	appErr, ok := internal.IsAppError(err)
	return ok && appErr.Code == internal.ErrCodeInvalidPayoutStatus
}
