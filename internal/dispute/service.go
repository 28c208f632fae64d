package dispute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	paymentdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payment"
	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/core/locking"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	"github.com/frahmantamala/marketplace-settlement/internal/eventlog"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	"gorm.io/gorm"
)

const (
	EventPaymentDisputed       = "payment.disputed"
	EventPaymentChargebackWon  = "payment.chargeback_won"
	EventPaymentChargebackLost = "payment.chargeback_lost"
)

const (
	OutcomeWon  = "WON"
	OutcomeLost = "LOST"
)

// WebhookResult reports what a dispute webhook did. Handled false means the
// event was acknowledged but intentionally ignored; delivery still succeeds so
// the gateway stops retrying.
type WebhookResult struct {
	Handled bool   `json:"handled"`
	Reason  string `json:"reason,omitempty"`
}

type Service struct {
	db           *gorm.DB
	payments     payment.RepositoryAPI
	payouts      *payout.Service
	entitlements *entitlement.Service
	audit        eventlog.RepositoryAPI
	producer     outbox.ProducerAPI
	logger       *slog.Logger
}

func NewService(
	db *gorm.DB,
	payments payment.RepositoryAPI,
	payouts *payout.Service,
	entitlements *entitlement.Service,
	audit eventlog.RepositoryAPI,
	producer outbox.ProducerAPI,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:           db,
		payments:     payments,
		payouts:      payouts,
		entitlements: entitlements,
		audit:        audit,
		producer:     producer,
		logger:       logger,
	}
}

type disputePayload struct {
	PaymentID       int64  `json:"payment_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	Status          string `json:"status"`
	Outcome         string `json:"outcome,omitempty"`
}

// HandleDisputeOpened freezes everything touched by the disputed payment: the
// payment moves to DISPUTED, entitlements are suspended, and the pending
// payout is blocked so the release sweep cannot pay out contested funds.
func (s *Service) HandleDisputeOpened(ctx context.Context, paymentIntentID string) (*WebhookResult, error) {
	p, err := s.payments.GetByPaymentIntentID(paymentIntentID)
	if err != nil {
		if errors.Is(err, internal.ErrPaymentNotFound) {
			// Not our payment; acknowledge so the gateway stops retrying.
			return &WebhookResult{Handled: false, Reason: "payment not found for intent"}, nil
		}
		return nil, err
	}

	if p.Status == paymentdm.StatusDisputed {
		return &WebhookResult{Handled: true, Reason: "already disputed"}, nil
	}
	if !paymentdm.CanTransition(p.Status, paymentdm.StatusDisputed) {
		return &WebhookResult{Handled: false, Reason: fmt.Sprintf("payment in %s cannot be disputed", p.Status)}, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := locking.AcquireTx(tx, fmt.Sprintf("payment:%d", p.ID)); err != nil {
			return fmt.Errorf("failed to serialize dispute handling: %w", err)
		}

		if err := s.payments.WithTx(tx).UpdateStatus(p.ID, paymentdm.StatusDisputed); err != nil {
			return fmt.Errorf("failed to mark payment disputed: %w", err)
		}

		if _, err := s.entitlements.SuspendTx(tx, p.ID); err != nil {
			return fmt.Errorf("failed to suspend entitlements: %w", err)
		}

		if err := s.blockPayoutTx(tx, p.PaymentIntentID); err != nil {
			return err
		}

		payload := disputePayload{
			PaymentID:       p.ID,
			PaymentIntentID: paymentIntentID,
			Status:          paymentdm.StatusDisputed,
		}
		if _, err := s.producer.Record(tx, EventPaymentDisputed, "dispute:opened:"+paymentIntentID, payload); err != nil {
			return fmt.Errorf("failed to enqueue dispute event: %w", err)
		}
		return eventlog.Append(tx, s.audit, p.ID, EventPaymentDisputed, "gateway", payload)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispute opened",
		"payment_id", p.ID,
		"payment_intent_id", paymentIntentID)

	return &WebhookResult{Handled: true}, nil
}

// HandleDisputeClosed settles the dispute. WON restores the pre-dispute
// world; LOST revokes entitlements and terminally cancels the payout since
// the processor has already clawed the funds back.
func (s *Service) HandleDisputeClosed(ctx context.Context, paymentIntentID, outcome string) (*WebhookResult, error) {
	if outcome != OutcomeWon && outcome != OutcomeLost {
		// Terminal bad input. Acknowledge the delivery but never guess an
		// outcome; the reason code tells the operator what to fix.
		s.logger.Warn("rejecting unrecognized dispute outcome",
			"payment_intent_id", paymentIntentID,
			"outcome", outcome)
		return &WebhookResult{Handled: false, Reason: string(internal.ErrCodeDisputeOutcomeInvalid)}, nil
	}

	p, err := s.payments.GetByPaymentIntentID(paymentIntentID)
	if err != nil {
		if errors.Is(err, internal.ErrPaymentNotFound) {
			return &WebhookResult{Handled: false, Reason: "payment not found for intent"}, nil
		}
		return nil, err
	}

	target := paymentdm.StatusChargebackWon
	event := EventPaymentChargebackWon
	if outcome == OutcomeLost {
		target = paymentdm.StatusChargebackLost
		event = EventPaymentChargebackLost
	}

	if p.Status == target {
		return &WebhookResult{Handled: true, Reason: "outcome already applied"}, nil
	}
	if !paymentdm.CanTransition(p.Status, target) {
		return &WebhookResult{Handled: false, Reason: fmt.Sprintf("payment in %s cannot close a dispute", p.Status)}, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := locking.AcquireTx(tx, fmt.Sprintf("payment:%d", p.ID)); err != nil {
			return fmt.Errorf("failed to serialize dispute handling: %w", err)
		}

		if err := s.payments.WithTx(tx).UpdateStatus(p.ID, target); err != nil {
			return fmt.Errorf("failed to record dispute outcome: %w", err)
		}

		if outcome == OutcomeWon {
			if _, err := s.entitlements.RestoreTx(tx, p.ID); err != nil {
				return fmt.Errorf("failed to restore entitlements: %w", err)
			}
			if err := s.unblockPayoutTx(tx, p.PaymentIntentID); err != nil {
				return err
			}
		} else {
			if _, err := s.entitlements.RevokeTx(tx, p.ID); err != nil {
				return fmt.Errorf("failed to revoke entitlements: %w", err)
			}
			if err := s.cancelPayoutTx(tx, p.PaymentIntentID); err != nil {
				return err
			}
		}

		payload := disputePayload{
			PaymentID:       p.ID,
			PaymentIntentID: paymentIntentID,
			Status:          target,
			Outcome:         outcome,
		}
		if _, err := s.producer.Record(tx, event, "dispute:closed:"+paymentIntentID, payload); err != nil {
			return fmt.Errorf("failed to enqueue dispute outcome event: %w", err)
		}
		return eventlog.Append(tx, s.audit, p.ID, event, "gateway", payload)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("dispute closed",
		"payment_id", p.ID,
		"payment_intent_id", paymentIntentID,
		"outcome", outcome)

	return &WebhookResult{Handled: true}, nil
}

func (s *Service) blockPayoutTx(tx *gorm.DB, paymentIntentID string) error {
	po, err := s.payouts.GetTx(tx, paymentIntentID)
	if err != nil {
		if errors.Is(err, internal.ErrPayoutNotFound) {
			return nil
		}
		return err
	}
	if po.Status == payoutdm.StatusBlocked || po.Status == payoutdm.StatusCancelled {
		return nil
	}
	_, err = s.payouts.TransitionTx(tx, paymentIntentID, payoutdm.StatusBlocked, "dispute opened", "gateway")
	return err
}

func (s *Service) unblockPayoutTx(tx *gorm.DB, paymentIntentID string) error {
	po, err := s.payouts.GetTx(tx, paymentIntentID)
	if err != nil {
		if errors.Is(err, internal.ErrPayoutNotFound) {
			return nil
		}
		return err
	}
	if po.Status != payoutdm.StatusBlocked {
		return nil
	}
	_, err = s.payouts.TransitionTx(tx, paymentIntentID, payoutdm.StatusHeld, "", "gateway")
	return err
}

// cancelPayoutTx passes a blocked payout through HELD first; CANCELLED is only
// reachable from HELD or RELEASING.
func (s *Service) cancelPayoutTx(tx *gorm.DB, paymentIntentID string) error {
	po, err := s.payouts.GetTx(tx, paymentIntentID)
	if err != nil {
		if errors.Is(err, internal.ErrPayoutNotFound) {
			return nil
		}
		return err
	}
	if po.Status == payoutdm.StatusCancelled {
		return nil
	}
	if po.Status == payoutdm.StatusBlocked {
		if _, err := s.payouts.TransitionTx(tx, paymentIntentID, payoutdm.StatusHeld, "", "gateway"); err != nil {
			return err
		}
	}
	_, err = s.payouts.TransitionTx(tx, paymentIntentID, payoutdm.StatusCancelled, "chargeback lost", "gateway")
	return err
}
