package refund

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	ledgerdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/ledger"
	gatewaytypes "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/paymentgateway"
	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	refunddm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/refund"
	"github.com/frahmantamala/marketplace-settlement/internal/core/locking"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	"github.com/frahmantamala/marketplace-settlement/internal/eventlog"
	"github.com/frahmantamala/marketplace-settlement/internal/ledger"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	"github.com/frahmantamala/marketplace-settlement/internal/paymentgateway"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	"gorm.io/gorm"
)

const EventPaymentRefunded = "payment.refunded"

// RefundParams identifies the order to refund. The source pair doubles as the
// dedupe key, so only one refund can ever exist per order.
type RefundParams struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Reason     string `json:"reason,omitempty"`
	RefundedBy string `json:"refunded_by,omitempty"`
}

func (p RefundParams) Validate() *internal.AppError {
	if p.SourceType == "" || p.SourceID == "" {
		return internal.NewValidationError("source type and source id are required", internal.ErrCodeValidationFailed)
	}
	return nil
}

type Service struct {
	db           *gorm.DB
	repo         RepositoryAPI
	payments     payment.RepositoryAPI
	payouts      *payout.Service
	entitlements *entitlement.Service
	ledger       *ledger.Service
	audit        eventlog.RepositoryAPI
	gateway      paymentgateway.API
	producer     outbox.ProducerAPI
	logger       *slog.Logger
}

func NewService(
	db *gorm.DB,
	repo RepositoryAPI,
	payments payment.RepositoryAPI,
	payouts *payout.Service,
	entitlements *entitlement.Service,
	ledgerSvc *ledger.Service,
	audit eventlog.RepositoryAPI,
	gateway paymentgateway.API,
	producer outbox.ProducerAPI,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:           db,
		repo:         repo,
		payments:     payments,
		payouts:      payouts,
		entitlements: entitlements,
		ledger:       ledgerSvc,
		audit:        audit,
		gateway:      gateway,
		producer:     producer,
		logger:       logger,
	}
}

type refundedPayload struct {
	PaymentID       int64  `json:"payment_id"`
	SourceType      string `json:"source_type"`
	SourceID        string `json:"source_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	GatewayRefundID string `json:"gateway_refund_id"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Reason          string `json:"reason,omitempty"`
}

// RefundPayment orchestrates a full refund: preconditions first, then the
// gateway call, then one transaction that books the refund ledger entry,
// revokes entitlements, cancels the pending payout, and records the event.
//
// The dedupe key pins the whole orchestration. A retry after a crash resumes
// from the pending row; the gateway idempotency key guarantees the processor
// sees at most one refund either way.
func (s *Service) RefundPayment(ctx context.Context, params RefundParams) (*refunddm.Refund, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	dedupeKey := fmt.Sprintf("refund:%s:%s", params.SourceType, params.SourceID)

	if existing, err := s.repo.GetByDedupeKey(dedupeKey); err == nil && existing.Status == refunddm.StatusSucceeded {
		s.logger.Info("refund already completed", "dedupe_key", dedupeKey, "refund_id", existing.ID)
		return existing, nil
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	p, err := s.payments.GetBySource(params.SourceType, params.SourceID)
	if err != nil {
		return nil, err
	}

	// The payout row carries the recipient account; without it there is no
	// way to verify the organization is connect-ready, so fail closed.
	po, err := s.payouts.Get(ctx, p.PaymentIntentID)
	if err != nil {
		if errors.Is(err, internal.ErrPayoutNotFound) {
			return nil, internal.ErrConnectNotReady
		}
		return nil, err
	}

	account, err := s.gateway.GetAccount(ctx, po.RecipientAccountID)
	if err != nil {
		return nil, err
	}
	if !account.ConnectReady() {
		return nil, internal.ErrConnectNotReady
	}

	// Claim the dedupe key before touching the gateway. The loser of a
	// concurrent race reads the winner's row here and returns it.
	pending := &refunddm.Refund{
		DedupeKey:       dedupeKey,
		SourceType:      params.SourceType,
		SourceID:        params.SourceID,
		PaymentIntentID: p.PaymentIntentID,
		Status:          refunddm.StatusPending,
		Reason:          params.Reason,
		RefundedBy:      params.RefundedBy,
	}
	if err := s.repo.Insert(pending); err != nil {
		return nil, fmt.Errorf("failed to claim refund dedupe key: %w", err)
	}
	claimed, err := s.repo.GetByDedupeKey(dedupeKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load refund after claim: %w", err)
	}
	if claimed.Status == refunddm.StatusSucceeded {
		return claimed, nil
	}

	result, err := s.gateway.CreateRefund(ctx, &gatewaytypes.RefundParams{
		PaymentIntentID: p.PaymentIntentID,
		IdempotencyKey:  dedupeKey,
		Reason:          params.Reason,
	})
	if err != nil {
		return nil, err
	}

	snap, err := p.Snapshot()
	if err != nil {
		return nil, internal.NewPreconditionError("pricing snapshot is malformed", internal.ErrCodeCurrencyNotFound).WithCause(err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := locking.AcquireTx(tx, fmt.Sprintf("payment:%d", p.ID)); err != nil {
			return fmt.Errorf("failed to serialize refund finalization: %w", err)
		}

		if err := s.repo.WithTx(tx).MarkSucceeded(claimed.ID, result.ID); err != nil {
			return fmt.Errorf("failed to finalize refund: %w", err)
		}

		entry := &ledgerdm.LedgerEntry{
			EntryType:   ledgerdm.EntryRefund,
			AmountCents: -snap.GrossAmountCents,
			Currency:    snap.Currency,
			SourceType:  params.SourceType,
			SourceID:    params.SourceID,
		}
		if err := s.ledger.AppendEntries(tx, p.ID, dedupeKey, []*ledgerdm.LedgerEntry{entry}); err != nil {
			if !errors.Is(err, ledger.ErrDuplicateCausation) {
				return err
			}
		}

		if _, err := s.entitlements.RevokeTx(tx, p.ID); err != nil {
			return fmt.Errorf("failed to revoke entitlements: %w", err)
		}

		if err := s.cancelPayoutTx(tx, po, params.RefundedBy); err != nil {
			return err
		}

		payload := refundedPayload{
			PaymentID:       p.ID,
			SourceType:      params.SourceType,
			SourceID:        params.SourceID,
			PaymentIntentID: p.PaymentIntentID,
			GatewayRefundID: result.ID,
			AmountCents:     snap.GrossAmountCents,
			Currency:        snap.Currency,
			Reason:          params.Reason,
		}
		if _, err := s.producer.Record(tx, EventPaymentRefunded, dedupeKey, payload); err != nil {
			return fmt.Errorf("failed to enqueue refund event: %w", err)
		}

		return eventlog.Append(tx, s.audit, p.ID, EventPaymentRefunded, params.RefundedBy, payload)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund completed",
		"refund_id", claimed.ID,
		"payment_id", p.ID,
		"payment_intent_id", p.PaymentIntentID,
		"gateway_refund_id", result.ID,
		"amount_cents", snap.GrossAmountCents)

	claimed.Status = refunddm.StatusSucceeded
	claimed.GatewayRefundID = result.ID
	return claimed, nil
}

// cancelPayoutTx terminally cancels the payout. A blocked payout passes
// through HELD first, since cancellation is only reachable from HELD or
// RELEASING.
func (s *Service) cancelPayoutTx(tx *gorm.DB, po *payoutdm.PendingPayout, actor string) error {
	current, err := s.payouts.GetTx(tx, po.PaymentIntentID)
	if err != nil {
		return err
	}

	switch current.Status {
	case payoutdm.StatusCancelled:
		return nil
	case payoutdm.StatusBlocked:
		if _, err := s.payouts.TransitionTx(tx, po.PaymentIntentID, payoutdm.StatusHeld, "", actor); err != nil {
			return err
		}
	}

	_, err = s.payouts.TransitionTx(tx, po.PaymentIntentID, payoutdm.StatusCancelled, "refunded", actor)
	return err
}
