package fees

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	ledgerdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/ledger"
	paymentdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-settlement/internal/core/locking"
	"github.com/frahmantamala/marketplace-settlement/internal/ledger"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	"gorm.io/gorm"
)

type Status string

const (
	StatusFinalized Status = "FINALIZED"
	StatusAdjusted  Status = "ADJUSTED"
	StatusNoop      Status = "NOOP"
)

// ReconcileResult tells the caller what the reconciliation did, instead of
// making it guess from the absence of an error.
type ReconcileResult struct {
	Status   Status `json:"status"`
	NetCents int64  `json:"net_cents"`
}

const EventFeesReconciled = "payment.fees_reconciled"

type Service struct {
	db       *gorm.DB
	payments payment.RepositoryAPI
	ledger   *ledger.Service
	producer outbox.ProducerAPI
	logger   *slog.Logger
}

func NewService(db *gorm.DB, payments payment.RepositoryAPI, ledgerSvc *ledger.Service, producer outbox.ProducerAPI, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		payments: payments,
		ledger:   ledgerSvc,
		producer: producer,
		logger:   logger,
	}
}

type feesReconciledPayload struct {
	PaymentID         int64  `json:"payment_id"`
	Status            Status `json:"status"`
	ProcessorFeeCents int64  `json:"processor_fee_cents"`
	NetCents          int64  `json:"net_cents"`
	CorrelationID     string `json:"correlation_id,omitempty"`
}

// ReconcilePaymentFees applies a processor-reported fee to the payment's
// ledger. First report finalizes the pending fee, later reports with a
// different amount append one adjustment entry for the delta, and replays with
// a known causation id are no-ops.
func (s *Service) ReconcilePaymentFees(ctx context.Context, paymentID, processorFeeCents int64, causationID, correlationID string) (*ReconcileResult, error) {
	if causationID == "" {
		return nil, internal.NewValidationError("causation id is required", internal.ErrCodeValidationFailed)
	}

	// Sign is carried by entry semantics, not by the reported number.
	feeCents := processorFeeCents
	if feeCents < 0 {
		feeCents = -feeCents
	}

	var result *ReconcileResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := locking.AcquireTx(tx, fmt.Sprintf("payment:%d", paymentID)); err != nil {
			return fmt.Errorf("failed to serialize payment reconciliation: %w", err)
		}

		p, err := s.payments.WithTx(tx).GetByID(paymentID)
		if err != nil {
			return err
		}

		snap, err := p.Snapshot()
		if err != nil {
			return internal.NewPreconditionError("pricing snapshot is malformed", internal.ErrCodeCurrencyNotFound).WithCause(err)
		}
		if snap.Currency == "" {
			return internal.ErrCurrencyNotFound
		}

		seen, err := s.ledger.HasCausation(tx, paymentID, causationID)
		if err != nil {
			return fmt.Errorf("failed to check causation: %w", err)
		}
		if seen {
			net, err := s.ledger.Balance(tx, paymentID)
			if err != nil {
				return err
			}
			result = &ReconcileResult{Status: StatusNoop, NetCents: net}
			return nil
		}

		if p.ProcessorFeesStatus == paymentdm.FeesPending {
			result, err = s.finalize(tx, p.ID, feeCents, snap.Currency, causationID, correlationID)
			return err
		}

		result, err = s.adjust(tx, p, feeCents, snap.Currency, causationID, correlationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("processor fees reconciled",
		"payment_id", paymentID,
		"status", result.Status,
		"processor_fee_cents", feeCents,
		"net_cents", result.NetCents,
		"correlation_id", correlationID)

	return result, nil
}

func (s *Service) finalize(tx *gorm.DB, paymentID, feeCents int64, currency, causationID, correlationID string) (*ReconcileResult, error) {
	entry := &ledgerdm.LedgerEntry{
		EntryType:     ledgerdm.EntryProcessorFeesFinal,
		AmountCents:   -feeCents,
		Currency:      currency,
		CorrelationID: correlationID,
	}

	if err := s.ledger.AppendEntries(tx, paymentID, causationID, []*ledgerdm.LedgerEntry{entry}); err != nil {
		if errors.Is(err, ledger.ErrDuplicateCausation) {
			net, berr := s.ledger.Balance(tx, paymentID)
			if berr != nil {
				return nil, berr
			}
			return &ReconcileResult{Status: StatusNoop, NetCents: net}, nil
		}
		return nil, err
	}

	if err := s.payments.WithTx(tx).SetProcessorFees(paymentID, paymentdm.FeesFinal, feeCents); err != nil {
		return nil, fmt.Errorf("failed to finalize processor fees: %w", err)
	}

	net, err := s.ledger.Balance(tx, paymentID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Status: StatusFinalized, NetCents: net}
	if err := s.recordEvent(tx, paymentID, feeCents, causationID, correlationID, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) adjust(tx *gorm.DB, p *paymentdm.Payment, feeCents int64, currency, causationID, correlationID string) (*ReconcileResult, error) {
	prior, err := s.priorFee(tx, p)
	if err != nil {
		return nil, err
	}

	if feeCents == prior {
		net, err := s.ledger.Balance(tx, p.ID)
		if err != nil {
			return nil, err
		}
		return &ReconcileResult{Status: StatusNoop, NetCents: net}, nil
	}

	entry := &ledgerdm.LedgerEntry{
		EntryType:     ledgerdm.EntryProcessorFeesAdjustment,
		AmountCents:   -(feeCents - prior),
		Currency:      currency,
		CorrelationID: correlationID,
	}

	if err := s.ledger.AppendEntries(tx, p.ID, causationID, []*ledgerdm.LedgerEntry{entry}); err != nil {
		if errors.Is(err, ledger.ErrDuplicateCausation) {
			net, berr := s.ledger.Balance(tx, p.ID)
			if berr != nil {
				return nil, berr
			}
			return &ReconcileResult{Status: StatusNoop, NetCents: net}, nil
		}
		return nil, err
	}

	if err := s.payments.WithTx(tx).SetProcessorFees(p.ID, paymentdm.FeesFinal, feeCents); err != nil {
		return nil, fmt.Errorf("failed to store adjusted processor fees: %w", err)
	}

	net, err := s.ledger.Balance(tx, p.ID)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{Status: StatusAdjusted, NetCents: net}
	if err := s.recordEvent(tx, p.ID, feeCents, causationID, correlationID, result); err != nil {
		return nil, err
	}
	return result, nil
}

// priorFee resolves the fee a previous reconciliation stored. When the column
// was never written, the signed sum of fee entries in the ledger is the
// authority; fee entries are negative so the sum is negated.
func (s *Service) priorFee(tx *gorm.DB, p *paymentdm.Payment) (int64, error) {
	if p.ProcessorFeesActual != nil {
		return *p.ProcessorFeesActual, nil
	}
	sum, err := s.ledger.ProcessorFeeSum(tx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to derive prior processor fee: %w", err)
	}
	return -sum, nil
}

func (s *Service) recordEvent(tx *gorm.DB, paymentID, feeCents int64, causationID, correlationID string, result *ReconcileResult) error {
	_, err := s.producer.Record(tx, EventFeesReconciled, "fees:"+causationID, feesReconciledPayload{
		PaymentID:         paymentID,
		Status:            result.Status,
		ProcessorFeeCents: feeCents,
		NetCents:          result.NetCents,
		CorrelationID:     correlationID,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue fees reconciled event: %w", err)
	}
	return nil
}
