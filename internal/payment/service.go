package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	"github.com/frahmantamala/marketplace-settlement/internal/core/common/validation"
	ledgerdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/ledger"
	paymentdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payment"
	"github.com/frahmantamala/marketplace-settlement/internal/ledger"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"gorm.io/gorm"
)

const EventPaymentRecorded = "payment.recorded"

// CreatePaymentParams captures one completed checkout. SourceType and SourceID
// identify the upstream order and carry the idempotency of the whole call.
type CreatePaymentParams struct {
	SourceType                string `json:"source_type"`
	SourceID                  string `json:"source_id"`
	OrganizationID            int64  `json:"organization_id"`
	PaymentIntentID           string `json:"payment_intent_id"`
	Currency                  string `json:"currency"`
	GrossAmountCents          int64  `json:"gross_amount_cents"`
	PlatformFeeCents          int64  `json:"platform_fee_cents"`
	ProcessorFeeEstimateCents int64  `json:"processor_fee_estimate_cents"`
}

func (p CreatePaymentParams) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("source_type", p.SourceType).Required()
	v.Field("source_id", p.SourceID).Required()
	v.Field("organization_id", p.OrganizationID).Required()
	v.Field("payment_intent_id", p.PaymentIntentID).Required()
	v.Field("currency", p.Currency).Required().CurrencyCode()
	v.Field("gross_amount_cents", p.GrossAmountCents).MinInt(1, internal.ErrCodeInvalidAmount)
	v.Field("platform_fee_cents", p.PlatformFeeCents).NonNegative(internal.ErrCodeInvalidAmount)
	v.Field("processor_fee_estimate_cents", p.ProcessorFeeEstimateCents).NonNegative(internal.ErrCodeInvalidAmount)
	return v.Validate()
}

type paymentRecordedPayload struct {
	PaymentID        int64  `json:"payment_id"`
	SourceType       string `json:"source_type"`
	SourceID         string `json:"source_id"`
	OrganizationID   int64  `json:"organization_id"`
	Currency         string `json:"currency"`
	GrossAmountCents int64  `json:"gross_amount_cents"`
	NetCents         int64  `json:"net_cents"`
}

type Service struct {
	db       *gorm.DB
	repo     RepositoryAPI
	ledger   *ledger.Service
	producer outbox.ProducerAPI
	logger   *slog.Logger
}

func NewService(db *gorm.DB, repo RepositoryAPI, ledgerSvc *ledger.Service, producer outbox.ProducerAPI, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		ledger:   ledgerSvc,
		producer: producer,
		logger:   logger,
	}
}

// CreatePayment records a completed checkout: the payment row with its frozen
// pricing snapshot, the gross and platform-fee ledger entries, and the
// recorded event, all in one transaction. Calling it again with the same
// source returns the existing payment without writing anything.
func (s *Service) CreatePayment(ctx context.Context, params CreatePaymentParams) (*paymentdm.Payment, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.PlatformFeeCents > params.GrossAmountCents {
		return nil, internal.NewValidationFieldError("platform_fee_cents",
			"platform fee cannot exceed the gross amount", internal.ErrCodeInvalidAmount)
	}

	if existing, err := s.repo.GetBySource(params.SourceType, params.SourceID); err == nil {
		s.logger.Info("payment already recorded for source",
			"payment_id", existing.ID,
			"source_type", params.SourceType,
			"source_id", params.SourceID)
		return existing, nil
	} else if !errors.Is(err, internal.ErrPaymentNotFound) {
		return nil, err
	}

	snapshot, err := json.Marshal(paymentdm.PricingSnapshotData{
		Currency:                  params.Currency,
		GrossAmountCents:          params.GrossAmountCents,
		PlatformFeeCents:          params.PlatformFeeCents,
		ProcessorFeeEstimateCents: params.ProcessorFeeEstimateCents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pricing snapshot: %w", err)
	}

	p := &paymentdm.Payment{
		Status:              paymentdm.StatusCreated,
		SourceType:          params.SourceType,
		SourceID:            params.SourceID,
		OrganizationID:      params.OrganizationID,
		PaymentIntentID:     params.PaymentIntentID,
		PricingSnapshot:     snapshot,
		ProcessorFeesStatus: paymentdm.FeesPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(p); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		// The estimate stays in the snapshot only; booking it here would
		// double-count once the processor reports the final fee.
		entries := []*ledgerdm.LedgerEntry{
			{
				EntryType:   ledgerdm.EntryGross,
				AmountCents: params.GrossAmountCents,
				Currency:    params.Currency,
				SourceType:  params.SourceType,
				SourceID:    params.SourceID,
			},
			{
				EntryType:   ledgerdm.EntryPlatformFee,
				AmountCents: -params.PlatformFeeCents,
				Currency:    params.Currency,
				SourceType:  params.SourceType,
				SourceID:    params.SourceID,
			},
		}

		causationID := "checkout:" + params.SourceID
		if err := s.ledger.AppendEntries(tx, p.ID, causationID, entries); err != nil {
			return err
		}

		_, err := s.producer.Record(tx, EventPaymentRecorded,
			fmt.Sprintf("payment:%s:%s", params.SourceType, params.SourceID),
			paymentRecordedPayload{
				PaymentID:        p.ID,
				SourceType:       params.SourceType,
				SourceID:         params.SourceID,
				OrganizationID:   params.OrganizationID,
				Currency:         params.Currency,
				GrossAmountCents: params.GrossAmountCents,
				NetCents:         params.GrossAmountCents - params.PlatformFeeCents,
			})
		if err != nil {
			return fmt.Errorf("failed to enqueue payment recorded event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment recorded",
		"payment_id", p.ID,
		"source_type", params.SourceType,
		"source_id", params.SourceID,
		"gross_amount_cents", params.GrossAmountCents,
		"platform_fee_cents", params.PlatformFeeCents)

	return p, nil
}

// GetPayment loads one payment by id.
func (s *Service) GetPayment(ctx context.Context, id int64) (*paymentdm.Payment, error) {
	return s.repo.GetByID(id)
}

// LedgerEntries lists the payment's ledger rows in append order.
func (s *Service) LedgerEntries(ctx context.Context, id int64) ([]*ledgerdm.LedgerEntry, error) {
	if _, err := s.repo.GetByID(id); err != nil {
		return nil, err
	}
	return s.ledger.EntriesForPayment(id)
}

// GetBalance returns the signed ledger sum for a payment.
func (s *Service) GetBalance(ctx context.Context, id int64) (int64, error) {
	if _, err := s.repo.GetByID(id); err != nil {
		return 0, err
	}
	return s.ledger.Balance(s.db, id)
}
