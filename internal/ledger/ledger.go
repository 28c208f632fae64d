package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	ledgerdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/ledger"
	"gorm.io/gorm"
)

// ErrDuplicateCausation signals an append that already happened. Callers treat
// it as an idempotent replay, not a failure.
var ErrDuplicateCausation = errors.New("ledger entries already recorded for causation")

// RepositoryAPI is append-only by construction: there are no update or delete
// methods, so a ledger row can never be rewritten through this interface.
type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Append(entries []*ledgerdm.LedgerEntry) error
	ExistsCausation(paymentID int64, causationID string) (bool, error)
	SumByPayment(paymentID int64) (int64, error)
	SumProcessorFees(paymentID int64) (int64, error)
	ListByPayment(paymentID int64) ([]*ledgerdm.LedgerEntry, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// AppendEntries appends one logical operation's entries inside the caller's
// transaction. A second call sharing (paymentID, causationID) returns
// ErrDuplicateCausation and writes nothing.
func (s *Service) AppendEntries(tx *gorm.DB, paymentID int64, causationID string, entries []*ledgerdm.LedgerEntry) error {
	if causationID == "" {
		return fmt.Errorf("causation id is required for ledger append")
	}
	if len(entries) == 0 {
		return fmt.Errorf("no ledger entries to append")
	}

	repo := s.repo.WithTx(tx)

	exists, err := repo.ExistsCausation(paymentID, causationID)
	if err != nil {
		return fmt.Errorf("failed to check causation: %w", err)
	}
	if exists {
		s.logger.Info("ledger append skipped, causation already recorded",
			"payment_id", paymentID,
			"causation_id", causationID)
		return ErrDuplicateCausation
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		entry.PaymentID = paymentID
		entry.CausationID = causationID
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
	}

	if err := repo.Append(entries); err != nil {
		return fmt.Errorf("failed to append ledger entries: %w", err)
	}

	s.logger.Info("ledger entries appended",
		"payment_id", paymentID,
		"causation_id", causationID,
		"entry_count", len(entries))

	return nil
}

// HasCausation reports whether an operation with this causation id already
// wrote entries for the payment.
func (s *Service) HasCausation(tx *gorm.DB, paymentID int64, causationID string) (bool, error) {
	return s.repo.WithTx(tx).ExistsCausation(paymentID, causationID)
}

// Balance returns the signed sum over every entry of a payment.
func (s *Service) Balance(tx *gorm.DB, paymentID int64) (int64, error) {
	return s.repo.WithTx(tx).SumByPayment(paymentID)
}

// ProcessorFeeSum returns the signed sum over the payment's processor-fee
// entries. Fee entries are negative, so the absolute value is the fee charged.
func (s *Service) ProcessorFeeSum(tx *gorm.DB, paymentID int64) (int64, error) {
	return s.repo.WithTx(tx).SumProcessorFees(paymentID)
}

func (s *Service) EntriesForPayment(paymentID int64) ([]*ledgerdm.LedgerEntry, error) {
	return s.repo.ListByPayment(paymentID)
}
