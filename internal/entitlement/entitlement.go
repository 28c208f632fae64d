package entitlement

import (
	"context"
	"fmt"
	"log/slog"

	entitlementdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/entitlement"
	"gorm.io/gorm"
)

type RepositoryAPI interface {
	WithTx(tx *gorm.DB) RepositoryAPI
	Grant(e *entitlementdm.Entitlement) error
	ListByPayment(paymentID int64) ([]*entitlementdm.Entitlement, error)
	UpdateStatusByPayment(paymentID int64, from []string, to string) (int64, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// GrantForPayment grants one entitlement of the given kind, idempotently: the
// (payment, kind) pair is unique at insert so a redelivered grant is a no-op.
func (s *Service) GrantForPayment(ctx context.Context, paymentID int64, kind string) error {
	if kind == "" {
		return fmt.Errorf("entitlement kind is required")
	}
	if err := s.repo.Grant(&entitlementdm.Entitlement{
		PaymentID: paymentID,
		Kind:      kind,
		Status:    entitlementdm.StatusActive,
	}); err != nil {
		return fmt.Errorf("failed to grant entitlement: %w", err)
	}
	s.logger.Info("entitlement granted", "payment_id", paymentID, "kind", kind)
	return nil
}

// SuspendTx suspends every active entitlement of a payment.
func (s *Service) SuspendTx(tx *gorm.DB, paymentID int64) (int64, error) {
	return s.repo.WithTx(tx).UpdateStatusByPayment(paymentID,
		[]string{entitlementdm.StatusActive}, entitlementdm.StatusSuspended)
}

// RestoreTx reactivates suspended entitlements after a dispute is won.
func (s *Service) RestoreTx(tx *gorm.DB, paymentID int64) (int64, error) {
	return s.repo.WithTx(tx).UpdateStatusByPayment(paymentID,
		[]string{entitlementdm.StatusSuspended}, entitlementdm.StatusActive)
}

// RevokeTx terminally revokes entitlements after a lost dispute or a refund.
func (s *Service) RevokeTx(tx *gorm.DB, paymentID int64) (int64, error) {
	return s.repo.WithTx(tx).UpdateStatusByPayment(paymentID,
		[]string{entitlementdm.StatusActive, entitlementdm.StatusSuspended}, entitlementdm.StatusRevoked)
}

func (s *Service) ListForPayment(ctx context.Context, paymentID int64) ([]*entitlementdm.Entitlement, error) {
	return s.repo.ListByPayment(paymentID)
}
