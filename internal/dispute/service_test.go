package dispute_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	internal "github.com/frahmantamala/marketplace-settlement/internal"
	entitlementdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/entitlement"
	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
	paymentdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payment"
	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/dispute"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	entitlementpg "github.com/frahmantamala/marketplace-settlement/internal/entitlement/postgres"
	eventlogpg "github.com/frahmantamala/marketplace-settlement/internal/eventlog/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/ledger"
	ledgerpg "github.com/frahmantamala/marketplace-settlement/internal/ledger/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	paymentpg "github.com/frahmantamala/marketplace-settlement/internal/payment/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	payoutpg "github.com/frahmantamala/marketplace-settlement/internal/payout/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/testsupport"
)

func TestDisputeService(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Dispute Service Suite")
}

var _ = ginkgo.Describe("Dispute Service", func() {
	var (
		db             *gorm.DB
		svc            *dispute.Service
		paymentSvc     *payment.Service
		payoutSvc      *payout.Service
		entitlementSvc *entitlement.Service
		ctx            context.Context
		paymentID      int64
	)

	lg := slog.New(slog.NewTextHandler(io.Discard, nil))

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		ledgerSvc := ledger.NewService(ledgerpg.NewLedgerRepository(db), lg)
		producer := outbox.NewProducer(outboxpg.NewOutboxRepository(db), lg)
		paymentRepo := paymentpg.NewPaymentRepository(db)
		paymentSvc = payment.NewService(db, paymentRepo, ledgerSvc, producer, lg)
		payoutSvc = payout.NewService(db, payoutpg.NewPayoutRepository(db), producer, payout.Config{HoldDays: 7}, lg)
		entitlementSvc = entitlement.NewService(entitlementpg.NewEntitlementRepository(db), lg)
		svc = dispute.NewService(db, paymentRepo, payoutSvc, entitlementSvc,
			eventlogpg.NewEventLogRepository(db), producer, lg)
		ctx = context.Background()

		p, err := paymentSvc.CreatePayment(ctx, payment.CreatePaymentParams{
			SourceType:                "order",
			SourceID:                  "ord-1",
			OrganizationID:            7,
			PaymentIntentID:           "pi_1",
			Currency:                  "USD",
			GrossAmountCents:          1000,
			PlatformFeeCents:          100,
			ProcessorFeeEstimateCents: 30,
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		paymentID = p.ID

		meta := payout.ParseMetadata(map[string]string{
			"source_type":        "order",
			"source_id":          "ord-1",
			"currency":           "USD",
			"gross_amount_cents": "1000",
			"platform_fee_cents": "100",
			"amount_cents":       "900",
			"fee_mode":           "INCLUDED",
		})
		_, err = payoutSvc.CreateOrRefresh(ctx, "pi_1", "acct_1", meta, time.Now().UTC())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		gomega.Expect(entitlementSvc.GrantForPayment(ctx, paymentID, "order_access")).ToNot(gomega.HaveOccurred())
	})

	entitlementStatus := func() string {
		ents, err := entitlementSvc.ListForPayment(ctx, paymentID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(ents).To(gomega.HaveLen(1))
		return ents[0].Status
	}

	payoutStatus := func() string {
		po, err := payoutSvc.Get(ctx, "pi_1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return po.Status
	}

	paymentStatus := func() string {
		p, err := paymentSvc.GetPayment(ctx, paymentID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return p.Status
	}

	ginkgo.Describe("HandleDisputeOpened", func() {
		ginkgo.It("should freeze the payment, its entitlements, and its payout", func() {
			result, err := svc.HandleDisputeOpened(ctx, "pi_1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeTrue())

			gomega.Expect(paymentStatus()).To(gomega.Equal(paymentdm.StatusDisputed))
			gomega.Expect(entitlementStatus()).To(gomega.Equal(entitlementdm.StatusSuspended))
			gomega.Expect(payoutStatus()).To(gomega.Equal(payoutdm.StatusBlocked))

			var events []*outboxdm.OutboxEvent
			gomega.Expect(db.Where("event_type = ?", dispute.EventPaymentDisputed).Find(&events).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(events).To(gomega.HaveLen(1))
		})

		ginkgo.It("should absorb a redelivered opened webhook", func() {
			_, err := svc.HandleDisputeOpened(ctx, "pi_1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			result, err := svc.HandleDisputeOpened(ctx, "pi_1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeTrue())

			var events []*outboxdm.OutboxEvent
			gomega.Expect(db.Where("event_type = ?", dispute.EventPaymentDisputed).Find(&events).Error).ToNot(gomega.HaveOccurred())
			gomega.Expect(events).To(gomega.HaveLen(1))
		})

		ginkgo.It("should acknowledge an intent no payment matches", func() {
			result, err := svc.HandleDisputeOpened(ctx, "pi_unknown")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("HandleDisputeClosed", func() {
		ginkgo.BeforeEach(func() {
			_, err := svc.HandleDisputeOpened(ctx, "pi_1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should restore everything when the dispute is won", func() {
			result, err := svc.HandleDisputeClosed(ctx, "pi_1", dispute.OutcomeWon)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeTrue())

			gomega.Expect(paymentStatus()).To(gomega.Equal(paymentdm.StatusChargebackWon))
			gomega.Expect(entitlementStatus()).To(gomega.Equal(entitlementdm.StatusActive))
			gomega.Expect(payoutStatus()).To(gomega.Equal(payoutdm.StatusHeld))
		})

		ginkgo.It("should revoke entitlements and cancel the payout when lost", func() {
			result, err := svc.HandleDisputeClosed(ctx, "pi_1", dispute.OutcomeLost)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeTrue())

			gomega.Expect(paymentStatus()).To(gomega.Equal(paymentdm.StatusChargebackLost))
			gomega.Expect(entitlementStatus()).To(gomega.Equal(entitlementdm.StatusRevoked))
			gomega.Expect(payoutStatus()).To(gomega.Equal(payoutdm.StatusCancelled))
		})

		ginkgo.It("should absorb a redelivered outcome", func() {
			_, err := svc.HandleDisputeClosed(ctx, "pi_1", dispute.OutcomeLost)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			result, err := svc.HandleDisputeClosed(ctx, "pi_1", dispute.OutcomeLost)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeTrue())
		})

		ginkgo.It("should reject an unrecognized outcome without touching state", func() {
			result, err := svc.HandleDisputeClosed(ctx, "pi_1", "DRAW")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Handled).To(gomega.BeFalse())
			gomega.Expect(result.Reason).To(gomega.Equal(string(internal.ErrCodeDisputeOutcomeInvalid)))

			gomega.Expect(paymentStatus()).To(gomega.Equal(paymentdm.StatusDisputed))
			gomega.Expect(payoutStatus()).To(gomega.Equal(payoutdm.StatusBlocked))
		})
	})

	ginkgo.It("should not close a dispute that was never opened", func() {
		result, err := svc.HandleDisputeClosed(ctx, "pi_1", dispute.OutcomeWon)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(result.Handled).To(gomega.BeFalse())
		gomega.Expect(paymentStatus()).To(gomega.Equal(paymentdm.StatusCreated))
	})
})
