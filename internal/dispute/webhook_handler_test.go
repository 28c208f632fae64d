package dispute_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"gorm.io/gorm"

	payoutdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/dispute"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	entitlementpg "github.com/frahmantamala/marketplace-settlement/internal/entitlement/postgres"
	eventlogpg "github.com/frahmantamala/marketplace-settlement/internal/eventlog/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	paymentpg "github.com/frahmantamala/marketplace-settlement/internal/payment/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	payoutpg "github.com/frahmantamala/marketplace-settlement/internal/payout/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/testsupport"
)

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		db        *gorm.DB
		handler   *dispute.WebhookHandler
		payoutSvc *payout.Service
	)

	lg := slog.New(slog.NewTextHandler(io.Discard, nil))

	ginkgo.BeforeEach(func() {
		var err error
		db, err = testsupport.OpenDB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		producer := outbox.NewProducer(outboxpg.NewOutboxRepository(db), lg)
		paymentRepo := paymentpg.NewPaymentRepository(db)
		payoutSvc = payout.NewService(db, payoutpg.NewPayoutRepository(db), producer, payout.Config{HoldDays: 7}, lg)
		entitlementSvc := entitlement.NewService(entitlementpg.NewEntitlementRepository(db), lg)
		disputeSvc := dispute.NewService(db, paymentRepo, payoutSvc, entitlementSvc,
			eventlogpg.NewEventLogRepository(db), producer, lg)
		handler = dispute.NewWebhookHandler(disputeSvc, payoutSvc, lg)
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		handler.HandleGatewayWebhook(rec, req)
		return rec
	}

	ginkgo.It("should create a held payout from a succeeded payment intent", func() {
		rec := post(`{
			"type": "payment_intent.succeeded",
			"object": {
				"id": "pi_1",
				"metadata": {
					"source_type": "order",
					"source_id": "ord-1",
					"currency": "USD",
					"gross_amount_cents": "1000",
					"platform_fee_cents": "100",
					"amount_cents": "900",
					"fee_mode": "INCLUDED",
					"recipient_account_id": "acct_1"
				}
			}
		}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

		p, err := payoutSvc.Get(context.Background(), "pi_1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.Status).To(gomega.Equal(payoutdm.StatusHeld))
		gomega.Expect(p.AmountCents).To(gomega.Equal(int64(900)))
		gomega.Expect(p.HoldUntil).To(gomega.BeTemporally(">", time.Now().UTC().Add(6*24*time.Hour)))
	})

	ginkgo.It("should anchor the hold window on paid_at, not delivery time", func() {
		paidAt := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		rec := post(`{
			"type": "payment_intent.succeeded",
			"object": {
				"id": "pi_1",
				"metadata": {
					"source_type": "order",
					"source_id": "ord-1",
					"currency": "USD",
					"gross_amount_cents": "1000",
					"platform_fee_cents": "100",
					"amount_cents": "900",
					"fee_mode": "INCLUDED",
					"recipient_account_id": "acct_1",
					"paid_at": "2026-08-01T09:00:00Z"
				}
			}
		}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

		p, err := payoutSvc.Get(context.Background(), "pi_1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(p.HoldUntil).To(gomega.Equal(paidAt.Add(7 * 24 * time.Hour)))
	})

	ginkgo.It("should reject an unparseable paid_at", func() {
		rec := post(`{
			"type": "payment_intent.succeeded",
			"object": {
				"id": "pi_1",
				"metadata": {
					"source_type": "order",
					"source_id": "ord-1",
					"currency": "USD",
					"gross_amount_cents": "1000",
					"platform_fee_cents": "100",
					"amount_cents": "900",
					"fee_mode": "INCLUDED",
					"recipient_account_id": "acct_1",
					"paid_at": "yesterday"
				}
			}
		}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("should refuse metadata that does not reconcile", func() {
		rec := post(`{
			"type": "payment_intent.succeeded",
			"object": {
				"id": "pi_1",
				"metadata": {
					"source_type": "order",
					"source_id": "ord-1",
					"currency": "USD",
					"gross_amount_cents": "1000",
					"platform_fee_cents": "100",
					"amount_cents": "850",
					"fee_mode": "INCLUDED",
					"recipient_account_id": "acct_1"
				}
			}
		}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnprocessableEntity))
	})

	ginkgo.It("should acknowledge an unrecognized event type", func() {
		rec := post(`{"type": "transfer.created", "object": {"id": "tr_1"}}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring(`"handled":false`))
	})

	ginkgo.It("should reject a malformed envelope", func() {
		rec := post(`{`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("should require an object id", func() {
		rec := post(`{"type": "dispute.opened", "object": {}}`)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})
})
