package rest

import (
	"database/sql"
	"log/slog"

	"github.com/frahmantamala/marketplace-settlement/internal/dispute"
	"github.com/frahmantamala/marketplace-settlement/internal/fees"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	"github.com/frahmantamala/marketplace-settlement/internal/refund"
	"github.com/frahmantamala/marketplace-settlement/internal/transport/middleware"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	paymentHandler *payment.Handler,
	feesHandler *fees.Handler,
	payoutHandler *payout.Handler,
	refundHandler *refund.Handler,
	webhookHandler *dispute.WebhookHandler,
	outboxHandler *outbox.ReplayHandler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		// Health check routes
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/webhooks/gateway", webhookHandler.HandleGatewayWebhook)
		}

		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/", paymentHandler.CreatePayment)
				pr.Get("/{id}", paymentHandler.GetPayment)
				pr.Get("/{id}/ledger", paymentHandler.GetLedger)

				if feesHandler != nil {
					pr.Post("/{id}/fees", feesHandler.ReconcileFees)
				}
			})
		}

		if refundHandler != nil {
			r.Post("/refunds", refundHandler.CreateRefund)
		}

		// Operator surface; an internal proxy authenticates and forwards
		// the operator identity in X-Actor.
		r.Route("/admin", func(ar chi.Router) {
			if payoutHandler != nil {
				ar.Route("/payouts/{paymentIntentID}", func(por chi.Router) {
					por.Get("/", payoutHandler.GetPayout)
					por.Post("/block", payoutHandler.BlockPayout)
					por.Post("/unblock", payoutHandler.UnblockPayout)
					por.Post("/cancel", payoutHandler.CancelPayout)
				})
			}

			if outboxHandler != nil {
				ar.Post("/outbox/replay", outboxHandler.ReplayEvents)
			}
		})
	})
}
