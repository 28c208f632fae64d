package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/frahmantamala/marketplace-settlement/internal/fees"
	"github.com/frahmantamala/marketplace-settlement/internal/ledger"
	ledgerpg "github.com/frahmantamala/marketplace-settlement/internal/ledger/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	paymentpg "github.com/frahmantamala/marketplace-settlement/internal/payment/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	payoutpg "github.com/frahmantamala/marketplace-settlement/internal/payout/postgres"
	"github.com/frahmantamala/marketplace-settlement/pkg/logger"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)
		lg := logger.LoggerWrapper()

		db, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		if clearData {
			for _, table := range []string{"event_logs", "entitlements", "refunds", "outbox_events", "outbox_replay_requests", "pending_payouts", "ledger_entries", "payments"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("cleared existing data")
		}

		ctx := context.Background()

		ledgerSvc := ledger.NewService(ledgerpg.NewLedgerRepository(db), lg)
		producer := outbox.NewProducer(outboxpg.NewOutboxRepository(db), lg)
		paymentRepo := paymentpg.NewPaymentRepository(db)

		paymentSvc := payment.NewService(db, paymentRepo, ledgerSvc, producer, lg)
		feesSvc := fees.NewService(db, paymentRepo, ledgerSvc, producer, lg)
		payoutSvc := payout.NewService(db, payoutpg.NewPayoutRepository(db), producer,
			payout.Config{HoldDays: cfg.Payout.HoldDays}, lg)

		p, err := paymentSvc.CreatePayment(ctx, payment.CreatePaymentParams{
			SourceType:                "order",
			SourceID:                  "seed-order-1",
			OrganizationID:            1,
			PaymentIntentID:           "pi_seed_1",
			Currency:                  "USD",
			GrossAmountCents:          100_000,
			PlatformFeeCents:          10_000,
			ProcessorFeeEstimateCents: 3_200,
		})
		if err != nil {
			log.Fatalf("failed to seed payment: %v", err)
		}
		fmt.Println("seeded payment:", p.ID)

		result, err := feesSvc.ReconcilePaymentFees(ctx, p.ID, 3_190, "seed-fee-report-1", "seed")
		if err != nil {
			log.Fatalf("failed to seed fee reconciliation: %v", err)
		}
		fmt.Printf("reconciled fees: %s, net %d cents\n", result.Status, result.NetCents)

		meta := payout.ParseMetadata(map[string]string{
			"source_type":        "order",
			"source_id":          "seed-order-1",
			"currency":           "USD",
			"gross_amount_cents": "100000",
			"platform_fee_cents": "10000",
			"amount_cents":       "90000",
			"fee_mode":           "INCLUDED",
		})
		po, err := payoutSvc.CreateOrRefresh(ctx, "pi_seed_1", "acct_seed_1", meta, time.Now().UTC())
		if err != nil {
			log.Fatalf("failed to seed payout: %v", err)
		}
		fmt.Printf("seeded payout %d: %d cents held until %s\n", po.ID, po.AmountCents, po.HoldUntil.Format(time.RFC3339))
	},
}
