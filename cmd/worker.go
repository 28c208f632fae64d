package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/marketplace-settlement/internal/dispute"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	entitlementpg "github.com/frahmantamala/marketplace-settlement/internal/entitlement/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/fees"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	payoutpg "github.com/frahmantamala/marketplace-settlement/internal/payout/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/refund"
	"github.com/frahmantamala/marketplace-settlement/pkg/logger"

	outboxdm "github.com/frahmantamala/marketplace-settlement/internal/core/datamodel/outbox"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers: the outbox consumer and the payout release sweep.`,
}

var outboxWorkerCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Start the outbox consumer",
	Long:  `Poll the outbox table and deliver pending events to their handlers`,
	Run: func(cmd *cobra.Command, args []string) {
		startOutboxWorker()
	},
}

var sweepWorkerCmd = &cobra.Command{
	Use:   "payout-sweep",
	Short: "Start the payout release sweep",
	Long:  `Periodically move HELD payouts whose hold window has elapsed into RELEASING`,
	Run: func(cmd *cobra.Command, args []string) {
		startSweepWorker()
	},
}

var sweepInterval time.Duration

func startOutboxWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	outboxRepo := outboxpg.NewOutboxRepository(db)
	entitlementSvc := entitlement.NewService(entitlementpg.NewEntitlementRepository(db), lg)
	publisher := outbox.NewWebhookPublisher(config.Outbox.SinkURL, config.Gateway.RequestTimeout, lg)

	consumer := outbox.NewConsumer(outboxRepo, outbox.ConsumerConfig{
		PollInterval: config.Outbox.PollInterval,
		BatchSize:    config.Outbox.BatchSize,
		MaxAttempts:  config.Outbox.MaxAttempts,
		BaseBackoff:  config.Outbox.BaseBackoff,
		MaxBackoff:   config.Outbox.MaxBackoff,
		ClaimLease:   config.Outbox.ClaimLease,
	}, lg)

	// A recorded payment grants its entitlement, then the event flows to the
	// sink like every other one.
	consumer.Register(payment.EventPaymentRecorded, func(ctx context.Context, event *outboxdm.OutboxEvent) error {
		var payload struct {
			PaymentID int64 `json:"payment_id"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("failed to decode payment recorded payload: %w", err)
		}
		if err := entitlementSvc.GrantForPayment(ctx, payload.PaymentID, "order_access"); err != nil {
			return err
		}
		return publisher.Publish(ctx, event)
	})

	for _, eventType := range []string{
		fees.EventFeesReconciled,
		payout.EventPayoutHeld,
		payout.EventPayoutBlocked,
		payout.EventPayoutUnblocked,
		payout.EventPayoutCancelled,
		payout.EventPayoutReleasing,
		refund.EventPaymentRefunded,
		dispute.EventPaymentDisputed,
		dispute.EventPaymentChargebackWon,
		dispute.EventPaymentChargebackLost,
	} {
		consumer.Register(eventType, publisher.Publish)
	}

	runUntilSignal(lg, "outbox consumer", func(ctx context.Context) {
		consumer.Start(ctx)
	})
}

func startSweepWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}

	producer := outbox.NewProducer(outboxpg.NewOutboxRepository(db), lg)
	payoutSvc := payout.NewService(db, payoutpg.NewPayoutRepository(db), producer,
		payout.Config{HoldDays: config.Payout.HoldDays}, lg)

	runUntilSignal(lg, "payout release sweep", func(ctx context.Context) {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := payoutSvc.SweepDueForRelease(ctx, config.Outbox.BatchSize); err != nil {
					lg.Error("payout release sweep failed", "error", err)
				}
			}
		}
	})
}

func runUntilSignal(lg *slog.Logger, name string, run func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		run(ctx)
		close(done)
	}()

	lg.Info(name + " is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	lg.Info("received signal, shutting down "+name, "signal", sig)
	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		lg.Info("shutdown timeout reached, forcing exit")
	}
}

func init() {
	sweepWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", time.Minute, "How often to scan for releasable payouts")

	workerCmd.AddCommand(outboxWorkerCmd)
	workerCmd.AddCommand(sweepWorkerCmd)
}
