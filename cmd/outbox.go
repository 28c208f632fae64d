package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	"github.com/frahmantamala/marketplace-settlement/pkg/logger"
	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Operate on the transactional outbox",
}

var (
	replayRequestID string
	replayActor     string
)

var outboxReplayCmd = &cobra.Command{
	Use:   "replay [eventID...]",
	Short: "Rearm dead-lettered outbox events",
	Long:  `Rearm dead-lettered events by id so the consumer picks them up again. The request id makes a retried invocation return the first run's result.`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
		lg := logger.LoggerWrapper()

		db, err := initDB(config.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}

		replaySvc := outbox.NewReplayService(db, outboxpg.NewOutboxRepository(db), outbox.ReplayConfig{
			MaxBatch: config.Outbox.ReplayMaxBatch,
			Cooldown: config.Outbox.ReplayCooldown,
		}, lg)

		result, err := replaySvc.ReplayEvents(replayRequestID, replayActor, args)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("rearmed: %d, skipped: %d, not found: %d\n",
			len(result.Rearmed), len(result.Skipped), len(result.NotFound))
	},
}

func init() {
	outboxReplayCmd.Flags().StringVar(&replayRequestID, "request-id", "", "Idempotency key for this replay batch (required)")
	outboxReplayCmd.Flags().StringVar(&replayActor, "actor", "", "Operator identity recorded with the replay")
	outboxReplayCmd.MarkFlagRequired("request-id")

	outboxCmd.AddCommand(outboxReplayCmd)
}
