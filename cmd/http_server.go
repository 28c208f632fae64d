package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/marketplace-settlement/internal"
	"github.com/frahmantamala/marketplace-settlement/internal/dispute"
	"github.com/frahmantamala/marketplace-settlement/internal/entitlement"
	entitlementpg "github.com/frahmantamala/marketplace-settlement/internal/entitlement/postgres"
	eventlogpg "github.com/frahmantamala/marketplace-settlement/internal/eventlog/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/fees"
	"github.com/frahmantamala/marketplace-settlement/internal/ledger"
	ledgerpg "github.com/frahmantamala/marketplace-settlement/internal/ledger/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/outbox"
	outboxpg "github.com/frahmantamala/marketplace-settlement/internal/outbox/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/payment"
	paymentpg "github.com/frahmantamala/marketplace-settlement/internal/payment/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/paymentgateway"
	"github.com/frahmantamala/marketplace-settlement/internal/payout"
	payoutpg "github.com/frahmantamala/marketplace-settlement/internal/payout/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/refund"
	refundpg "github.com/frahmantamala/marketplace-settlement/internal/refund/postgres"
	"github.com/frahmantamala/marketplace-settlement/internal/transport/rest"
	"github.com/frahmantamala/marketplace-settlement/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if sqlDB, err := deps.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				deps.Logger.Error("database close error", "error", err)
			}
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Format, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	router := chi.NewRouter()
	registerRoutes(router, db, config, lg)

	return &Dependencies{
		Config: config,
		DB:     db,
		Router: router,
		Logger: lg,
	}, nil
}

func registerRoutes(router *chi.Mux, db *gorm.DB, config *internal.Config, lg *slog.Logger) {
	ledgerRepo := ledgerpg.NewLedgerRepository(db)
	paymentRepo := paymentpg.NewPaymentRepository(db)
	payoutRepo := payoutpg.NewPayoutRepository(db)
	refundRepo := refundpg.NewRefundRepository(db)
	outboxRepo := outboxpg.NewOutboxRepository(db)
	entitlementRepo := entitlementpg.NewEntitlementRepository(db)
	auditRepo := eventlogpg.NewEventLogRepository(db)

	ledgerSvc := ledger.NewService(ledgerRepo, lg)
	producer := outbox.NewProducer(outboxRepo, lg)
	gatewayClient := paymentgateway.NewClient(paymentgateway.Config{
		BaseURL:        config.Gateway.BaseURL,
		APIKey:         config.Gateway.APIKey,
		RequestTimeout: config.Gateway.RequestTimeout,
	}, lg)

	paymentSvc := payment.NewService(db, paymentRepo, ledgerSvc, producer, lg)
	feesSvc := fees.NewService(db, paymentRepo, ledgerSvc, producer, lg)
	payoutSvc := payout.NewService(db, payoutRepo, producer, payout.Config{HoldDays: config.Payout.HoldDays}, lg)
	entitlementSvc := entitlement.NewService(entitlementRepo, lg)
	disputeSvc := dispute.NewService(db, paymentRepo, payoutSvc, entitlementSvc, auditRepo, producer, lg)
	refundSvc := refund.NewService(db, refundRepo, paymentRepo, payoutSvc, entitlementSvc, ledgerSvc, auditRepo, gatewayClient, producer, lg)
	replaySvc := outbox.NewReplayService(db, outboxRepo, outbox.ReplayConfig{
		MaxBatch: config.Outbox.ReplayMaxBatch,
		Cooldown: config.Outbox.ReplayCooldown,
	}, lg)

	sqlDB, err := db.DB()
	if err != nil {
		sqlDB = nil
	}

	rest.RegisterAllRoutes(router, sqlDB,
		payment.NewHandler(paymentSvc, lg),
		fees.NewHandler(feesSvc, lg),
		payout.NewHandler(payoutSvc, lg),
		refund.NewHandler(refundSvc, lg),
		dispute.NewWebhookHandler(disputeSvc, payoutSvc, lg),
		outbox.NewReplayHandler(replaySvc, lg),
		lg,
	)
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(gormpostgres.Open(cfg.Source), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql db: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
