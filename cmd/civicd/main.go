package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nagorik/civicledger/internal/gateway"
	"github.com/nagorik/civicledger/internal/httpserver"
	"github.com/nagorik/civicledger/internal/notify"
	"github.com/nagorik/civicledger/internal/store/gormstore"
	"github.com/nagorik/civicledger/pkg/debt"
	"github.com/nagorik/civicledger/pkg/gems"
	"github.com/nagorik/civicledger/pkg/ledger"
	"github.com/nagorik/civicledger/pkg/reconcile"
)

const (
	flagDatabaseURL     = "database-url"
	flagListenAddr      = "listen-addr"
	flagGatewayBaseURL  = "gateway-base-url"
	flagGatewayStoreID  = "gateway-store-id"
	flagGatewayPassword = "gateway-store-password"
	flagCallbackBaseURL = "callback-base-url"
	flagAccrualInterval = "accrual-interval"

	configKeyDatabaseURL     = "database_url"
	configKeyListenAddr      = "listen_addr"
	configKeyGatewayBaseURL  = "gateway_base_url"
	configKeyGatewayStoreID  = "gateway_store_id"
	configKeyGatewayPassword = "gateway_store_password"
	configKeyCallbackBaseURL = "callback_base_url"
	configKeyAccrualInterval = "accrual_interval"

	defaultDatabaseURL     = "sqlite:///tmp/civicledger.db"
	defaultHTTPListenAddr  = ":8080"
	defaultAccrualInterval = time.Hour
)

type runtimeConfig struct {
	DatabaseURL     string
	ListenAddr      string
	GatewayBaseURL  string
	GatewayStoreID  string
	GatewayPassword string
	CallbackBaseURL string
	AccrualInterval time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "civicd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "civicd",
		Short:         "Civic ledger and payment reconciliation server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagGatewayBaseURL, "", "payment gateway base URL")
	cmd.Flags().String(flagGatewayStoreID, "", "payment gateway store id")
	cmd.Flags().String(flagGatewayPassword, "", "payment gateway store password")
	cmd.Flags().String(flagCallbackBaseURL, "", "public base URL for gateway callbacks")
	cmd.Flags().Duration(flagAccrualInterval, defaultAccrualInterval, "late-fee accrual interval")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDatabaseURL:     "DATABASE_URL",
		configKeyListenAddr:      "HTTP_LISTEN_ADDR",
		configKeyGatewayBaseURL:  "GATEWAY_BASE_URL",
		configKeyGatewayStoreID:  "GATEWAY_STORE_ID",
		configKeyGatewayPassword: "GATEWAY_STORE_PASSWORD",
		configKeyCallbackBaseURL: "CALLBACK_BASE_URL",
		configKeyAccrualInterval: "ACCRUAL_INTERVAL",
	}
	for configKey, envName := range envBindings {
		if err := viper.BindEnv(configKey, envName); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDatabaseURL:     flagDatabaseURL,
		configKeyListenAddr:      flagListenAddr,
		configKeyGatewayBaseURL:  flagGatewayBaseURL,
		configKeyGatewayStoreID:  flagGatewayStoreID,
		configKeyGatewayPassword: flagGatewayPassword,
		configKeyCallbackBaseURL: flagCallbackBaseURL,
		configKeyAccrualInterval: flagAccrualInterval,
	}
	for configKey, flagName := range flagBindings {
		if err := viper.BindPFlag(configKey, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultHTTPListenAddr
	}
	cfg.GatewayBaseURL = viper.GetString(configKeyGatewayBaseURL)
	cfg.GatewayStoreID = viper.GetString(configKeyGatewayStoreID)
	cfg.GatewayPassword = viper.GetString(configKeyGatewayPassword)
	cfg.CallbackBaseURL = viper.GetString(configKeyCallbackBaseURL)
	cfg.AccrualInterval = viper.GetDuration(configKeyAccrualInterval)
	if cfg.AccrualInterval <= 0 {
		cfg.AccrualInterval = defaultAccrualInterval
	}
	if cfg.GatewayBaseURL == "" {
		return fmt.Errorf("gateway base url is required")
	}
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	clock := func() int64 { return time.Now().UTC().Unix() }

	ledgerService, err := ledger.NewService(gormstore.NewLedgerStore(gormDB), clock)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}
	gemService, err := gems.NewService(gormstore.NewGemStore(gormDB), clock)
	if err != nil {
		return fmt.Errorf("gem service init: %w", err)
	}
	debtService, err := debt.NewService(gormstore.NewDebtStore(gormDB), balanceAdapter{ledgerService}, clock)
	if err != nil {
		return fmt.Errorf("debt service init: %w", err)
	}
	gatewayClient, err := gateway.New(gateway.Config{
		BaseURL:       cfg.GatewayBaseURL,
		StoreID:       cfg.GatewayStoreID,
		StorePassword: cfg.GatewayPassword,
		SuccessURL:    cfg.CallbackBaseURL + "/api/payments/callback/success",
		FailURL:       cfg.CallbackBaseURL + "/api/payments/callback/fail",
		CancelURL:     cfg.CallbackBaseURL + "/api/payments/callback/cancel",
	})
	if err != nil {
		return fmt.Errorf("gateway client init: %w", err)
	}
	reconcileService, err := reconcile.NewService(
		gormstore.NewReconcileStore(gormDB),
		debtService,
		gatewayClient,
		notify.NewLogNotifier(logger),
		clock,
		reconcile.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("reconcile service init: %w", err)
	}

	server, err := httpserver.New(httpserver.Config{ListenAddr: cfg.ListenAddr}, httpserver.Services{
		Ledger:    ledgerService,
		Gems:      gemService,
		Debts:     debtService,
		Reconcile: reconcileService,
	}, logger)
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}

	go runAccrualLoop(ctx, debtService, cfg.AccrualInterval, logger)

	logger.Info("civicd starting",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("driver", driver),
		zap.Duration("accrual_interval", cfg.AccrualInterval))
	return server.Run(ctx)
}

// runAccrualLoop applies weekly late fees on a fixed ticker. The accrual
// itself is idempotent per week window, so a missed or doubled tick is safe.
func runAccrualLoop(ctx context.Context, debtService *debt.Service, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updated, err := debtService.AccrueLateFees(ctx)
			if err != nil {
				logger.Error("late fee accrual failed", zap.Error(err))
				continue
			}
			if updated > 0 {
				logger.Info("late fees accrued", zap.Int("debts_updated", updated))
			}
		}
	}
}

// balanceAdapter lets the debt service read balances without depending on
// the ledger package's typed identifiers.
type balanceAdapter struct {
	ledgerService *ledger.Service
}

func (adapter balanceAdapter) ComputeBalance(ctx context.Context, rawUserID string) (decimal.Decimal, error) {
	userID, err := ledger.NewUserID(rawUserID)
	if err != nil {
		return decimal.Zero, err
	}
	return adapter.ledgerService.ComputeBalance(ctx, userID)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	var db *gorm.DB
	gormConfig := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "civicledger.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
