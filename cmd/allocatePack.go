package cmd

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/pkg/ledger/solanaLedger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/packs"
	"github.com/wicketlabs/pavilion/pkg/postgres"
	"github.com/wicketlabs/pavilion/pkg/postgres/migrations"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
	"go.uber.org/zap"
)

var allocatePackCmd = &cobra.Command{
	Use:   "allocate-pack",
	Short: "Allocate a player-token pack to a buyer who already paid",
	RunE: func(cmd *cobra.Command, args []string) error {
		initAllocatePackCmd(cmd)
		cfg := config.NewConfig()

		buyer := viper.GetString(config.KebabToSnakeCase(config.PackBuyer))
		if buyer == "" {
			return fmt.Errorf("%s is required", config.PackBuyer)
		}
		paymentAmount := viper.GetString(config.KebabToSnakeCase(config.PackPaymentAmount))
		if paymentAmount == "" {
			return fmt.Errorf("%s is required", config.PackPaymentAmount)
		}
		paymentRef := viper.GetString(config.KebabToSnakeCase(config.PackPaymentRef))

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ctx := context.Background()

		metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
		if err != nil {
			return fmt.Errorf("failed to setup metrics clients: %w", err)
		}
		sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients)
		if err != nil {
			return fmt.Errorf("failed to setup metrics sink: %w", err)
		}

		pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)

		pg, err := postgres.NewPostgres(pgConfig)
		if err != nil {
			return fmt.Errorf("failed to setup postgres connection: %w", err)
		}

		grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
		if err != nil {
			return fmt.Errorf("failed to create gorm instance: %w", err)
		}

		migrator := migrations.NewMigrator(pg.Db, grm, l, cfg)
		if err = migrator.MigrateAll(); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}

		store := gormStore.NewGormTournamentStore(grm, l)

		lg, err := solanaLedger.NewSolanaLedger(&solanaLedger.SolanaLedgerConfig{
			RpcUrl:              cfg.LedgerConfig.RpcUrl,
			SenderKeyPath:       cfg.LedgerConfig.SenderKeyPath,
			InfraAddresses:      cfg.GetProtocolAddresses(),
			ConfirmationTimeout: cfg.RewardsConfig.ConfirmationTimeout,
		}, l)
		if err != nil {
			return fmt.Errorf("failed to connect ledger: %w", err)
		}

		pa := packs.NewPackAllocator(store, lg, sink, cfg, rand.NewSource(time.Now().UnixNano()), l)

		allocation, err := pa.AllocatePack(ctx, buyer, paymentAmount, paymentRef)
		if err != nil {
			return fmt.Errorf("failed to allocate pack: %w", err)
		}

		l.Sugar().Infow("Pack allocated",
			zap.String("purchaseId", allocation.PurchaseId),
			zap.String("buyerAddress", allocation.BuyerAddress),
			zap.Strings("tokenMints", allocation.TokenMints),
		)
		return nil
	},
}

func initAllocatePackCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
