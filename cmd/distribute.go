package cmd

import (
	"context"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/internal/types/numbers"
	"github.com/wicketlabs/pavilion/pkg/distributor"
	"github.com/wicketlabs/pavilion/pkg/ledger/solanaLedger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/postgres"
	"github.com/wicketlabs/pavilion/pkg/postgres/migrations"
	"github.com/wicketlabs/pavilion/pkg/rewards"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
	"go.uber.org/zap"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Calculate and pay out a tournament's reward pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		initDistributeCmd(cmd)
		cfg := config.NewConfig()

		tournamentId := viper.GetUint64(config.KebabToSnakeCase(config.TournamentId))
		if tournamentId == 0 {
			return fmt.Errorf("%s is required", config.TournamentId)
		}
		rawAmount := viper.GetString(config.KebabToSnakeCase(config.RewardAmount))
		totalAmount, ok := new(big.Int).SetString(rawAmount, 10)
		if !ok || totalAmount.Sign() <= 0 {
			return fmt.Errorf("%s must be a positive integer, got '%s'", config.RewardAmount, rawAmount)
		}

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

		rc, err := rewards.NewRewardsCalculator(store, cfg, l)
		if err != nil {
			return fmt.Errorf("failed to create rewards calculator: %w", err)
		}

		dist := distributor.NewDistributor(store, lg, rc, sink, nil, cfg, l)

		result, err := dist.Distribute(ctx, tournamentId, totalAmount)
		if err != nil {
			return fmt.Errorf("failed to distribute rewards: %w", err)
		}

		distributedUi, err := numbers.UiAmount(result.TotalDistributed.String(), cfg.RewardsConfig.TokenDecimals)
		if err != nil {
			return fmt.Errorf("failed to render distributed amount: %w", err)
		}

		l.Sugar().Infow("Distribution run complete",
			zap.Uint64("tournamentId", tournamentId),
			zap.String("rewardPoolId", result.RewardPoolId),
			zap.Int("successful", result.Successful),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
			zap.String("totalDistributed", result.TotalDistributed.String()),
			zap.String("totalDistributedUi", distributedUi),
		)
		return nil
	},
}

func initDistributeCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
