package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/pkg/ledger/solanaLedger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/postgres"
	"github.com/wicketlabs/pavilion/pkg/postgres/migrations"
	"github.com/wicketlabs/pavilion/pkg/snapshotter"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
	"go.uber.org/zap"
)

var captureSnapshotCmd = &cobra.Command{
	Use:   "capture-snapshot",
	Short: "Capture a holdings snapshot for a tournament boundary",
	RunE: func(cmd *cobra.Command, args []string) error {
		initCaptureSnapshotCmd(cmd)
		cfg := config.NewConfig()

		tournamentId := viper.GetUint64(config.KebabToSnakeCase(config.TournamentId))
		if tournamentId == 0 {
			return fmt.Errorf("%s is required", config.TournamentId)
		}
		snapshotType := storage.SnapshotType(viper.GetString(config.KebabToSnakeCase(config.SnapshotTypeFlag)))
		if snapshotType != storage.SnapshotType_PreMatch && snapshotType != storage.SnapshotType_PostMatch {
			return fmt.Errorf("%s must be %s or %s", config.SnapshotTypeFlag, storage.SnapshotType_PreMatch, storage.SnapshotType_PostMatch)
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

		se := snapshotter.NewSnapshotEngine(store, lg, sink, cfg, l)

		result, err := se.CaptureSnapshot(ctx, tournamentId, snapshotType, snapshotter.DefaultSourceAddress)
		if err != nil {
			return fmt.Errorf("failed to capture snapshot: %w", err)
		}

		l.Sugar().Infow("Captured snapshot",
			zap.Uint64("snapshotId", result.Snapshot.Id),
			zap.Uint64("tournamentId", tournamentId),
			zap.String("snapshotType", string(snapshotType)),
			zap.Uint64("slot", result.Snapshot.Slot),
			zap.Int("holdings", len(result.Snapshot.Holdings)),
			zap.Strings("failedTokens", result.FailedTokens),
		)
		return nil
	},
}

func initCaptureSnapshotCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
