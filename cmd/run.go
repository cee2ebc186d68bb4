package cmd

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/internal/version"
	"github.com/wicketlabs/pavilion/pkg/distributor"
	"github.com/wicketlabs/pavilion/pkg/ledger/solanaLedger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/metrics/prometheus"
	"github.com/wicketlabs/pavilion/pkg/packs"
	"github.com/wicketlabs/pavilion/pkg/postgres"
	"github.com/wicketlabs/pavilion/pkg/postgres/migrations"
	"github.com/wicketlabs/pavilion/pkg/rewards"
	"github.com/wicketlabs/pavilion/pkg/shutdown"
	"github.com/wicketlabs/pavilion/pkg/snapshotter"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pavilion engine: migrate the database, connect the ledger and wait for work",
	Run: func(cmd *cobra.Command, args []string) {
		initRunCmd(cmd)
		cfg := config.NewConfig()

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

		l.Sugar().Infow("pavilion",
			zap.String("version", version.GetVersion()),
			zap.String("commit", version.GetCommit()),
			zap.String("chain", string(cfg.Chain)),
		)

		metricsClients, err := metrics.InitMetricsSinksFromConfig(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics clients", zap.Error(err))
		}

		sink, err := metrics.NewMetricsSink(&metrics.MetricsSinkConfig{}, metricsClients)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics sink", zap.Error(err))
		}

		pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)

		pg, err := postgres.NewPostgres(pgConfig)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup postgres connection", zap.Error(err))
		}

		grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
		if err != nil {
			l.Sugar().Fatalw("Failed to create gorm instance", zap.Error(err))
		}

		migrator := migrations.NewMigrator(pg.Db, grm, l, cfg)
		if err = migrator.MigrateAll(); err != nil {
			l.Sugar().Fatalw("Failed to migrate", zap.Error(err))
		}

		store := gormStore.NewGormTournamentStore(grm, l)

		lg, err := solanaLedger.NewSolanaLedger(&solanaLedger.SolanaLedgerConfig{
			RpcUrl:              cfg.LedgerConfig.RpcUrl,
			SenderKeyPath:       cfg.LedgerConfig.SenderKeyPath,
			InfraAddresses:      cfg.GetProtocolAddresses(),
			ConfirmationTimeout: cfg.RewardsConfig.ConfirmationTimeout,
		}, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to connect ledger", zap.Error(err))
		}

		se := snapshotter.NewSnapshotEngine(store, lg, sink, cfg, l)

		rc, err := rewards.NewRewardsCalculator(store, cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to create rewards calculator", zap.Error(err))
		}

		dist := distributor.NewDistributor(store, lg, rc, sink, nil, cfg, l)

		pa := packs.NewPackAllocator(store, lg, sink, cfg, rand.NewSource(time.Now().UnixNano()), l)

		// Snapshot capture, distribution and pack allocation are driven by
		// the platform's controllers calling back into these engines; the
		// process just holds them ready.
		l.Sugar().Infow("Engines ready",
			zap.Bool("snapshotter", se != nil),
			zap.Bool("distributor", dist != nil),
			zap.Bool("packs", pa != nil),
		)

		promChan := make(chan bool)
		if cfg.PrometheusConfig.Enabled {
			pServer := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: cfg.PrometheusConfig.Port,
			}, l)
			if err := pServer.Start(promChan); err != nil {
				l.Sugar().Fatalw("Failed to start prometheus server", zap.Error(err))
			}
		}

		l.Sugar().Info("Started pavilion")

		gracefulShutdown := shutdown.CreateGracefulShutdownChannel()

		done := make(chan bool)
		shutdown.ListenForShutdown(gracefulShutdown, done, func() {
			l.Sugar().Info("Shutting down...")
			if cfg.PrometheusConfig.Enabled {
				promChan <- true
			}
		}, time.Second*5, l)
	},
}

func initRunCmd(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := viper.BindPFlag(config.KebabToSnakeCase(f.Name), f); err != nil {
			fmt.Printf("Failed to bind flag '%s' - %+v\n", f.Name, err)
		}
		if err := viper.BindEnv(f.Name); err != nil {
			fmt.Printf("Failed to bind env '%s' - %+v\n", f.Name, err)
		}
	})
}
