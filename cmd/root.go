package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/wicketlabs/pavilion/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "pavilion",
	Short: "Pavilion captures tournament holdings snapshots and settles fantasy cricket rewards",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().StringP(config.ChainFlag, "c", "mainnet-beta", "The chain to use (mainnet-beta, devnet, localnet)")

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "pavilion", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "pavilion", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL ssl mode`)

	rootCmd.PersistentFlags().String(config.LedgerRpcUrl, "", `e.g. "https://api.mainnet-beta.solana.com"`)
	rootCmd.PersistentFlags().String(config.LedgerSenderKeyPath, "", `Path to the reward vault keypair file`)
	rootCmd.PersistentFlags().Int(config.LedgerQueryLimit, 4, `Max concurrent holder queries during snapshot capture`)

	rootCmd.PersistentFlags().String(config.RewardsTokenMint, "", `Token mint reward pools pay out in`)
	rootCmd.PersistentFlags().Int(config.RewardsBatchSize, 5, `Transfers submitted per batch`)
	rootCmd.PersistentFlags().Duration(config.RewardsBatchCooldown, 0, `Pause between transfer batches, e.g. "2s"`)
	rootCmd.PersistentFlags().Duration(config.RewardsConfirmationTimeout, 0, `Max wait for transfer confirmation, e.g. "30s"`)
	rootCmd.PersistentFlags().String(config.RewardsMinPayout, "0", `Smallest per-recipient payout in raw units`)
	rootCmd.PersistentFlags().Int32(config.RewardsTokenDecimals, 9, `Decimals of the reward token, for log display`)

	rootCmd.PersistentFlags().String(config.PacksPrice, "0", `Pack price in raw utility-token units`)
	rootCmd.PersistentFlags().Int(config.PacksTokenCount, 3, `Player tokens per pack`)
	rootCmd.PersistentFlags().String(config.PacksTokenAmount, "0", `Raw amount of each drawn player token`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to serve prometheus metrics on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runDatabaseCmd)
	rootCmd.AddCommand(captureSnapshotCmd)
	rootCmd.AddCommand(distributeCmd)
	rootCmd.AddCommand(allocatePackCmd)
	rootCmd.AddCommand(runVersionCmd)

	// bind any subcommand flags
	captureSnapshotCmd.PersistentFlags().Uint64(config.TournamentId, 0, `Tournament to snapshot (required)`)
	captureSnapshotCmd.PersistentFlags().String(config.SnapshotTypeFlag, "", `"PRE_MATCH" or "POST_MATCH" (required)`)

	distributeCmd.PersistentFlags().Uint64(config.TournamentId, 0, `Tournament to distribute rewards for (required)`)
	distributeCmd.PersistentFlags().String(config.RewardAmount, "", `Total reward pool amount in raw units (required)`)

	allocatePackCmd.PersistentFlags().String(config.PackBuyer, "", `Buyer wallet address (required)`)
	allocatePackCmd.PersistentFlags().String(config.PackPaymentAmount, "", `Payment amount in raw utility-token units (required)`)
	allocatePackCmd.PersistentFlags().String(config.PackPaymentRef, "", `Ledger reference of the payment transaction`)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}
