package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

type Chain string

const (
	Chain_Mainnet  Chain = "mainnet-beta"
	Chain_Devnet   Chain = "devnet"
	Chain_Localnet Chain = "localnet"
)

const ENV_PREFIX = "PAVILION"

// Flag names, shared between cmd and config so viper keys stay consistent.
const (
	Debug     = "debug"
	ChainFlag = "chain"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db-name"
	DatabaseSchemaName = "database.schema-name"
	DatabaseSSLMode    = "database.ssl-mode"

	LedgerRpcUrl        = "ledger.rpc-url"
	LedgerSenderKeyPath = "ledger.sender-key-path"
	LedgerQueryLimit    = "ledger.query-limit"

	RewardsTokenMint           = "rewards.token-mint"
	RewardsBatchSize           = "rewards.batch-size"
	RewardsBatchCooldown       = "rewards.batch-cooldown"
	RewardsConfirmationTimeout = "rewards.confirmation-timeout"
	RewardsMinPayout           = "rewards.min-payout"
	RewardsTokenDecimals       = "rewards.token-decimals"

	PacksPrice       = "packs.price"
	PacksTokenCount  = "packs.token-count"
	PacksTokenAmount = "packs.token-amount"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	// Subcommand flags.
	TournamentId      = "tournament-id"
	SnapshotTypeFlag  = "snapshot-type"
	RewardAmount      = "reward-amount"
	PackBuyer         = "buyer"
	PackPaymentAmount = "payment-amount"
	PackPaymentRef    = "payment-ref"
)

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	SSLMode    string
}

type LedgerConfig struct {
	RpcUrl string
	// SenderKeyPath points at the json keypair file of the reward vault
	// account that signs outgoing transfers.
	SenderKeyPath string
	// QueryLimit bounds the number of concurrent holder queries issued
	// during snapshot capture.
	QueryLimit int
}

type RewardsConfig struct {
	// TokenMint is the token reward pools pay out in.
	TokenMint           string
	BatchSize           int
	BatchCooldown       time.Duration
	ConfirmationTimeout time.Duration
	// MinPayout is the smallest per-recipient amount, in raw token units,
	// that is worth the transfer fee. Smaller shares are reported as
	// skipped and remain in the pool.
	MinPayout string
	// TokenDecimals scales raw amounts for human-readable log output only.
	TokenDecimals int32
}

type PacksConfig struct {
	// Price of a pack in raw utility-token units.
	Price string
	// TokenCount is the number of player tokens allocated per pack.
	TokenCount int
	// TokenAmount is the raw amount of each drawn player token.
	TokenAmount string
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type Config struct {
	Chain            Chain
	Debug            bool
	DatabaseConfig   DatabaseConfig
	LedgerConfig     LedgerConfig
	RewardsConfig    RewardsConfig
	PacksConfig      PacksConfig
	PrometheusConfig PrometheusConfig
}

var kebabRegex = regexp.MustCompile(`[-.]+`)

func KebabToSnakeCase(str string) string {
	return kebabRegex.ReplaceAllString(str, "_")
}

func NewConfig() *Config {
	return &Config{
		Chain: Chain(viper.GetString(KebabToSnakeCase(ChainFlag))),
		Debug: viper.GetBool(KebabToSnakeCase(Debug)),

		DatabaseConfig: DatabaseConfig{
			Host:       viper.GetString(KebabToSnakeCase(DatabaseHost)),
			Port:       viper.GetInt(KebabToSnakeCase(DatabasePort)),
			User:       viper.GetString(KebabToSnakeCase(DatabaseUser)),
			Password:   viper.GetString(KebabToSnakeCase(DatabasePassword)),
			DbName:     viper.GetString(KebabToSnakeCase(DatabaseDbName)),
			SchemaName: viper.GetString(KebabToSnakeCase(DatabaseSchemaName)),
			SSLMode:    viper.GetString(KebabToSnakeCase(DatabaseSSLMode)),
		},
		LedgerConfig: LedgerConfig{
			RpcUrl:        viper.GetString(KebabToSnakeCase(LedgerRpcUrl)),
			SenderKeyPath: viper.GetString(KebabToSnakeCase(LedgerSenderKeyPath)),
			QueryLimit:    viper.GetInt(KebabToSnakeCase(LedgerQueryLimit)),
		},
		RewardsConfig: RewardsConfig{
			TokenMint:           viper.GetString(KebabToSnakeCase(RewardsTokenMint)),
			BatchSize:           viper.GetInt(KebabToSnakeCase(RewardsBatchSize)),
			BatchCooldown:       viper.GetDuration(KebabToSnakeCase(RewardsBatchCooldown)),
			ConfirmationTimeout: viper.GetDuration(KebabToSnakeCase(RewardsConfirmationTimeout)),
			MinPayout:           viper.GetString(KebabToSnakeCase(RewardsMinPayout)),
			TokenDecimals:       viper.GetInt32(KebabToSnakeCase(RewardsTokenDecimals)),
		},
		PacksConfig: PacksConfig{
			Price:       viper.GetString(KebabToSnakeCase(PacksPrice)),
			TokenCount:  viper.GetInt(KebabToSnakeCase(PacksTokenCount)),
			TokenAmount: viper.GetString(KebabToSnakeCase(PacksTokenAmount)),
		},
		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(KebabToSnakeCase(PrometheusEnabled)),
			Port:    viper.GetInt(KebabToSnakeCase(PrometheusPort)),
		},
	}
}

func ParseChain(name string) (Chain, error) {
	switch Chain(name) {
	case Chain_Mainnet, Chain_Devnet, Chain_Localnet:
		return Chain(name), nil
	}
	return "", fmt.Errorf("unsupported chain '%s'", name)
}

// UtilityTokenMint is the fixed-price payment token. It is infrastructure,
// not a reward-bearing asset, and never appears in snapshots.
var UtilityTokenMint = map[Chain]string{
	Chain_Mainnet:  "CRKTuti1mPbkUzzVvXrgQcCPikRNnySA3FBvNVFhbF7o",
	Chain_Devnet:   "DEVuti1ShdD9wYnkqsUcLgScBy1zULygkAW4WXCHPQta",
	Chain_Localnet: "LOCALuti11111111111111111111111111111111111",
}

// ProtocolAddresses are pool, treasury and AMM accounts owned by the
// platform. They hold large balances of every player token and must never
// be treated as participating holders.
var ProtocolAddresses = map[Chain][]string{
	Chain_Mainnet: {
		"CRKTtrsy2eoHw4oFXbnBRCJGmPHkQY6oyFtTkMrg6mpv",
		"CRKTammWJcEEDWhEsmAHHGpYkfB5BTzZSdRYpzgjmuAM",
		"CRKTvauLt4yWhT6mEJtZwnhYyuVPuCjAqFxGBJrSzvxD",
	},
	Chain_Devnet: {
		"DEVtrsy5gsKirUqhpGCGB1ZnMB7Vzpyi2yWt7XhZdacT",
		"DEVammw7vGEAnbE8A4wKaTUZZhJq8PAtWWDsGnUu8P2S",
	},
	Chain_Localnet: {
		"LOCALtrsy111111111111111111111111111111111",
		"LOCALamm1111111111111111111111111111111111",
	},
}

// DefaultEligibleTokens is the global fallback used when a tournament has no
// frozen eligible-token list of its own.
var DefaultEligibleTokens = map[Chain][]string{
	Chain_Mainnet: {
		"PLYRkoh1iGLNoFNzhbJcStc4Xu63VTtTgnZGJGAGDS5",
		"PLYRgu1AxB8ZvMb4SbiSXXxIGzGvQTNnBLeGY2VYmfj",
		"PLYRdhoni5FqTZJgKnhXNzhKoFnZbUc6yCAUTcNuvBQ",
		"PLYRsharma3r1t59PZbQvcYWLVHaJCBYu1iKGeXUkUY",
	},
	Chain_Devnet: {
		"DEVply1111111111111111111111111111111111111",
		"DEVply2222222222222222222222222222222222222",
	},
	Chain_Localnet: {
		"LOCALply11111111111111111111111111111111111",
	},
}

func (c *Config) GetUtilityTokenMint() string {
	return UtilityTokenMint[c.Chain]
}

func (c *Config) GetProtocolAddresses() []string {
	addrs, ok := ProtocolAddresses[c.Chain]
	if !ok {
		return []string{}
	}
	return addrs
}

func (c *Config) GetDefaultEligibleTokens() []string {
	tokens, ok := DefaultEligibleTokens[c.Chain]
	if !ok {
		return []string{}
	}
	return tokens
}

// PackCatalogEntry is one player token available in packs, with its draw
// weight. Higher weight means more common.
type PackCatalogEntry struct {
	TokenMint string
	Weight    int
}

// PackCatalogs weights the default eligible tokens for the pack draw.
// Star players carry lower weights so they land less often.
var PackCatalogs = map[Chain][]PackCatalogEntry{
	Chain_Mainnet: {
		{TokenMint: "PLYRkoh1iGLNoFNzhbJcStc4Xu63VTtTgnZGJGAGDS5", Weight: 10},
		{TokenMint: "PLYRgu1AxB8ZvMb4SbiSXXxIGzGvQTNnBLeGY2VYmfj", Weight: 25},
		{TokenMint: "PLYRdhoni5FqTZJgKnhXNzhKoFnZbUc6yCAUTcNuvBQ", Weight: 25},
		{TokenMint: "PLYRsharma3r1t59PZbQvcYWLVHaJCBYu1iKGeXUkUY", Weight: 40},
	},
	Chain_Devnet: {
		{TokenMint: "DEVply1111111111111111111111111111111111111", Weight: 50},
		{TokenMint: "DEVply2222222222222222222222222222222222222", Weight: 50},
	},
	Chain_Localnet: {
		{TokenMint: "LOCALply11111111111111111111111111111111111", Weight: 100},
	},
}

func (c *Config) GetPackCatalog() []PackCatalogEntry {
	catalog, ok := PackCatalogs[c.Chain]
	if !ok {
		return []PackCatalogEntry{}
	}
	return catalog
}
