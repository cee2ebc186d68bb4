package tests

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/sqlite"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func GetConfig() *config.Config {
	cfg := config.NewConfig()
	if cfg.Chain == "" {
		cfg.Chain = config.Chain_Localnet
	}
	return cfg
}

// GetSqliteDatabaseConnection returns a fresh in-memory database with the
// storage models migrated in. Each call gets its own database, so tests
// never share state.
func GetSqliteDatabaseConnection(l *zap.Logger) (*gorm.DB, error) {
	nonce := make([]byte, 4)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	name := fmt.Sprintf("test_%s", hex.EncodeToString(nonce))

	db, err := sqlite.NewGormSqliteFromSqlite(sqlite.NewInMemorySqliteWithName(name, l))
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storage.Tournament{},
		&storage.Snapshot{},
		&storage.SnapshotHolding{},
		&storage.RewardPool{},
		&storage.UserReward{},
		&storage.PackPurchase{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

// GenerateTestDbName returns a random database name safe for concurrent
// postgres test runs.
func GenerateTestDbName() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("pavilion_test_%s", hex.EncodeToString(b)), nil
}

func ReplaceEnv(newValues map[string]string, previousValues *map[string]string) {
	for k, v := range newValues {
		(*previousValues)[k] = os.Getenv(k)
		os.Setenv(k, v)
	}
}

func RestoreEnv(previousValues map[string]string) {
	for k, v := range previousValues {
		os.Setenv(k, v)
	}
}
