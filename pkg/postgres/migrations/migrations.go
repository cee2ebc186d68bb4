package migrations

import (
	"database/sql"
	"fmt"

	"github.com/wicketlabs/pavilion/internal/config"
	_202607141017_tournaments "github.com/wicketlabs/pavilion/pkg/postgres/migrations/202607141017_tournaments"
	_202607141025_snapshots "github.com/wicketlabs/pavilion/pkg/postgres/migrations/202607141025_snapshots"
	_202607141040_sumBigFunction "github.com/wicketlabs/pavilion/pkg/postgres/migrations/202607141040_sumBigFunction"
	_202607151102_rewardPools "github.com/wicketlabs/pavilion/pkg/postgres/migrations/202607151102_rewardPools"
	_202607221416_packPurchases "github.com/wicketlabs/pavilion/pkg/postgres/migrations/202607221416_packPurchases"
	_202608111230_userRewardStatusIndex "github.com/wicketlabs/pavilion/pkg/postgres/migrations/202608111230_userRewardStatusIndex"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ISqlMigration is a single schema migration. GetName must be unique and is
// what gets recorded in the migrations table.
type ISqlMigration interface {
	Up(db *sql.DB, grm *gorm.DB) error
	GetName() string
}

// Migrations run in order; append only.
var Migrations = []ISqlMigration{
	&_202607141017_tournaments.Migration{},
	&_202607141025_snapshots.Migration{},
	&_202607141040_sumBigFunction.Migration{},
	&_202607151102_rewardPools.Migration{},
	&_202607221416_packPurchases.Migration{},
	&_202608111230_userRewardStatusIndex.Migration{},
}

type Migrator struct {
	Db           *sql.DB
	GDb          *gorm.DB
	Logger       *zap.Logger
	globalConfig *config.Config
}

func NewMigrator(db *sql.DB, gDb *gorm.DB, l *zap.Logger, cfg *config.Config) *Migrator {
	migrator := &Migrator{
		Db:           db,
		GDb:          gDb,
		Logger:       l,
		globalConfig: cfg,
	}
	migrator.initializeMigrationTable()
	return migrator
}

func (m *Migrator) initializeMigrationTable() {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			name varchar primary key,
			created_at timestamp with time zone default now()
		)`
	result := m.GDb.Exec(query)
	if result.Error != nil {
		m.Logger.Sugar().Fatalw("Failed to create migrations table", zap.Error(result.Error))
	}
}

func (m *Migrator) MigrateAll() error {
	for _, migration := range Migrations {
		if err := m.Migrate(migration); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) Migrate(migration ISqlMigration) error {
	name := migration.GetName()

	var count int64
	result := m.GDb.Raw(`SELECT count(*) FROM migrations WHERE name = ?`, name).Scan(&count)
	if result.Error != nil {
		return fmt.Errorf("failed to check migration status for '%s': %w", name, result.Error)
	}
	if count > 0 {
		return nil
	}

	m.Logger.Sugar().Infow("Running migration", zap.String("name", name))
	if err := migration.Up(m.Db, m.GDb); err != nil {
		m.Logger.Sugar().Errorw("Failed to run migration", zap.String("name", name), zap.Error(err))
		return err
	}

	result = m.GDb.Exec(`INSERT INTO migrations (name) VALUES (?)`, name)
	if result.Error != nil {
		return fmt.Errorf("failed to record migration '%s': %w", name, result.Error)
	}
	return nil
}
