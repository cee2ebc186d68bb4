package _202608111230_userRewardStatusIndex

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

// The distributor scans for PENDING rows on every resume; without this the
// scan walks the whole table once pools get large.
func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`CREATE INDEX IF NOT EXISTS idx_user_rewards_status ON user_rewards (status)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202608111230_userRewardStatusIndex"
}
