package _202607151102_rewardPools

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reward_pools (
			id varchar primary key,
			tournament_id bigint not null references tournaments(id),
			total_amount numeric not null,
			distributed_amount numeric not null default 0,
			distribution_type varchar not null,
			token_mint varchar not null,
			created_at timestamp with time zone default now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_reward_pool_tournament ON reward_pools (tournament_id)`,
		`CREATE TABLE IF NOT EXISTS user_rewards (
			id bigserial primary key,
			reward_pool_id varchar not null references reward_pools(id),
			recipient_address varchar not null,
			amount numeric not null,
			status varchar not null default 'PENDING',
			transaction_ref varchar,
			error_detail varchar,
			created_at timestamp with time zone default now(),
			updated_at timestamp with time zone default now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_reward_pool_recipient ON user_rewards (reward_pool_id, recipient_address)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202607151102_rewardPools"
}
