package _202607141025_snapshots

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS snapshots (
			id bigserial primary key,
			tournament_id bigint not null references tournaments(id),
			snapshot_type varchar not null,
			source_address varchar not null,
			slot bigint not null,
			failed_token_count integer not null default 0,
			taken_at timestamp with time zone,
			created_at timestamp with time zone default now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uniq_snapshot_tournament_type ON snapshots (tournament_id, snapshot_type)`,
		`CREATE TABLE IF NOT EXISTS snapshot_holdings (
			id bigserial primary key,
			snapshot_id bigint not null references snapshots(id),
			holding_index integer not null,
			holder_address varchar not null,
			token_mint varchar not null,
			balance numeric not null
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_holdings_snapshot_id ON snapshot_holdings (snapshot_id)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202607141025_snapshots"
}
