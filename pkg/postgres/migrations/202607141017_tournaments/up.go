package _202607141017_tournaments

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS tournaments (
			id bigserial primary key,
			name varchar not null,
			team_a varchar not null,
			team_b varchar not null,
			status varchar not null default 'UPCOMING',
			match_ref varchar,
			eligible_tokens jsonb not null default '[]'::jsonb,
			scheduled_at timestamp with time zone,
			created_at timestamp with time zone default now()
		)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202607141017_tournaments"
}
