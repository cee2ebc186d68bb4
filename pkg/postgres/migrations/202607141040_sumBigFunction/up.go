package _202607141040_sumBigFunction

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

// Balances are stored as numeric strings; sum_big aggregates them without
// float coercion. The sqlite test driver registers an equivalent aggregate.
func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`CREATE OR REPLACE FUNCTION add_big(state numeric, value varchar)
			RETURNS numeric
			LANGUAGE sql
			IMMUTABLE
			AS $$ SELECT state + value::numeric $$`,
		`CREATE OR REPLACE AGGREGATE sum_big(varchar) (
			SFUNC = add_big,
			STYPE = numeric,
			INITCOND = '0'
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
	return "202607141040_sumBigFunction"
}
