package _202607221416_packPurchases

import (
	"database/sql"

	"gorm.io/gorm"
)

type Migration struct {
}

func (m *Migration) Up(db *sql.DB, grm *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pack_purchases (
			id varchar primary key,
			buyer_address varchar not null,
			payment_amount numeric not null,
			payment_ref varchar,
			token_mints jsonb not null default '[]'::jsonb,
			transfer_refs jsonb not null default '[]'::jsonb,
			created_at timestamp with time zone default now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pack_purchases_buyer_address ON pack_purchases (buyer_address)`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202607221416_packPurchases"
}
