package repository

import "github.com/nimasrn/balance-bot/pkg/pg"

// AutoMigrate creates the tables for engines that are not managed by goose.
func AutoMigrate(db *pg.DB) error {
	return db.AutoMigrate(&UserEntity{}, &TransactionEntity{})
}
