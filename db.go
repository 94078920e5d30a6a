package main

import (
	"errors"
	"log/slog"

	"platelog/pkg/config"
	"platelog/pkg/store"
)

// initDB connects and migrates the readings table regardless of DB_AUTO_MIGRATE.
func initDB(cfg config.Database, logger *slog.Logger) error {
	if cfg.DSN == "" {
		return errors.New("DB_DSN is not set. Migration requires a Postgres DSN in DB_DSN")
	}
	db, err := store.Open(cfg.DSN, true, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
