package main

import (
	"io/fs"
	"os"
	"strings"

	"github.com/nimasrn/balance-bot/internal/config"
	"github.com/nimasrn/balance-bot/migrations"
	"github.com/nimasrn/balance-bot/pkg/logger"
	"github.com/nimasrn/balance-bot/pkg/pg"
)

func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	// main.go --dir=./migrations reads from disk, otherwise the embedded set is used
	var fsys fs.FS = migrations.FS
	dir := "."
	if d := getMigrationPath(); d != "" {
		fsys, dir = nil, d
	}
	err = pg.Migrate(config.Get().PostgresWrite(), fsys, dir)
	if err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	if _, err := os.Stat(".env"); err != nil {
		return ""
	}
	return ".env"
}

func getMigrationPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--dir=") {
			s := strings.Split(v, "=")
			if _, err := os.Stat(s[1]); err != nil {
				logger.Error("failed to open the migration dir, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
