package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/engine"
	"github.com/ledgersift/ledgersift/internal/rules"
	"github.com/ledgersift/ledgersift/internal/storage"
)

func databasePath() (string, error) {
	if path := viper.GetString("database.path"); path != "" {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "ledgersift", "ledgersift.db"), nil
}

func openStorage() (*storage.SQLiteStorage, error) {
	path, err := databasePath()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, common.NewUserError("failed to open database", err)
	}

	return store, nil
}

func buildService(store *storage.SQLiteStorage, catalogCfg rules.CatalogConfig) *engine.Service {
	ruleEngine := rules.NewEngine(rules.Catalog(catalogCfg))

	return engine.New(engine.Config{
		Ledger:    store,
		RuleStore: store,
		Statuses:  store,
		Reports:   store,
		Audit:     store,
	}, ruleEngine)
}
