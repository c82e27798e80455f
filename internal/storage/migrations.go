package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a fatal
// error.
const ExpectedSchemaVersion = 1

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS internal_transactions (
					id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					amount_minor INTEGER NOT NULL,
					date DATETIME NOT NULL,
					description TEXT,
					counterparty TEXT,
					status TEXT,
					parent_id TEXT,
					approval_id TEXT,
					completed_at DATETIME,
					metadata TEXT
				)`,
				`CREATE INDEX idx_internal_transactions_date ON internal_transactions(date)`,
				`CREATE INDEX idx_internal_transactions_parent ON internal_transactions(parent_id)`,

				`CREATE TABLE IF NOT EXISTS parents (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					total_minor INTEGER NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS approvals (
					id TEXT PRIMARY KEY,
					created_at DATETIME NOT NULL,
					approved_by TEXT
				)`,

				`CREATE TABLE IF NOT EXISTS discrepancies (
					id TEXT PRIMARY KEY,
					run_id TEXT NOT NULL,
					category TEXT NOT NULL,
					severity TEXT NOT NULL,
					entity_id TEXT NOT NULL,
					related_ids TEXT,
					impact_minor INTEGER NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					description TEXT,
					evidence TEXT,
					status TEXT NOT NULL DEFAULT 'NEW',
					assigned_to TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_discrepancies_status ON discrepancies(status)`,
				`CREATE INDEX idx_discrepancies_category ON discrepancies(category)`,

				`CREATE TABLE IF NOT EXISTS reports (
					run_id TEXT PRIMARY KEY,
					kind TEXT NOT NULL,
					generated_at DATETIME NOT NULL,
					payload TEXT NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS audit_log (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					event TEXT NOT NULL,
					run_id TEXT NOT NULL,
					actor_id TEXT,
					counts TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
