package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgersift/ledgersift/internal/rules"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the integrity rule catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the registered integrity rules",
		Run: func(_ *cobra.Command, _ []string) {
			engine := rules.NewEngine(rules.Catalog(rules.DefaultCatalogConfig()))

			fmt.Printf("%-24s %-24s %s\n", "RULE", "CATEGORY", "SEVERITY")
			for _, rule := range engine.Rules() {
				fmt.Printf("%-24s %-24s %s\n", rule.ID(), rule.Category(), rule.Severity())
			}
		},
	})

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStorage()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Println("Database migrated")
			return nil
		},
	}
}
