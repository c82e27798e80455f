package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgersift/ledgersift/internal/model"
)

// ledgerSnapshot is the JSON shape of an exported ledger snapshot.
type ledgerSnapshot struct {
	Transactions []model.InternalTransaction `json:"transactions"`
	Parents      []model.ParentRecord        `json:"parents,omitempty"`
	Approvals    []model.Approval            `json:"approvals,omitempty"`
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [snapshot file]",
		Short: "Load a ledger snapshot into the local database",
		Long: `Load an exported ledger snapshot (transactions, parent records, approvals)
into the local database so it can be reconciled and scanned.

The snapshot is a JSON object with "transactions", "parents", and "approvals"
arrays. Existing rows with the same ids are replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot ledgerSnapshot
	if err := json.Unmarshal(content, &snapshot); err != nil {
		return fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := store.SaveInternalTransactions(cmd.Context(), snapshot.Transactions); err != nil {
		return fmt.Errorf("failed to import transactions: %w", err)
	}
	if err := store.SaveParents(cmd.Context(), snapshot.Parents); err != nil {
		return fmt.Errorf("failed to import parents: %w", err)
	}
	if err := store.SaveApprovals(cmd.Context(), snapshot.Approvals); err != nil {
		return fmt.Errorf("failed to import approvals: %w", err)
	}

	fmt.Printf("Imported %d transactions, %d parents, %d approvals\n",
		len(snapshot.Transactions), len(snapshot.Parents), len(snapshot.Approvals))

	return nil
}

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [discrepancy id]",
		Short: "Update the lifecycle status of a discrepancy",
		Long: `Record a case-management decision against a persisted discrepancy.

Examples:
  ledgersift resolve 3f1a9c2b44de01ab --status RESOLVED
  ledgersift resolve 3f1a9c2b44de01ab --status FALSE_POSITIVE`,
		Args: cobra.ExactArgs(1),
		RunE: runResolve,
	}

	cmd.Flags().String("status", string(model.DiscrepancyResolved),
		"new status (INVESTIGATING, RESOLVED, FALSE_POSITIVE)")

	return cmd
}

func runResolve(cmd *cobra.Command, args []string) error {
	statusFlag, _ := cmd.Flags().GetString("status")

	status := model.DiscrepancyStatus(strings.ToUpper(statusFlag))
	switch status {
	case model.DiscrepancyInvestigating, model.DiscrepancyResolved, model.DiscrepancyFalsePositive:
	default:
		return fmt.Errorf("invalid status %q (expected INVESTIGATING, RESOLVED, or FALSE_POSITIVE)", statusFlag)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.UpdateDiscrepancyStatus(cmd.Context(), args[0], status); err != nil {
		return fmt.Errorf("failed to update discrepancy: %w", err)
	}

	fmt.Printf("Discrepancy %s marked %s\n", args[0], status)
	return nil
}
