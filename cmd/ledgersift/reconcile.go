package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgersift/ledgersift/internal/engine"
	"github.com/ledgersift/ledgersift/internal/matcher"
	"github.com/ledgersift/ledgersift/internal/rules"
	"github.com/ledgersift/ledgersift/internal/statement"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [statement file]",
		Short: "Reconcile a bank statement against the internal ledger",
		Long: `Parse a bank statement, match its transactions against internally recorded
transactions, and report balance discrepancies.

Examples:
  # Reconcile a CSV statement
  ledgersift reconcile ~/Downloads/statement_jan.csv

  # Reconcile an OFX export with custom tolerances
  ledgersift reconcile --format ofx --date-tolerance 5 ~/Downloads/export.qfx`,
		Args: cobra.ExactArgs(1),
		RunE: runReconcile,
	}

	cmd.Flags().String("format", "csv", "statement format (csv, ofx)")
	cmd.Flags().String("bank", "", "bank name hint when the statement has none")
	cmd.Flags().String("account", "", "account number hint when the statement has none")
	cmd.Flags().Int("date-tolerance", 3, "date tolerance in days")
	cmd.Flags().Float64("amount-tolerance", 0.01, "amount tolerance as a fraction of the internal amount")
	cmd.Flags().Float64("auto-threshold", 0.8, "minimum confidence to accept a match")
	cmd.Flags().String("actor", "", "actor id recorded against the run")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	bank, _ := cmd.Flags().GetString("bank")
	account, _ := cmd.Flags().GetString("account")
	dateTolerance, _ := cmd.Flags().GetInt("date-tolerance")
	amountTolerance, _ := cmd.Flags().GetFloat64("amount-tolerance")
	autoThreshold, _ := cmd.Flags().GetFloat64("auto-threshold")
	actor, _ := cmd.Flags().GetString("actor")

	var format statement.Format
	switch strings.ToLower(formatFlag) {
	case "csv":
		format = statement.FormatCSV
	case "ofx", "qfx":
		format = statement.FormatOFX
	default:
		return fmt.Errorf("unknown format %q (expected csv or ofx)", formatFlag)
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read statement file: %w", err)
	}

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	svc := buildService(store, rules.DefaultCatalogConfig())

	report, err := svc.ReconcileStatement(cmd.Context(), content, engine.ReconcileOptions{
		Format: format,
		Hints:  statement.Hints{BankName: bank, AccountNumber: account},
		Match: matcher.Config{
			DateToleranceDays:      dateTolerance,
			AmountTolerancePercent: amountTolerance,
			AutoMatchThreshold:     autoThreshold,
		},
		ActorID: actor,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nReconciliation %s\n", report.RunID)
	fmt.Printf("  Period:             %s to %s\n",
		report.Period.Start.Format("2006-01-02"),
		report.Period.End.Format("2006-01-02"))
	fmt.Printf("  Matched:            %d\n", len(report.Matched))
	fmt.Printf("  Unmatched (bank):   %d\n", len(report.UnmatchedBank))
	fmt.Printf("  Unmatched (ledger): %d\n", len(report.UnmatchedInternal))
	fmt.Printf("  Skipped rows:       %d\n", report.SkippedRows)
	fmt.Printf("  Closing balance:    %.2f\n", float64(report.ClosingBalanceMinor)/100)
	fmt.Printf("  Internal balance:   %.2f\n", float64(report.InternalBalanceMinor)/100)
	fmt.Printf("  Difference:         %.2f\n", float64(report.DifferenceMinor)/100)

	if report.Reconciled {
		fmt.Println("\n✅ Balances reconcile")
	} else {
		fmt.Println("\n⚠️  Balances do not reconcile")
	}

	return nil
}
