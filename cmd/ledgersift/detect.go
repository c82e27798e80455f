package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ledgersift/ledgersift/internal/engine"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/rules"
)

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Scan the transaction store for integrity discrepancies",
		Long: `Run the catalog of integrity rules over the transaction store and report
anomalies: orphaned references, impossible states, amount mismatches,
duplicates, temporal inconsistencies, and threshold violations.

Examples:
  # Run all enabled rules
  ledgersift detect

  # Run a subset, high severity and up, skipping handled findings
  ledgersift detect --rules duplicate_transaction,amount_mismatch --min-severity HIGH --skip-resolved`,
		RunE: runDetect,
	}

	cmd.Flags().StringSlice("rules", nil, "comma-separated rule ids to run (default: all enabled)")
	cmd.Flags().String("min-severity", "", "minimum severity to report (LOW, MEDIUM, HIGH, CRITICAL)")
	cmd.Flags().Bool("skip-resolved", false, "drop findings already resolved or under investigation")
	cmd.Flags().Int("concurrency", 1, "number of rules to evaluate in parallel")
	cmd.Flags().Int64("threshold-limit", 1_000_000, "approval threshold in minor units")
	cmd.Flags().String("actor", "", "actor id recorded against the run")
	cmd.Flags().Bool("auto-assign", false, "assign new findings to the actor")

	return cmd
}

func runDetect(cmd *cobra.Command, _ []string) error {
	ruleIDs, _ := cmd.Flags().GetStringSlice("rules")
	minSeverity, _ := cmd.Flags().GetString("min-severity")
	skipResolved, _ := cmd.Flags().GetBool("skip-resolved")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	thresholdLimit, _ := cmd.Flags().GetInt64("threshold-limit")
	actor, _ := cmd.Flags().GetString("actor")
	autoAssign, _ := cmd.Flags().GetBool("auto-assign")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	catalogCfg := rules.DefaultCatalogConfig()
	catalogCfg.ThresholdLimitMinor = thresholdLimit

	svc := buildService(store, catalogCfg)

	report, err := svc.DetectDiscrepancies(cmd.Context(), engine.DetectOptions{
		Rules: rules.Options{
			RuleIDs:      ruleIDs,
			MinSeverity:  model.Severity(strings.ToUpper(minSeverity)),
			SkipResolved: skipResolved,
			Concurrency:  concurrency,
		},
		AutoAssign: autoAssign,
		ActorID:    actor,
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nDetection %s\n", report.RunID)
	fmt.Printf("  Rules evaluated: %d\n", report.RulesEvaluated)
	fmt.Printf("  Discrepancies:   %d\n", len(report.Discrepancies))
	fmt.Printf("  Overall risk:    %s\n", report.OverallRisk)

	if len(report.Breakdown) > 0 {
		fmt.Println("\nBy category:")
		categories := make([]string, 0, len(report.Breakdown))
		for category := range report.Breakdown {
			categories = append(categories, string(category))
		}
		sort.Strings(categories)
		for _, category := range categories {
			entry := report.Breakdown[model.DiscrepancyCategory(category)]
			fmt.Printf("  %-24s %3d findings, worst %s, impact %.2f\n",
				category, entry.Count, entry.HighestSeverity, float64(entry.TotalImpactMinor)/100)
		}
	}

	if len(report.RuleErrors) > 0 {
		fmt.Println("\nRule errors:")
		for _, ruleErr := range report.RuleErrors {
			fmt.Printf("  %s: %s\n", ruleErr.RuleID, ruleErr.Error)
		}
	}

	fmt.Println("\nRecommended actions:")
	for _, action := range report.RecommendedActions {
		fmt.Printf("  - %s\n", action)
	}

	return nil
}
