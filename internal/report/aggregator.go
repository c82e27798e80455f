// Package report reduces match results and rule findings into immutable,
// serializable reports. Both pipelines converge here; nothing downstream
// needs to re-derive any computation.
package report

import (
	"fmt"
	"time"

	"github.com/ledgersift/ledgersift/internal/matcher"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/rules"
	"github.com/ledgersift/ledgersift/internal/statement"
)

// Risk escalation thresholds: more than maxHighFindings HIGH findings
// escalates to CRITICAL, more than maxMediumFindings MEDIUM findings
// escalates to HIGH.
const (
	maxHighFindings   = 5
	maxMediumFindings = 10
)

// BuildReconciliationReport assembles the report for one matching run. The
// signed difference is statement closing balance minus the sum of internal
// amounts; the run reconciles when the difference is under one minor unit.
func BuildReconciliationReport(runID string, generatedAt time.Time, stmt *statement.ParsedStatement, internalTxns []model.InternalTransaction, matchResult *matcher.Result) *model.ReconciliationReport {
	var internalSum int64
	for _, txn := range internalTxns {
		internalSum += txn.AmountMinor
	}

	difference := stmt.ClosingBalanceMinor - internalSum

	return &model.ReconciliationReport{
		RunID:                runID,
		GeneratedAt:          generatedAt,
		Period:               stmt.Period,
		BankName:             stmt.BankName,
		AccountNumber:        stmt.AccountNumber,
		Matched:              matchResult.Matched,
		UnmatchedBank:        matchResult.UnmatchedBank,
		UnmatchedInternal:    matchResult.UnmatchedInternal,
		ClosingBalanceMinor:  stmt.ClosingBalanceMinor,
		InternalBalanceMinor: internalSum,
		DifferenceMinor:      difference,
		SkippedRows:          stmt.SkippedRows,
		Reconciled:           abs64(difference) < 1,
	}
}

// BuildDetectionReport assembles the report for one rule scan: per-category
// breakdown, overall risk, and recommended actions derived purely from the
// breakdown.
func BuildDetectionReport(runID string, generatedAt time.Time, result *rules.RunResult) *model.DiscrepancyDetectionReport {
	breakdown := make(map[model.DiscrepancyCategory]model.CategoryBreakdown)
	severityCounts := make(map[model.Severity]int)

	for _, d := range result.Discrepancies {
		entry := breakdown[d.Category]
		entry.Count++
		entry.TotalImpactMinor += d.ImpactMinor
		entry.HighestSeverity = entry.HighestSeverity.Max(d.Severity)
		breakdown[d.Category] = entry

		severityCounts[d.Severity]++
	}

	return &model.DiscrepancyDetectionReport{
		RunID:              runID,
		GeneratedAt:        generatedAt,
		Discrepancies:      result.Discrepancies,
		Breakdown:          breakdown,
		OverallRisk:        overallRisk(severityCounts),
		RecommendedActions: recommendedActions(severityCounts, result.RuleErrors),
		RuleErrors:         result.RuleErrors,
		RulesEvaluated:     result.RulesEvaluated,
	}
}

// overallRisk collapses severity counts into one run-level risk: CRITICAL if
// any critical finding or an excess of HIGH findings, HIGH if any high
// finding or an excess of MEDIUM findings, MEDIUM if any medium finding,
// else LOW.
func overallRisk(counts map[model.Severity]int) model.Severity {
	switch {
	case counts[model.SeverityCritical] > 0 || counts[model.SeverityHigh] > maxHighFindings:
		return model.SeverityCritical
	case counts[model.SeverityHigh] > 0 || counts[model.SeverityMedium] > maxMediumFindings:
		return model.SeverityHigh
	case counts[model.SeverityMedium] > 0:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// recommendedActions derives short counted summaries from the breakdown. No
// external call-outs: the case-management workflow decides what to do.
func recommendedActions(counts map[model.Severity]int, ruleErrors []model.RuleError) []string {
	var actions []string

	if n := counts[model.SeverityCritical]; n > 0 {
		actions = append(actions, fmt.Sprintf("%d critical discrepancies need immediate investigation", n))
	}
	if n := counts[model.SeverityHigh]; n > 0 {
		actions = append(actions, fmt.Sprintf("%d high-severity discrepancies should be reviewed this week", n))
	}
	if n := counts[model.SeverityMedium]; n > 0 {
		actions = append(actions, fmt.Sprintf("%d medium-severity discrepancies can be batched for review", n))
	}
	if n := counts[model.SeverityLow]; n > 0 {
		actions = append(actions, fmt.Sprintf("%d low-severity discrepancies for the next routine audit", n))
	}
	if n := len(ruleErrors); n > 0 {
		actions = append(actions, fmt.Sprintf("%d rules failed to evaluate and should be re-run", n))
	}
	if len(actions) == 0 {
		actions = append(actions, "no discrepancies detected; no action required")
	}

	return actions
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
