package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// Built-in rule ids.
const (
	RuleOrphanedTransaction   = "orphaned_transaction"
	RuleImpossibleState       = "impossible_state"
	RuleAmountMismatch        = "amount_mismatch"
	RuleDuplicateTransaction  = "duplicate_transaction"
	RuleTemporalInconsistency = "temporal_inconsistency"
	RuleThresholdViolation    = "threshold_violation"
)

// CatalogConfig tunes the built-in rule catalog.
type CatalogConfig struct {
	// AmountToleranceMinor is the allowed difference between a parent total
	// and the sum of its child transactions.
	AmountToleranceMinor int64
	// DuplicateWindow is the maximum gap between two transactions for them
	// to count as duplicates.
	DuplicateWindow time.Duration
	// DuplicateLookback bounds the duplicate scan, anchored at the newest
	// transaction in the snapshot.
	DuplicateLookback time.Duration
	// ThresholdLimitMinor is the amount above which a transaction requires
	// an approval record.
	ThresholdLimitMinor int64
}

// DefaultCatalogConfig returns the default catalog tuning.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		AmountToleranceMinor: 100,
		DuplicateWindow:      time.Hour,
		DuplicateLookback:    24 * time.Hour,
		ThresholdLimitMinor:  1_000_000,
	}
}

// Catalog returns the built-in rules in their canonical registration order.
func Catalog(cfg CatalogConfig) []Rule {
	return []Rule{
		&orphanedTransactionRule{},
		&impossibleStateRule{},
		&amountMismatchRule{toleranceMinor: cfg.AmountToleranceMinor},
		&duplicateTransactionRule{window: cfg.DuplicateWindow, lookback: cfg.DuplicateLookback},
		&temporalInconsistencyRule{},
		&thresholdViolationRule{limitMinor: cfg.ThresholdLimitMinor},
	}
}

// orphanedTransactionRule flags transactions whose parent reference points
// at a record that does not exist.
type orphanedTransactionRule struct{}

func (r *orphanedTransactionRule) ID() string { return RuleOrphanedTransaction }
func (r *orphanedTransactionRule) Category() model.DiscrepancyCategory {
	return model.CategoryOrphanedTransaction
}
func (r *orphanedTransactionRule) Severity() model.Severity { return model.SeverityHigh }

func (r *orphanedTransactionRule) Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error) {
	txns, err := store.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	parents, err := store.Parents(ctx)
	if err != nil {
		return nil, err
	}

	parentIDs := make(map[string]bool, len(parents))
	for _, p := range parents {
		parentIDs[p.ID] = true
	}

	var findings []model.Discrepancy
	for _, txn := range txns {
		if txn.ParentID == "" || parentIDs[txn.ParentID] {
			continue
		}

		finding := newFinding(r, txn.ID)
		finding.Description = fmt.Sprintf("transaction %s references missing parent %s", txn.ID, txn.ParentID)
		finding.ImpactMinor = abs64(txn.AmountMinor)
		finding.Confidence = 1.0
		finding.Evidence = map[string]any{"parent_id": txn.ParentID}
		findings = append(findings, finding)
	}

	return findings, nil
}

// impossibleStateRule flags transactions refunded without ever having been
// completed.
type impossibleStateRule struct{}

func (r *impossibleStateRule) ID() string { return RuleImpossibleState }
func (r *impossibleStateRule) Category() model.DiscrepancyCategory {
	return model.CategoryImpossibleState
}
func (r *impossibleStateRule) Severity() model.Severity { return model.SeverityCritical }

func (r *impossibleStateRule) Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error) {
	txns, err := store.Transactions(ctx)
	if err != nil {
		return nil, err
	}

	var findings []model.Discrepancy
	for _, txn := range txns {
		if txn.Status != model.StatusRefunded || txn.CompletedAt != nil {
			continue
		}

		finding := newFinding(r, txn.ID)
		finding.Description = fmt.Sprintf("transaction %s is refunded but was never completed", txn.ID)
		finding.ImpactMinor = abs64(txn.AmountMinor)
		finding.Confidence = 1.0
		finding.Evidence = map[string]any{"status": string(txn.Status)}
		findings = append(findings, finding)
	}

	return findings, nil
}

// amountMismatchRule flags parents whose recorded total differs from the sum
// of their child transaction amounts by more than the tolerance.
type amountMismatchRule struct {
	toleranceMinor int64
}

func (r *amountMismatchRule) ID() string { return RuleAmountMismatch }
func (r *amountMismatchRule) Category() model.DiscrepancyCategory {
	return model.CategoryAmountMismatch
}
func (r *amountMismatchRule) Severity() model.Severity { return model.SeverityHigh }

func (r *amountMismatchRule) Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error) {
	txns, err := store.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	parents, err := store.Parents(ctx)
	if err != nil {
		return nil, err
	}

	childSums := make(map[string]int64)
	childIDs := make(map[string][]string)
	for _, txn := range txns {
		if txn.ParentID == "" {
			continue
		}
		childSums[txn.ParentID] += txn.AmountMinor
		childIDs[txn.ParentID] = append(childIDs[txn.ParentID], txn.ID)
	}

	var findings []model.Discrepancy
	for _, parent := range parents {
		children, ok := childIDs[parent.ID]
		if !ok {
			continue
		}

		diff := abs64(parent.TotalMinor - childSums[parent.ID])
		if diff <= r.toleranceMinor {
			continue
		}

		finding := newFinding(r, parent.ID)
		finding.Description = fmt.Sprintf("parent %s total differs from child sum by %d minor units", parent.ID, diff)
		finding.ImpactMinor = diff
		finding.Confidence = 1.0
		finding.RelatedIDs = children
		finding.Evidence = map[string]any{
			"parent_total_minor": parent.TotalMinor,
			"child_sum_minor":    childSums[parent.ID],
		}
		findings = append(findings, finding)
	}

	return findings, nil
}

// duplicateTransactionRule flags pairs of transactions with the same
// counterparty and amount occurring within the duplicate window. The scan is
// pairwise, not transitive-grouped, and bounded by the lookback anchored at
// the newest transaction.
type duplicateTransactionRule struct {
	window   time.Duration
	lookback time.Duration
}

func (r *duplicateTransactionRule) ID() string { return RuleDuplicateTransaction }
func (r *duplicateTransactionRule) Category() model.DiscrepancyCategory {
	return model.CategoryDuplicateTransaction
}
func (r *duplicateTransactionRule) Severity() model.Severity { return model.SeverityMedium }

func (r *duplicateTransactionRule) Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error) {
	txns, err := store.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, nil
	}

	var newest time.Time
	for _, txn := range txns {
		if txn.Date.After(newest) {
			newest = txn.Date
		}
	}
	cutoff := newest.Add(-r.lookback)

	type key struct {
		counterparty string
		amount       int64
	}
	groups := make(map[key][]model.InternalTransaction)
	for _, txn := range txns {
		if txn.Counterparty == "" || txn.Date.Before(cutoff) {
			continue
		}
		k := key{counterparty: txn.Counterparty, amount: txn.AmountMinor}
		groups[k] = append(groups[k], txn)
	}

	var findings []model.Discrepancy
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if group[i].Date.Equal(group[j].Date) {
				return group[i].ID < group[j].ID
			}
			return group[i].Date.Before(group[j].Date)
		})

		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if group[j].Date.Sub(group[i].Date) > r.window {
					break
				}

				first, second := group[i], group[j]
				finding := newFinding(r, first.ID+"|"+second.ID)
				finding.EntityID = first.ID
				finding.RelatedIDs = []string{second.ID}
				finding.Description = fmt.Sprintf("transactions %s and %s look duplicated: same counterparty and amount %s apart",
					first.ID, second.ID, second.Date.Sub(first.Date))
				finding.ImpactMinor = abs64(first.AmountMinor)
				finding.Confidence = 0.7
				finding.Evidence = map[string]any{
					"counterparty": first.Counterparty,
					"amount_minor": first.AmountMinor,
					"gap":          second.Date.Sub(first.Date).String(),
				}
				findings = append(findings, finding)
			}
		}
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].ID < findings[j].ID })

	return findings, nil
}

// temporalInconsistencyRule flags child transactions whose timestamp
// precedes their parent's creation.
type temporalInconsistencyRule struct{}

func (r *temporalInconsistencyRule) ID() string { return RuleTemporalInconsistency }
func (r *temporalInconsistencyRule) Category() model.DiscrepancyCategory {
	return model.CategoryTemporalInconsistency
}
func (r *temporalInconsistencyRule) Severity() model.Severity { return model.SeverityMedium }

func (r *temporalInconsistencyRule) Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error) {
	txns, err := store.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	parents, err := store.Parents(ctx)
	if err != nil {
		return nil, err
	}

	createdAt := make(map[string]time.Time, len(parents))
	for _, p := range parents {
		createdAt[p.ID] = p.CreatedAt
	}

	var findings []model.Discrepancy
	for _, txn := range txns {
		parentCreated, ok := createdAt[txn.ParentID]
		if !ok || !txn.Date.Before(parentCreated) {
			continue
		}

		finding := newFinding(r, txn.ID)
		finding.Description = fmt.Sprintf("transaction %s predates its parent %s", txn.ID, txn.ParentID)
		finding.ImpactMinor = abs64(txn.AmountMinor)
		finding.Confidence = 0.8
		finding.RelatedIDs = []string{txn.ParentID}
		finding.Evidence = map[string]any{
			"transaction_date":  txn.Date.Format(time.RFC3339),
			"parent_created_at": parentCreated.Format(time.RFC3339),
		}
		findings = append(findings, finding)
	}

	return findings, nil
}

// thresholdViolationRule flags transactions above the configured limit that
// have no associated approval record. The confidence is heuristic: the scan
// cannot prove the approval is missing rather than unlinked.
type thresholdViolationRule struct {
	limitMinor int64
}

func (r *thresholdViolationRule) ID() string { return RuleThresholdViolation }
func (r *thresholdViolationRule) Category() model.DiscrepancyCategory {
	return model.CategoryThresholdViolation
}
func (r *thresholdViolationRule) Severity() model.Severity { return model.SeverityMedium }

func (r *thresholdViolationRule) Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error) {
	txns, err := store.Transactions(ctx)
	if err != nil {
		return nil, err
	}

	var findings []model.Discrepancy
	for _, txn := range txns {
		if abs64(txn.AmountMinor) <= r.limitMinor {
			continue
		}

		if txn.ApprovalID != "" {
			approved, err := store.HasApproval(ctx, txn.ApprovalID)
			if err != nil {
				return nil, err
			}
			if approved {
				continue
			}
		}

		finding := newFinding(r, txn.ID)
		finding.Description = fmt.Sprintf("transaction %s exceeds approval threshold with no approval record", txn.ID)
		finding.ImpactMinor = abs64(txn.AmountMinor)
		finding.Confidence = 0.6
		finding.Evidence = map[string]any{
			"limit_minor":  r.limitMinor,
			"amount_minor": txn.AmountMinor,
		}
		findings = append(findings, finding)
	}

	return findings, nil
}
