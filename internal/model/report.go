package model

import (
	"time"
)

// MatchType describes how a matched pair was established.
type MatchType string

const (
	// MatchAuto is a high-confidence automatic match (confidence >= 0.95).
	MatchAuto MatchType = "AUTO"
	// MatchFuzzy is an automatic match below the AUTO confidence bar.
	MatchFuzzy MatchType = "FUZZY"
	// MatchManual is a match forced by an operator.
	MatchManual MatchType = "MANUAL"
)

// MatchedPair links one bank transaction to one internal transaction.
// Matching is injective: within a run each internal transaction appears in at
// most one pair.
type MatchedPair struct {
	BankTransactionID     string    `json:"bank_transaction_id"`
	InternalTransactionID string    `json:"internal_transaction_id"`
	MatchType             MatchType `json:"match_type"`
	Confidence            float64   `json:"confidence"`
}

// UnmatchedSource tags which side of the reconciliation a residue came from.
type UnmatchedSource string

const (
	// SourceBank marks a statement transaction with no internal counterpart.
	SourceBank UnmatchedSource = "BANK"
	// SourceInternal marks a ledger transaction absent from the statement.
	SourceInternal UnmatchedSource = "INTERNAL"
)

// NearMiss is a candidate that scored above zero but below the auto-match
// threshold, kept so reviewers can see why nothing matched.
type NearMiss struct {
	TransactionID string   `json:"transaction_id"`
	Reasons       []string `json:"reasons,omitempty"`
	Confidence    float64  `json:"confidence"`
}

// UnmatchedTransaction is a transaction left over after matching, with an
// optional ranked list of near-miss candidates.
type UnmatchedTransaction struct {
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transaction_id"`
	Description   string          `json:"description"`
	Source        UnmatchedSource `json:"source"`
	Candidates    []NearMiss      `json:"candidates,omitempty"`
	AmountMinor   int64           `json:"amount_minor"`
}

// Period is the date range a run covered.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ReconciliationReport is the immutable output of one matching run.
type ReconciliationReport struct {
	GeneratedAt          time.Time              `json:"generated_at"`
	Period               Period                 `json:"period"`
	RunID                string                 `json:"run_id"`
	BankName             string                 `json:"bank_name,omitempty"`
	AccountNumber        string                 `json:"account_number,omitempty"`
	Matched              []MatchedPair          `json:"matched"`
	UnmatchedBank        []UnmatchedTransaction `json:"unmatched_bank"`
	UnmatchedInternal    []UnmatchedTransaction `json:"unmatched_internal"`
	ClosingBalanceMinor  int64                  `json:"closing_balance_minor"`
	InternalBalanceMinor int64                  `json:"internal_balance_minor"`
	DifferenceMinor      int64                  `json:"difference_minor"`
	SkippedRows          int                    `json:"skipped_rows"`
	Reconciled           bool                   `json:"reconciled"`
}

// CategoryBreakdown summarizes the findings of one discrepancy category.
type CategoryBreakdown struct {
	HighestSeverity  Severity `json:"highest_severity"`
	Count            int      `json:"count"`
	TotalImpactMinor int64    `json:"total_impact_minor"`
}

// RuleError records a rule whose evaluation failed; the run continues
// without its contribution.
type RuleError struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

// DiscrepancyDetectionReport is the immutable output of one rule-scan run.
type DiscrepancyDetectionReport struct {
	GeneratedAt        time.Time                                 `json:"generated_at"`
	Breakdown          map[DiscrepancyCategory]CategoryBreakdown `json:"breakdown"`
	RunID              string                                    `json:"run_id"`
	OverallRisk        Severity                                  `json:"overall_risk"`
	Discrepancies      []Discrepancy                             `json:"discrepancies"`
	RecommendedActions []string                                  `json:"recommended_actions"`
	RuleErrors         []RuleError                               `json:"rule_errors,omitempty"`
	RulesEvaluated     int                                       `json:"rules_evaluated"`
}
