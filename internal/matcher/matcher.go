// Package matcher pairs bank statement transactions against internal ledger
// transactions using a weighted confidence score.
//
// The algorithm is greedy nearest-match rather than a globally optimal
// bipartite assignment: statements rarely contain more than a handful of
// ambiguous near-duplicates, and a greedy pass keeps every individual match
// explainable.
package matcher

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ledgersift/ledgersift/internal/model"
)

// Component weights of the confidence score.
const (
	amountWeight      = 0.6
	dateWeight        = 0.3
	descriptionWeight = 0.1

	// autoConfidence is the confidence at which a pair is recorded as AUTO
	// rather than FUZZY.
	autoConfidence = 0.95

	// maxCandidates caps the near-miss list attached to unmatched bank
	// transactions.
	maxCandidates = 3
)

// Result holds the outcome of one matching run.
type Result struct {
	Matched           []model.MatchedPair
	UnmatchedBank     []model.UnmatchedTransaction
	UnmatchedInternal []model.UnmatchedTransaction
}

// candidate is one internal transaction scored against a bank transaction.
type candidate struct {
	txn     *model.InternalTransaction
	index   int
	score   float64
	reasons []string
}

// Reconcile matches bank transactions against internal transactions. Bank
// transactions are processed in file order; each consumes at most one
// still-unmatched internal transaction, so matching is injective. The
// internal snapshot is fixed before the loop starts.
func Reconcile(bankTxns []model.BankTransaction, internalTxns []model.InternalTransaction, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{}
	consumed := make([]bool, len(internalTxns))

	for i := range bankTxns {
		bank := &bankTxns[i]

		candidates := scoreCandidates(bank, internalTxns, consumed, cfg)
		best := selectBest(candidates)

		if best != nil && best.score >= cfg.AutoMatchThreshold {
			matchType := model.MatchFuzzy
			if best.score >= autoConfidence {
				matchType = model.MatchAuto
			}
			result.Matched = append(result.Matched, model.MatchedPair{
				BankTransactionID:     bank.ID,
				InternalTransactionID: best.txn.ID,
				Confidence:            best.score,
				MatchType:             matchType,
			})
			consumed[best.index] = true
			continue
		}

		result.UnmatchedBank = append(result.UnmatchedBank, unmatchedBank(bank, candidates))
	}

	for i := range internalTxns {
		if !consumed[i] {
			result.UnmatchedInternal = append(result.UnmatchedInternal, unmatchedInternal(&internalTxns[i]))
		}
	}

	slog.Info("Matching complete",
		"bank_transactions", len(bankTxns),
		"internal_transactions", len(internalTxns),
		"matched", len(result.Matched),
		"unmatched_bank", len(result.UnmatchedBank),
		"unmatched_internal", len(result.UnmatchedInternal))

	return result, nil
}

// ForceMatch records an operator-forced MANUAL pair, removing both
// transactions from the unmatched sets.
func (r *Result) ForceMatch(bankTransactionID, internalTransactionID string) {
	r.UnmatchedBank = removeUnmatched(r.UnmatchedBank, bankTransactionID)
	r.UnmatchedInternal = removeUnmatched(r.UnmatchedInternal, internalTransactionID)
	r.Matched = append(r.Matched, model.MatchedPair{
		BankTransactionID:     bankTransactionID,
		InternalTransactionID: internalTransactionID,
		Confidence:            1.0,
		MatchType:             model.MatchManual,
	})
}

func removeUnmatched(list []model.UnmatchedTransaction, id string) []model.UnmatchedTransaction {
	for i := range list {
		if list[i].TransactionID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// scoreCandidates scores every still-unmatched internal transaction against
// one bank transaction, keeping only non-zero scores.
func scoreCandidates(bank *model.BankTransaction, internalTxns []model.InternalTransaction, consumed []bool, cfg Config) []candidate {
	var candidates []candidate

	for i := range internalTxns {
		if consumed[i] {
			continue
		}

		internal := &internalTxns[i]
		score, reasons := scoreMatch(bank, internal, cfg)
		if score <= 0 {
			continue
		}

		candidates = append(candidates, candidate{
			txn:     internal,
			index:   i,
			score:   score,
			reasons: reasons,
		})
	}

	return candidates
}

// selectBest picks the highest-scoring candidate. Ties are broken
// deterministically by ascending internal date, then ascending internal id,
// so repeated runs over the same data always select the same match.
func selectBest(candidates []candidate) *candidate {
	if len(candidates) == 0 {
		return nil
	}

	best := &candidates[0]
	for i := 1; i < len(candidates); i++ {
		c := &candidates[i]
		switch {
		case c.score > best.score:
			best = c
		case c.score == best.score:
			if c.txn.Date.Before(best.txn.Date) ||
				(c.txn.Date.Equal(best.txn.Date) && c.txn.ID < best.txn.ID) {
				best = c
			}
		}
	}

	return best
}

// scoreMatch computes the weighted confidence score for one pair along with
// human-readable component reasons.
func scoreMatch(bank *model.BankTransaction, internal *model.InternalTransaction, cfg Config) (float64, []string) {
	var (
		score   float64
		reasons []string
	)

	// Amount component: full weight within tolerance, half weight within
	// twice the tolerance.
	tolerance := math.Abs(float64(internal.AmountMinor)) * cfg.AmountTolerancePercent
	diff := math.Abs(float64(bank.AmountMinor - internal.AmountMinor))
	switch {
	case diff <= tolerance:
		score += amountWeight
		reasons = append(reasons, "amount within tolerance")
	case diff <= 2*tolerance:
		score += amountWeight / 2
		reasons = append(reasons, "amount within twice tolerance")
	}

	// Date component: full weight within one day, half weight within the
	// configured tolerance.
	days := math.Abs(bank.Date.Sub(internal.Date).Hours()) / 24
	switch {
	case days <= 1:
		score += dateWeight
		reasons = append(reasons, "date within one day")
	case days <= float64(cfg.DateToleranceDays):
		score += dateWeight / 2
		reasons = append(reasons, "date within tolerance")
	}

	// Description component: at least two shared significant word tokens.
	if sharedTokens(bank.Description, internal.Description) >= 2 {
		score += descriptionWeight
		reasons = append(reasons, "descriptions share tokens")
	}

	return score, reasons
}

// sharedTokens counts case-insensitive word tokens longer than 3 characters
// present in both descriptions.
func sharedTokens(a, b string) int {
	seen := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(a)) {
		if len(token) > 3 {
			seen[token] = true
		}
	}

	shared := 0
	counted := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(b)) {
		if len(token) > 3 && seen[token] && !counted[token] {
			shared++
			counted[token] = true
		}
	}

	return shared
}

func unmatchedBank(bank *model.BankTransaction, candidates []candidate) model.UnmatchedTransaction {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	nearMisses := make([]model.NearMiss, 0, len(candidates))
	for _, c := range candidates {
		nearMisses = append(nearMisses, model.NearMiss{
			TransactionID: c.txn.ID,
			Confidence:    c.score,
			Reasons:       c.reasons,
		})
	}

	return model.UnmatchedTransaction{
		TransactionID: bank.ID,
		Source:        model.SourceBank,
		Date:          bank.Date,
		Description:   bank.Description,
		AmountMinor:   bank.AmountMinor,
		Candidates:    nearMisses,
	}
}

func unmatchedInternal(internal *model.InternalTransaction) model.UnmatchedTransaction {
	return model.UnmatchedTransaction{
		TransactionID: internal.ID,
		Source:        model.SourceInternal,
		Date:          internal.Date,
		Description:   internal.Description,
		AmountMinor:   internal.AmountMinor,
	}
}
