package rules

import (
	"context"

	"github.com/ledgersift/ledgersift/internal/model"
)

// Rule is one independent integrity check. Evaluate must be pure: it reads
// the store, emits zero or more discrepancies, and has no side effects.
type Rule interface {
	ID() string
	Category() model.DiscrepancyCategory
	Severity() model.Severity
	Evaluate(ctx context.Context, store Store) ([]model.Discrepancy, error)
}

// newFinding builds a discrepancy with the deterministic id for the
// rule/entity pair and the NEW lifecycle status the engine always emits.
func newFinding(rule Rule, entityID string) model.Discrepancy {
	return model.Discrepancy{
		ID:       model.DiscrepancyID(rule.ID(), entityID),
		Category: rule.Category(),
		Severity: rule.Severity(),
		EntityID: entityID,
		Status:   model.DiscrepancyNew,
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
