package rules

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
)

// stubRule emits one finding per entity id, or fails, or panics.
type stubRule struct {
	id       string
	severity model.Severity
	entities []string
	err      error
	panics   bool
}

func (r *stubRule) ID() string                          { return r.id }
func (r *stubRule) Category() model.DiscrepancyCategory { return model.CategoryOrphanedTransaction }
func (r *stubRule) Severity() model.Severity            { return r.severity }

func (r *stubRule) Evaluate(_ context.Context, _ Store) ([]model.Discrepancy, error) {
	if r.panics {
		panic("stub rule exploded")
	}
	if r.err != nil {
		return nil, r.err
	}

	findings := make([]model.Discrepancy, 0, len(r.entities))
	for _, entity := range r.entities {
		findings = append(findings, newFinding(r, entity))
	}
	return findings, nil
}

// stubStatusReader serves discrepancy statuses from a map, returning
// ErrNotFound for unknown ids.
type stubStatusReader struct {
	statuses map[string]model.DiscrepancyStatus
	err      error
}

func (s *stubStatusReader) Status(_ context.Context, id string) (model.DiscrepancyStatus, error) {
	if s.err != nil {
		return "", s.err
	}
	status, ok := s.statuses[id]
	if !ok {
		return "", common.ErrNotFound
	}
	return status, nil
}

func TestEngineRunMergesInRegistrationOrder(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "first", severity: model.SeverityHigh, entities: []string{"e1", "e2"}},
		&stubRule{id: "second", severity: model.SeverityMedium, entities: []string{"e3"}},
		&stubRule{id: "third", severity: model.SeverityLow, entities: []string{"e4"}},
	})

	result, err := engine.Run(context.Background(), &MemoryStore{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.RulesEvaluated)
	require.Len(t, result.Discrepancies, 4)

	want := []string{
		model.DiscrepancyID("first", "e1"),
		model.DiscrepancyID("first", "e2"),
		model.DiscrepancyID("second", "e3"),
		model.DiscrepancyID("third", "e4"),
	}
	for i, finding := range result.Discrepancies {
		assert.Equal(t, want[i], finding.ID)
	}
}

func TestEngineRunConcurrentOrderDeterministic(t *testing.T) {
	ruleset := make([]Rule, 0, 8)
	for i := 0; i < 8; i++ {
		ruleset = append(ruleset, &stubRule{
			id:       fmt.Sprintf("rule-%d", i),
			severity: model.SeverityMedium,
			entities: []string{fmt.Sprintf("entity-%d", i)},
		})
	}
	engine := NewEngine(ruleset)

	var previous []string
	for run := 0; run < 5; run++ {
		result, err := engine.Run(context.Background(), &MemoryStore{}, Options{Concurrency: 4})
		require.NoError(t, err)
		require.Len(t, result.Discrepancies, 8)

		ids := make([]string, 0, 8)
		for _, finding := range result.Discrepancies {
			ids = append(ids, finding.ID)
		}
		if previous != nil {
			assert.Equal(t, previous, ids)
		}
		previous = ids
	}

	// Registration order, not completion order.
	assert.Equal(t, model.DiscrepancyID("rule-0", "entity-0"), previous[0])
	assert.Equal(t, model.DiscrepancyID("rule-7", "entity-7"), previous[7])
}

func TestEngineRunIdempotentIDs(t *testing.T) {
	store := &MemoryStore{
		Txns: []model.InternalTransaction{
			{ID: "txn-1", ParentID: "missing", AmountMinor: -500, Date: fixtureBase},
		},
	}
	engine := NewEngine(Catalog(DefaultCatalogConfig()))

	first, err := engine.Run(context.Background(), store, Options{})
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), store, Options{})
	require.NoError(t, err)

	require.Equal(t, len(first.Discrepancies), len(second.Discrepancies))
	for i := range first.Discrepancies {
		assert.Equal(t, first.Discrepancies[i].ID, second.Discrepancies[i].ID)
	}
}

func TestEngineRunIsolatesFailingRules(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "boom", severity: model.SeverityHigh, err: errors.New("store exploded")},
		&stubRule{id: "panicky", severity: model.SeverityHigh, panics: true},
		&stubRule{id: "healthy", severity: model.SeverityHigh, entities: []string{"e1"}},
	})

	result, err := engine.Run(context.Background(), &MemoryStore{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.RulesEvaluated)
	require.Len(t, result.RuleErrors, 2)
	assert.Equal(t, "boom", result.RuleErrors[0].RuleID)
	assert.Contains(t, result.RuleErrors[0].Error, "store exploded")
	assert.Equal(t, "panicky", result.RuleErrors[1].RuleID)
	assert.Contains(t, result.RuleErrors[1].Error, "panic")

	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, model.DiscrepancyID("healthy", "e1"), result.Discrepancies[0].ID)
}

func TestEngineRunMinSeverity(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "critical", severity: model.SeverityCritical, entities: []string{"e1"}},
		&stubRule{id: "high", severity: model.SeverityHigh, entities: []string{"e2"}},
		&stubRule{id: "medium", severity: model.SeverityMedium, entities: []string{"e3"}},
		&stubRule{id: "low", severity: model.SeverityLow, entities: []string{"e4"}},
	})

	tests := []struct {
		minSeverity model.Severity
		want        int
	}{
		{minSeverity: "", want: 4},
		{minSeverity: model.SeverityLow, want: 4},
		{minSeverity: model.SeverityMedium, want: 3},
		{minSeverity: model.SeverityHigh, want: 2},
		{minSeverity: model.SeverityCritical, want: 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.minSeverity), func(t *testing.T) {
			result, err := engine.Run(context.Background(), &MemoryStore{}, Options{MinSeverity: tt.minSeverity})
			require.NoError(t, err)
			assert.Len(t, result.Discrepancies, tt.want)
		})
	}
}

func TestEngineRunRejectsUnknownSeverity(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "rule", severity: model.SeverityLow, entities: []string{"e1"}},
	})

	// A misspelled severity must be rejected, never treated as "no filter".
	_, err := engine.Run(context.Background(), &MemoryStore{}, Options{MinSeverity: "HIHG"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestEngineRunRuleSubset(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "first", severity: model.SeverityHigh, entities: []string{"e1"}},
		&stubRule{id: "second", severity: model.SeverityHigh, entities: []string{"e2"}},
		&stubRule{id: "third", severity: model.SeverityHigh, entities: []string{"e3"}},
	})

	// Listed out of order, executed in registration order.
	result, err := engine.Run(context.Background(), &MemoryStore{}, Options{RuleIDs: []string{"third", "first"}})
	require.NoError(t, err)

	assert.Equal(t, 2, result.RulesEvaluated)
	require.Len(t, result.Discrepancies, 2)
	assert.Equal(t, model.DiscrepancyID("first", "e1"), result.Discrepancies[0].ID)
	assert.Equal(t, model.DiscrepancyID("third", "e3"), result.Discrepancies[1].ID)
}

func TestEngineRunUnknownRule(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "known", severity: model.SeverityHigh},
	})

	_, err := engine.Run(context.Background(), &MemoryStore{}, Options{RuleIDs: []string{"nonexistent"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnknownRule)
}

func TestEngineSetEnabled(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "first", severity: model.SeverityHigh, entities: []string{"e1"}},
		&stubRule{id: "second", severity: model.SeverityHigh, entities: []string{"e2"}},
	})

	require.NoError(t, engine.SetEnabled("first", false))
	assert.ErrorIs(t, engine.SetEnabled("ghost", false), common.ErrUnknownRule)

	result, err := engine.Run(context.Background(), &MemoryStore{}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.RulesEvaluated)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, model.DiscrepancyID("second", "e2"), result.Discrepancies[0].ID)
}

func TestEngineRunSkipResolved(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "rule", severity: model.SeverityHigh, entities: []string{"new", "resolved", "investigating"}},
	})

	reader := &stubStatusReader{statuses: map[string]model.DiscrepancyStatus{
		model.DiscrepancyID("rule", "resolved"):      model.DiscrepancyResolved,
		model.DiscrepancyID("rule", "investigating"): model.DiscrepancyInvestigating,
	}}

	result, err := engine.Run(context.Background(), &MemoryStore{}, Options{
		SkipResolved: true,
		StatusReader: reader,
	})
	require.NoError(t, err)

	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, model.DiscrepancyID("rule", "new"), result.Discrepancies[0].ID)
}

func TestEngineRunSkipResolvedRequiresReader(t *testing.T) {
	engine := NewEngine([]Rule{&stubRule{id: "rule", severity: model.SeverityHigh}})

	_, err := engine.Run(context.Background(), &MemoryStore{}, Options{SkipResolved: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestEngineRunStatusLookupFailure(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "rule", severity: model.SeverityHigh, entities: []string{"e1"}},
	})
	reader := &stubStatusReader{err: errors.New("database offline")}

	_, err := engine.Run(context.Background(), &MemoryStore{}, Options{
		SkipResolved: true,
		StatusReader: reader,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database offline")
}

func TestEngineRunCancelled(t *testing.T) {
	engine := NewEngine([]Rule{
		&stubRule{id: "rule", severity: model.SeverityHigh, entities: []string{"e1"}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, &MemoryStore{}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
