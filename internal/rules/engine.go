package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/service"
)

// Engine holds the rule registry and executes scans. Rules run in isolation:
// one failing rule never aborts the run.
type Engine struct {
	rules []registeredRule
	byID  map[string]int
}

type registeredRule struct {
	rule    Rule
	enabled bool
}

// Options configures one scan.
type Options struct {
	// RuleIDs restricts the scan to an explicit subset. Empty means all
	// enabled rules.
	RuleIDs []string
	// MinSeverity drops findings below the given severity. Inclusive.
	MinSeverity model.Severity
	// SkipResolved drops findings whose ids are already RESOLVED or
	// INVESTIGATING according to StatusReader.
	SkipResolved bool
	// StatusReader is required when SkipResolved is set.
	StatusReader service.StatusReader
	// Concurrency bounds parallel rule execution. Values below 2 run the
	// scan sequentially.
	Concurrency int
}

// RunResult is the raw outcome of a scan, before aggregation into a report.
type RunResult struct {
	Discrepancies  []model.Discrepancy
	RuleErrors     []model.RuleError
	RulesEvaluated int
}

// NewEngine creates an engine with the given rules registered in order, all
// enabled.
func NewEngine(ruleset []Rule) *Engine {
	e := &Engine{byID: make(map[string]int, len(ruleset))}
	for _, r := range ruleset {
		e.Register(r)
	}
	return e
}

// Register appends a rule to the registry. Registration order is the merge
// order for results, so reports are deterministic regardless of scheduling.
func (e *Engine) Register(rule Rule) {
	e.byID[rule.ID()] = len(e.rules)
	e.rules = append(e.rules, registeredRule{rule: rule, enabled: true})
}

// SetEnabled toggles a rule without removing it from the registry.
func (e *Engine) SetEnabled(ruleID string, enabled bool) error {
	idx, ok := e.byID[ruleID]
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownRule, ruleID)
	}
	e.rules[idx].enabled = enabled
	return nil
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.rule)
	}
	return out
}

// Run executes the resolved rule set against the store and returns all
// surviving findings. Cancellation is cooperative, checked between rule
// executions.
func (e *Engine) Run(ctx context.Context, store Store, opts Options) (*RunResult, error) {
	targets, err := e.resolveTargets(opts.RuleIDs)
	if err != nil {
		return nil, err
	}

	if opts.SkipResolved && opts.StatusReader == nil {
		return nil, fmt.Errorf("%w: skip-resolved requires a status reader", common.ErrInvalidConfig)
	}

	if opts.MinSeverity != "" && opts.MinSeverity.Rank() == 0 {
		return nil, fmt.Errorf("%w: unknown severity %q", common.ErrInvalidConfig, opts.MinSeverity)
	}

	result := &RunResult{RulesEvaluated: len(targets)}

	// perRule keeps one slot per target so results always merge in
	// registration order, never completion order.
	perRule := make([][]model.Discrepancy, len(targets))
	perErr := make([]*model.RuleError, len(targets))

	if opts.Concurrency > 1 {
		e.runConcurrent(ctx, store, targets, opts.Concurrency, perRule, perErr)
	} else {
		for i, rule := range targets {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			perRule[i], perErr[i] = evaluateRule(ctx, rule, store)
		}
	}

	for i := range targets {
		if perErr[i] != nil {
			result.RuleErrors = append(result.RuleErrors, *perErr[i])
			continue
		}
		for _, finding := range perRule[i] {
			if keep, err := e.keepFinding(ctx, finding, opts); err != nil {
				return nil, err
			} else if keep {
				result.Discrepancies = append(result.Discrepancies, finding)
			}
		}
	}

	slog.Info("Rule scan complete",
		"rules_evaluated", result.RulesEvaluated,
		"findings", len(result.Discrepancies),
		"rule_errors", len(result.RuleErrors))

	return result, nil
}

func (e *Engine) resolveTargets(ruleIDs []string) ([]Rule, error) {
	if len(ruleIDs) == 0 {
		var targets []Rule
		for _, r := range e.rules {
			if r.enabled {
				targets = append(targets, r.rule)
			}
		}
		return targets, nil
	}

	// Explicit subsets run in registration order regardless of how the
	// caller listed them.
	requested := make(map[string]bool, len(ruleIDs))
	for _, id := range ruleIDs {
		if _, ok := e.byID[id]; !ok {
			return nil, fmt.Errorf("%w: %s", common.ErrUnknownRule, id)
		}
		requested[id] = true
	}

	var targets []Rule
	for _, r := range e.rules {
		if requested[r.rule.ID()] {
			targets = append(targets, r.rule)
		}
	}
	return targets, nil
}

func (e *Engine) runConcurrent(ctx context.Context, store Store, targets []Rule, concurrency int, perRule [][]model.Discrepancy, perErr []*model.RuleError) {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, rule := range targets {
		wg.Add(1)
		go func(i int, rule Rule) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			perRule[i], perErr[i] = evaluateRule(ctx, rule, store)
		}(i, rule)
	}

	wg.Wait()
}

// evaluateRule runs one rule, converting both errors and panics into a
// recorded RuleError so the scan continues.
func evaluateRule(ctx context.Context, rule Rule, store Store) (findings []model.Discrepancy, ruleErr *model.RuleError) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Rule panicked", "rule_id", rule.ID(), "panic", r)
			findings = nil
			ruleErr = &model.RuleError{RuleID: rule.ID(), Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	findings, err := rule.Evaluate(ctx, store)
	if err != nil {
		slog.Error("Rule evaluation failed", "rule_id", rule.ID(), "error", err)
		return nil, &model.RuleError{RuleID: rule.ID(), Error: err.Error()}
	}

	return findings, nil
}

func (e *Engine) keepFinding(ctx context.Context, finding model.Discrepancy, opts Options) (bool, error) {
	if opts.MinSeverity != "" && !finding.Severity.AtLeast(opts.MinSeverity) {
		return false, nil
	}

	if opts.SkipResolved {
		status, err := opts.StatusReader.Status(ctx, finding.ID)
		switch {
		case errors.Is(err, common.ErrNotFound):
			// Never seen before, keep it.
		case err != nil:
			return false, fmt.Errorf("failed to look up discrepancy status: %w", err)
		case status == model.DiscrepancyResolved || status == model.DiscrepancyInvestigating:
			return false, nil
		}
	}

	return true, nil
}
