// Package engine orchestrates the two run pipelines: statement
// reconciliation (parse, match, aggregate) and discrepancy detection (rule
// scan, aggregate). Each run works over a point-in-time snapshot fetched
// once at run start.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/matcher"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/report"
	"github.com/ledgersift/ledgersift/internal/rules"
	"github.com/ledgersift/ledgersift/internal/service"
	"github.com/ledgersift/ledgersift/internal/statement"
)

// Audit event names, one per pipeline outcome.
const (
	EventReconcileCompleted = "reconciliation.completed"
	EventReconcileFailed    = "reconciliation.failed"
	EventDetectCompleted    = "detection.completed"
	EventDetectFailed       = "detection.failed"
)

// Service wires the parsers, matcher, rule engine, and aggregator to the
// external collaborator ports.
type Service struct {
	parser     *statement.Parser
	ruleEngine *rules.Engine
	ledger     service.LedgerReader
	ruleStore  rules.Store
	statuses   service.StatusReader
	reports    service.ReportWriter
	audit      service.AuditSink
	retry      common.RetryOptions
	now        func() time.Time
}

// Config carries the collaborators a Service needs. Reports and Audit may be
// nil, in which case persistence and audit recording are skipped.
type Config struct {
	Ledger    service.LedgerReader
	RuleStore rules.Store
	Statuses  service.StatusReader
	Reports   service.ReportWriter
	Audit     service.AuditSink
	Retry     common.RetryOptions
}

// ReconcileOptions configures one reconciliation run.
type ReconcileOptions struct {
	Format  statement.Format
	Hints   statement.Hints
	Match   matcher.Config
	ActorID string
}

// DetectOptions configures one detection run.
type DetectOptions struct {
	Rules rules.Options
	// AutoAssign stamps every emitted finding with the run's actor so the
	// case-management workflow starts with an owner.
	AutoAssign bool
	ActorID    string
}

// New creates a Service from the given collaborators.
func New(cfg Config, ruleEngine *rules.Engine) *Service {
	return &Service{
		parser:     statement.NewParser(),
		ruleEngine: ruleEngine,
		ledger:     cfg.Ledger,
		ruleStore:  cfg.RuleStore,
		statuses:   cfg.Statuses,
		reports:    cfg.Reports,
		audit:      cfg.Audit,
		retry:      cfg.Retry,
		now:        time.Now,
	}
}

// RuleEngine exposes the underlying rule registry, for listing and toggles.
func (s *Service) RuleEngine() *rules.Engine {
	return s.ruleEngine
}

// ReconcileStatement runs the full reconciliation pipeline over one
// statement file. Configuration is validated before any parsing starts. A
// persistence failure is returned as the run error, but the computed report
// is returned alongside it so the caller can inspect or retry.
func (s *Service) ReconcileStatement(ctx context.Context, content []byte, opts ReconcileOptions) (*model.ReconciliationReport, error) {
	if err := opts.Match.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	slog.Info("Starting reconciliation run", "run_id", runID, "format", opts.Format)

	stmt, err := s.parser.Parse(content, opts.Format, opts.Hints)
	if err != nil {
		s.recordAudit(ctx, EventReconcileFailed, runID, opts.ActorID, map[string]int{"parse_failed": 1})
		return nil, fmt.Errorf("statement parsing failed: %w", err)
	}

	internalTxns, err := s.ledger.TransactionsByPeriod(ctx, stmt.Period.Start, stmt.Period.End)
	if err != nil {
		s.recordAudit(ctx, EventReconcileFailed, runID, opts.ActorID, map[string]int{"ledger_fetch_failed": 1})
		return nil, fmt.Errorf("failed to fetch internal transactions: %w", err)
	}

	matchResult, err := matcher.Reconcile(stmt.Transactions, internalTxns, opts.Match)
	if err != nil {
		return nil, err
	}

	rpt := report.BuildReconciliationReport(runID, s.now().UTC(), stmt, internalTxns, matchResult)

	if s.reports != nil {
		if err := s.persist(ctx, func() error {
			return s.reports.SaveReconciliationReport(ctx, rpt)
		}); err != nil {
			s.recordAudit(ctx, EventReconcileFailed, runID, opts.ActorID, map[string]int{"persist_failed": 1})
			return rpt, fmt.Errorf("%w: %v", common.ErrPersistence, err)
		}
	}

	// Audit only after the report is durable: a run that failed to persist
	// must never leave a completion record.
	s.recordAudit(ctx, EventReconcileCompleted, runID, opts.ActorID, map[string]int{
		"matched":            len(rpt.Matched),
		"unmatched_bank":     len(rpt.UnmatchedBank),
		"unmatched_internal": len(rpt.UnmatchedInternal),
		"skipped_rows":       rpt.SkippedRows,
	})

	return rpt, nil
}

// DetectDiscrepancies runs the rule catalog against the transaction store
// and aggregates the findings into a report.
func (s *Service) DetectDiscrepancies(ctx context.Context, opts DetectOptions) (*model.DiscrepancyDetectionReport, error) {
	runID := uuid.New().String()
	slog.Info("Starting detection run", "run_id", runID, "rule_subset", len(opts.Rules.RuleIDs))

	if opts.Rules.SkipResolved && opts.Rules.StatusReader == nil {
		opts.Rules.StatusReader = s.statuses
	}

	result, err := s.ruleEngine.Run(ctx, s.ruleStore, opts.Rules)
	if err != nil {
		s.recordAudit(ctx, EventDetectFailed, runID, opts.ActorID, map[string]int{"scan_failed": 1})
		return nil, fmt.Errorf("rule scan failed: %w", err)
	}

	if opts.AutoAssign && opts.ActorID != "" {
		for i := range result.Discrepancies {
			result.Discrepancies[i].AssignedTo = opts.ActorID
		}
	}

	rpt := report.BuildDetectionReport(runID, s.now().UTC(), result)

	if s.reports != nil {
		if err := s.persist(ctx, func() error {
			return s.reports.SaveDetectionReport(ctx, rpt)
		}); err != nil {
			s.recordAudit(ctx, EventDetectFailed, runID, opts.ActorID, map[string]int{"persist_failed": 1})
			return rpt, fmt.Errorf("%w: %v", common.ErrPersistence, err)
		}
	}

	s.recordAudit(ctx, EventDetectCompleted, runID, opts.ActorID, map[string]int{
		"discrepancies": len(rpt.Discrepancies),
		"rule_errors":   len(rpt.RuleErrors),
	})

	return rpt, nil
}

// persist writes through the report port with retry; transient storage
// errors get a few attempts before the failure surfaces.
func (s *Service) persist(ctx context.Context, op func() error) error {
	return common.WithRetry(ctx, op, s.retry)
}

// recordAudit is fire-and-forget: audit failures are logged and never fail
// the run.
func (s *Service) recordAudit(ctx context.Context, event, runID, actorID string, counts map[string]int) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordRunSummary(ctx, event, runID, actorID, counts); err != nil {
		slog.Warn("Failed to record audit summary", "event", event, "run_id", runID, "error", err)
	}
}
