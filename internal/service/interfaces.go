// Package service defines the ports the engine depends on. Implementations
// live in internal/storage and in test fixtures.
package service

import (
	"context"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// LedgerReader provides a read-only, point-in-time view of the internal
// ledger. The engine fetches one snapshot at the start of a run and never
// observes later writes.
type LedgerReader interface {
	// TransactionsByPeriod returns internal transactions dated within
	// [start, end] inclusive.
	TransactionsByPeriod(ctx context.Context, start, end time.Time) ([]model.InternalTransaction, error)
}

// StatusReader reports the lifecycle status of a previously persisted
// discrepancy. Implementations return common.ErrNotFound for ids that have
// never been recorded.
type StatusReader interface {
	Status(ctx context.Context, discrepancyID string) (model.DiscrepancyStatus, error)
}

// ReportWriter persists completed reports. Write failures are surfaced to the
// caller as run failures; the in-memory report is still returned so it can be
// inspected or retried.
type ReportWriter interface {
	SaveReconciliationReport(ctx context.Context, report *model.ReconciliationReport) error
	SaveDetectionReport(ctx context.Context, report *model.DiscrepancyDetectionReport) error
}

// AuditSink receives one summary record per completed or failed run. Calls
// are fire-and-forget: failures are logged by the caller and never fail the
// run.
type AuditSink interface {
	RecordRunSummary(ctx context.Context, event, runID, actorID string, counts map[string]int) error
}
