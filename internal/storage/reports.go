package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
)

// SaveReconciliationReport implements service.ReportWriter.
func (s *SQLiteStorage) SaveReconciliationReport(ctx context.Context, report *model.ReconciliationReport) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal reconciliation report: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (run_id, kind, generated_at, payload) VALUES (?, 'reconciliation', ?, ?)`,
		report.RunID, report.GeneratedAt.UTC(), string(payload)); err != nil {
		return fmt.Errorf("failed to save reconciliation report: %w", err)
	}

	return nil
}

// SaveDetectionReport implements service.ReportWriter. Discrepancies carry
// deterministic ids, so re-running a scan over unchanged data inserts
// nothing new: INSERT OR IGNORE keeps the first occurrence and its status.
func (s *SQLiteStorage) SaveDetectionReport(ctx context.Context, report *model.DiscrepancyDetectionReport) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal detection report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO reports (run_id, kind, generated_at, payload) VALUES (?, 'detection', ?, ?)`,
		report.RunID, report.GeneratedAt.UTC(), string(payload)); err != nil {
		return fmt.Errorf("failed to save detection report: %w", err)
	}

	for _, d := range report.Discrepancies {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid discrepancy %s: %w", d.ID, err)
		}

		evidence, err := json.Marshal(d.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence for %s: %w", d.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO discrepancies
			(id, run_id, category, severity, entity_id, related_ids, impact_minor, confidence, description, evidence, status, assigned_to)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, report.RunID, string(d.Category), string(d.Severity), d.EntityID,
			strings.Join(d.RelatedIDs, ","), d.ImpactMinor, d.Confidence,
			d.Description, string(evidence), string(d.Status), d.AssignedTo); err != nil {
			return fmt.Errorf("failed to save discrepancy %s: %w", d.ID, err)
		}
	}

	return tx.Commit()
}

// Status implements service.StatusReader.
func (s *SQLiteStorage) Status(ctx context.Context, discrepancyID string) (model.DiscrepancyStatus, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM discrepancies WHERE id = ?`, discrepancyID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("discrepancy %s: %w", discrepancyID, common.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query discrepancy status: %w", err)
	}

	return model.DiscrepancyStatus(status), nil
}

// UpdateDiscrepancyStatus records a lifecycle transition made by the
// external case-management workflow.
func (s *SQLiteStorage) UpdateDiscrepancyStatus(ctx context.Context, discrepancyID string, status model.DiscrepancyStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE discrepancies SET status = ? WHERE id = ?`, string(status), discrepancyID)
	if err != nil {
		return fmt.Errorf("failed to update discrepancy status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("discrepancy %s: %w", discrepancyID, common.ErrNotFound)
	}

	return nil
}
