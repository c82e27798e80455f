package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// RecordRunSummary implements service.AuditSink. One row per completed or
// failed run; the engine treats failures here as non-fatal.
func (s *SQLiteStorage) RecordRunSummary(ctx context.Context, event, runID, actorID string, counts map[string]int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	encoded, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to marshal audit counts: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, run_id, actor_id, counts) VALUES (?, ?, ?, ?)`,
		event, runID, actorID, string(encoded)); err != nil {
		return fmt.Errorf("failed to record run summary: %w", err)
	}

	return nil
}
