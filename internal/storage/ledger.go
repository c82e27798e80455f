package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgersift/ledgersift/internal/model"
)

// SaveInternalTransactions loads a ledger snapshot into storage. The
// surrounding application calls this when syncing from the remote ledger;
// the engine itself only reads.
func (s *SQLiteStorage) SaveInternalTransactions(ctx context.Context, txns []model.InternalTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO internal_transactions
		(id, kind, amount_minor, date, description, counterparty, status, parent_id, approval_id, completed_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range txns {
		metadata, err := json.Marshal(txn.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for %s: %w", txn.ID, err)
		}

		var completedAt any
		if txn.CompletedAt != nil {
			completedAt = txn.CompletedAt.UTC()
		}

		if _, err := stmt.ExecContext(ctx,
			txn.ID, string(txn.Kind), txn.AmountMinor, txn.Date.UTC(),
			txn.Description, txn.Counterparty, string(txn.Status),
			txn.ParentID, txn.ApprovalID, completedAt, string(metadata)); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// SaveParents loads parent records into storage.
func (s *SQLiteStorage) SaveParents(ctx context.Context, parents []model.ParentRecord) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	for _, p := range parents {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO parents (id, created_at, total_minor) VALUES (?, ?, ?)`,
			p.ID, p.CreatedAt.UTC(), p.TotalMinor); err != nil {
			return fmt.Errorf("failed to insert parent %s: %w", p.ID, err)
		}
	}

	return nil
}

// SaveApprovals loads approval records into storage.
func (s *SQLiteStorage) SaveApprovals(ctx context.Context, approvals []model.Approval) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	for _, a := range approvals {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO approvals (id, created_at, approved_by) VALUES (?, ?, ?)`,
			a.ID, a.CreatedAt.UTC(), a.ApprovedBy); err != nil {
			return fmt.Errorf("failed to insert approval %s: %w", a.ID, err)
		}
	}

	return nil
}

// TransactionsByPeriod implements service.LedgerReader.
func (s *SQLiteStorage) TransactionsByPeriod(ctx context.Context, start, end time.Time) ([]model.InternalTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, amount_minor, date, description, counterparty, status, parent_id, approval_id, completed_at, metadata
		FROM internal_transactions
		WHERE date >= ? AND date <= ?
		ORDER BY date, id`, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanInternalTransactions(rows)
}

// Transactions implements rules.Store.
func (s *SQLiteStorage) Transactions(ctx context.Context) ([]model.InternalTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, amount_minor, date, description, counterparty, status, parent_id, approval_id, completed_at, metadata
		FROM internal_transactions
		ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanInternalTransactions(rows)
}

// Parents implements rules.Store.
func (s *SQLiteStorage) Parents(ctx context.Context) ([]model.ParentRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at, total_minor FROM parents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parents []model.ParentRecord
	for rows.Next() {
		var p model.ParentRecord
		if err := rows.Scan(&p.ID, &p.CreatedAt, &p.TotalMinor); err != nil {
			return nil, fmt.Errorf("failed to scan parent: %w", err)
		}
		parents = append(parents, p)
	}

	return parents, rows.Err()
}

// HasApproval implements rules.Store.
func (s *SQLiteStorage) HasApproval(ctx context.Context, approvalID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM approvals WHERE id = ?`, approvalID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query approval %s: %w", approvalID, err)
	}

	return true, nil
}

func scanInternalTransactions(rows *sql.Rows) ([]model.InternalTransaction, error) {
	var txns []model.InternalTransaction

	for rows.Next() {
		var (
			txn         model.InternalTransaction
			kind        string
			status      sql.NullString
			completedAt sql.NullTime
			metadata    sql.NullString
		)

		if err := rows.Scan(&txn.ID, &kind, &txn.AmountMinor, &txn.Date,
			&txn.Description, &txn.Counterparty, &status,
			&txn.ParentID, &txn.ApprovalID, &completedAt, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		txn.Kind = model.TransactionKind(kind)
		if status.Valid {
			txn.Status = model.TransactionStatus(status.String)
		}
		if completedAt.Valid {
			t := completedAt.Time
			txn.CompletedAt = &t
		}
		if metadata.Valid && metadata.String != "" && metadata.String != "null" {
			if err := json.Unmarshal([]byte(metadata.String), &txn.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata for %s: %w", txn.ID, err)
			}
		}

		txns = append(txns, txn)
	}

	return txns, rows.Err()
}
