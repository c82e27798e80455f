// Package rules implements the rule-based integrity check engine that scans
// the transaction store for discrepancies.
package rules

import (
	"context"

	"github.com/ledgersift/ledgersift/internal/model"
)

// Store is the read-only view of the transaction store that rules evaluate
// against. Implementations must return point-in-time snapshots; rules never
// write.
type Store interface {
	// Transactions returns every internal transaction in the snapshot.
	Transactions(ctx context.Context) ([]model.InternalTransaction, error)
	// Parents returns every parent record in the snapshot.
	Parents(ctx context.Context) ([]model.ParentRecord, error)
	// HasApproval reports whether an approval record exists.
	HasApproval(ctx context.Context, approvalID string) (bool, error)
}

// MemoryStore is an in-memory Store used by tests and small fixtures.
type MemoryStore struct {
	Txns      []model.InternalTransaction
	Parentset []model.ParentRecord
	Approvals map[string]bool
}

// Transactions implements Store.
func (m *MemoryStore) Transactions(_ context.Context) ([]model.InternalTransaction, error) {
	return m.Txns, nil
}

// Parents implements Store.
func (m *MemoryStore) Parents(_ context.Context) ([]model.ParentRecord, error) {
	return m.Parentset, nil
}

// HasApproval implements Store.
func (m *MemoryStore) HasApproval(_ context.Context, approvalID string) (bool, error) {
	return m.Approvals[approvalID], nil
}
