package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
	"github.com/ledgersift/ledgersift/internal/testutil"
)

var storageTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSaveAndQueryInternalTransactions(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	completed := storageTime.Add(time.Hour)
	txns := []model.InternalTransaction{
		{
			ID:           "txn-1",
			Kind:         model.KindPayment,
			AmountMinor:  -4500,
			Date:         storageTime,
			Description:  "Vendor payment",
			Counterparty: "ACME",
			Status:       model.StatusCompleted,
			ParentID:     "order-1",
			CompletedAt:  &completed,
			Metadata:     map[string]string{"channel": "wire"},
		},
		{
			ID:          "txn-2",
			Kind:        model.KindPayout,
			AmountMinor: 120000,
			Date:        storageTime.AddDate(0, 0, 10),
		},
	}
	require.NoError(t, store.SaveInternalTransactions(ctx, txns))

	all, err := store.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	got := all[0]
	assert.Equal(t, "txn-1", got.ID)
	assert.Equal(t, model.KindPayment, got.Kind)
	assert.Equal(t, int64(-4500), got.AmountMinor)
	assert.Equal(t, "ACME", got.Counterparty)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "order-1", got.ParentID)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, completed.Equal(*got.CompletedAt))
	assert.Equal(t, map[string]string{"channel": "wire"}, got.Metadata)
}

func TestTransactionsByPeriod(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	txns := []model.InternalTransaction{
		{ID: "before", Kind: model.KindOther, AmountMinor: 1, Date: storageTime.AddDate(0, 0, -5)},
		{ID: "inside", Kind: model.KindOther, AmountMinor: 2, Date: storageTime},
		{ID: "edge", Kind: model.KindOther, AmountMinor: 3, Date: storageTime.AddDate(0, 0, 7)},
		{ID: "after", Kind: model.KindOther, AmountMinor: 4, Date: storageTime.AddDate(0, 0, 10)},
	}
	require.NoError(t, store.SaveInternalTransactions(ctx, txns))

	// The period is inclusive on both ends.
	got, err := store.TransactionsByPeriod(ctx, storageTime, storageTime.AddDate(0, 0, 7))
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, txn := range got {
		ids = append(ids, txn.ID)
	}
	assert.Equal(t, []string{"inside", "edge"}, ids)
}

func TestSaveInternalTransactionsUpsert(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	txn := model.InternalTransaction{ID: "txn-1", Kind: model.KindPayment, AmountMinor: 100, Date: storageTime}
	require.NoError(t, store.SaveInternalTransactions(ctx, []model.InternalTransaction{txn}))

	txn.AmountMinor = 200
	require.NoError(t, store.SaveInternalTransactions(ctx, []model.InternalTransaction{txn}))

	all, err := store.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(200), all[0].AmountMinor)
}

func TestParentsRoundTrip(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	parents := []model.ParentRecord{
		{ID: "order-2", CreatedAt: storageTime, TotalMinor: 5000},
		{ID: "order-1", CreatedAt: storageTime.Add(-time.Hour), TotalMinor: 10000},
	}
	require.NoError(t, store.SaveParents(ctx, parents))

	got, err := store.Parents(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by id.
	assert.Equal(t, "order-1", got[0].ID)
	assert.Equal(t, int64(10000), got[0].TotalMinor)
	assert.Equal(t, "order-2", got[1].ID)
}

func TestHasApproval(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.SaveApprovals(ctx, []model.Approval{
		{ID: "appr-1", CreatedAt: storageTime, ApprovedBy: "ops"},
	}))

	found, err := store.HasApproval(ctx, "appr-1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.HasApproval(ctx, "appr-missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSaveDetectionReportIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	discrepancy := model.Discrepancy{
		ID:          model.DiscrepancyID("orphaned_transaction", "txn-1"),
		Category:    model.CategoryOrphanedTransaction,
		Severity:    model.SeverityHigh,
		EntityID:    "txn-1",
		Description: "transaction txn-1 references missing parent order-9",
		ImpactMinor: 4500,
		Confidence:  1.0,
		Status:      model.DiscrepancyNew,
		Evidence:    map[string]any{"parent_id": "order-9"},
	}

	first := &model.DiscrepancyDetectionReport{
		RunID:         "run-1",
		GeneratedAt:   storageTime,
		Discrepancies: []model.Discrepancy{discrepancy},
	}
	require.NoError(t, store.SaveDetectionReport(ctx, first))

	// The workflow picks the finding up.
	require.NoError(t, store.UpdateDiscrepancyStatus(ctx, discrepancy.ID, model.DiscrepancyInvestigating))

	// A second run over unchanged data re-emits the same id; the insert is
	// ignored and the status survives.
	second := &model.DiscrepancyDetectionReport{
		RunID:         "run-2",
		GeneratedAt:   storageTime.Add(time.Hour),
		Discrepancies: []model.Discrepancy{discrepancy},
	}
	require.NoError(t, store.SaveDetectionReport(ctx, second))

	status, err := store.Status(ctx, discrepancy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DiscrepancyInvestigating, status)
}

func TestSaveDetectionReportRejectsInvalidDiscrepancy(t *testing.T) {
	store := testutil.SetupTestDB(t)

	report := &model.DiscrepancyDetectionReport{
		RunID:       "run-1",
		GeneratedAt: storageTime,
		Discrepancies: []model.Discrepancy{
			{
				ID:       model.DiscrepancyID("orphaned_transaction", "txn-1"),
				Category: model.CategoryOrphanedTransaction,
				Severity: model.SeverityHigh,
				// EntityID missing.
				Status:     model.DiscrepancyNew,
				Confidence: 1.0,
			},
		},
	}

	err := store.SaveDetectionReport(context.Background(), report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entity id is required")
}

func TestStatusNotFound(t *testing.T) {
	store := testutil.SetupTestDB(t)

	_, err := store.Status(context.Background(), "never-recorded")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUpdateDiscrepancyStatusNotFound(t *testing.T) {
	store := testutil.SetupTestDB(t)

	err := store.UpdateDiscrepancyStatus(context.Background(), "never-recorded", model.DiscrepancyResolved)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSaveReconciliationReport(t *testing.T) {
	store := testutil.SetupTestDB(t)
	ctx := context.Background()

	report := &model.ReconciliationReport{
		RunID:                "run-1",
		GeneratedAt:          storageTime,
		BankName:             "First National",
		ClosingBalanceMinor:  100000,
		InternalBalanceMinor: 100000,
		Reconciled:           true,
	}
	require.NoError(t, store.SaveReconciliationReport(ctx, report))

	// Saving the same run again replaces the row rather than erroring.
	report.Reconciled = false
	require.NoError(t, store.SaveReconciliationReport(ctx, report))
}

func TestRecordRunSummary(t *testing.T) {
	store := testutil.SetupTestDB(t)

	err := store.RecordRunSummary(context.Background(), "reconciliation.completed", "run-1", "ops",
		map[string]int{"matched": 10, "unmatched_bank": 2})
	require.NoError(t, err)
}

func TestContextValidation(t *testing.T) {
	store := testutil.SetupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Transactions(ctx)
	require.Error(t, err)
}
