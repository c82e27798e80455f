// Package model defines the core data types shared across the reconciliation
// and discrepancy-detection pipelines. All monetary amounts are signed integer
// minor units (cents); conversion to and from major units happens only at the
// parsing and rendering boundaries.
package model

import (
	"time"
)

// TransactionType classifies the direction of a bank transaction.
type TransactionType string

const (
	// TypeDebit is money leaving the account.
	TypeDebit TransactionType = "DEBIT"
	// TypeCredit is money entering the account.
	TypeCredit TransactionType = "CREDIT"
)

// TransactionKind classifies an internal ledger transaction.
type TransactionKind string

const (
	// KindPayment is an incoming customer payment.
	KindPayment TransactionKind = "payment"
	// KindPayout is an outgoing transfer to a counterparty.
	KindPayout TransactionKind = "payout"
	// KindOther covers fees, adjustments, and anything else.
	KindOther TransactionKind = "other"
)

// TransactionStatus is the lifecycle state of an internal transaction as
// recorded by the owning ledger.
type TransactionStatus string

const (
	// StatusPending indicates the transaction has not settled.
	StatusPending TransactionStatus = "pending"
	// StatusCompleted indicates the transaction settled successfully.
	StatusCompleted TransactionStatus = "completed"
	// StatusRefunded indicates the transaction was reversed.
	StatusRefunded TransactionStatus = "refunded"
	// StatusFailed indicates the transaction never settled.
	StatusFailed TransactionStatus = "failed"
)

// BankTransaction is a single transaction parsed from an external statement.
// Instances are immutable once parsed and scoped to one statement run.
type BankTransaction struct {
	Date         time.Time       `json:"date"`
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Reference    string          `json:"reference,omitempty"`
	Type         TransactionType `json:"type"`
	AmountMinor  int64           `json:"amount_minor"`
	BalanceMinor *int64          `json:"balance_minor,omitempty"`
}

// InternalTransaction is a read-only snapshot of a transaction from the
// owning system's ledger. The engine never mutates these.
type InternalTransaction struct {
	Date         time.Time         `json:"date"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ID           string            `json:"id"`
	Kind         TransactionKind   `json:"kind"`
	Description  string            `json:"description"`
	Counterparty string            `json:"counterparty,omitempty"`
	Status       TransactionStatus `json:"status,omitempty"`
	ParentID     string            `json:"parent_id,omitempty"`
	ApprovalID   string            `json:"approval_id,omitempty"`
	AmountMinor  int64             `json:"amount_minor"`
}

// ParentRecord is the parent entity (order, invoice, batch) that internal
// transactions may reference. Integrity rules compare its recorded total
// against the sum of its child transactions.
type ParentRecord struct {
	CreatedAt  time.Time `json:"created_at"`
	ID         string    `json:"id"`
	TotalMinor int64     `json:"total_minor"`
}

// Approval is an approval record attached to a high-value transaction.
type Approval struct {
	CreatedAt  time.Time `json:"created_at"`
	ID         string    `json:"id"`
	ApprovedBy string    `json:"approved_by,omitempty"`
}
