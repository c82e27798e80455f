package model

import (
	"crypto/sha256"
	"fmt"
)

// Severity is the ordered criticality of a finding: LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	// SeverityLow indicates a minor anomaly.
	SeverityLow Severity = "LOW"
	// SeverityMedium indicates an anomaly that should be reviewed.
	SeverityMedium Severity = "MEDIUM"
	// SeverityHigh indicates a significant anomaly.
	SeverityHigh Severity = "HIGH"
	// SeverityCritical indicates an anomaly requiring immediate attention.
	SeverityCritical Severity = "CRITICAL"
)

// Rank returns the numeric position of a severity, higher is more severe.
// Unknown severities rank below LOW.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Max returns the more severe of s and other.
func (s Severity) Max(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// DiscrepancyCategory identifies the kind of integrity anomaly detected.
type DiscrepancyCategory string

const (
	// CategoryOrphanedTransaction flags transactions referencing a missing parent.
	CategoryOrphanedTransaction DiscrepancyCategory = "ORPHANED_TRANSACTION"
	// CategoryImpossibleState flags transactions in a state their history forbids.
	CategoryImpossibleState DiscrepancyCategory = "IMPOSSIBLE_STATE"
	// CategoryAmountMismatch flags parent totals that disagree with child sums.
	CategoryAmountMismatch DiscrepancyCategory = "AMOUNT_MISMATCH"
	// CategoryDuplicateTransaction flags likely double-recorded transactions.
	CategoryDuplicateTransaction DiscrepancyCategory = "DUPLICATE_TRANSACTION"
	// CategoryTemporalInconsistency flags child events predating their parent.
	CategoryTemporalInconsistency DiscrepancyCategory = "TEMPORAL_INCONSISTENCY"
	// CategoryThresholdViolation flags large transactions without approval.
	CategoryThresholdViolation DiscrepancyCategory = "THRESHOLD_VIOLATION"
)

// DiscrepancyStatus is the lifecycle state of a discrepancy. The engine only
// ever creates discrepancies in StatusNew; the remaining transitions are
// owned by an external case-management workflow.
type DiscrepancyStatus string

const (
	// DiscrepancyNew is the only status the engine emits.
	DiscrepancyNew DiscrepancyStatus = "NEW"
	// DiscrepancyInvestigating means a human has picked the finding up.
	DiscrepancyInvestigating DiscrepancyStatus = "INVESTIGATING"
	// DiscrepancyResolved means the finding was confirmed and fixed.
	DiscrepancyResolved DiscrepancyStatus = "RESOLVED"
	// DiscrepancyFalsePositive means the finding was dismissed.
	DiscrepancyFalsePositive DiscrepancyStatus = "FALSE_POSITIVE"
)

// Discrepancy is one detected integrity anomaly. Its ID is deterministic
// given the rule and entity, so re-running a rule over unchanged data yields
// the same ids and persistent stores can deduplicate on insert.
type Discrepancy struct {
	Evidence    map[string]any      `json:"evidence,omitempty"`
	ID          string              `json:"id"`
	Category    DiscrepancyCategory `json:"category"`
	Severity    Severity            `json:"severity"`
	EntityID    string              `json:"entity_id"`
	Description string              `json:"description"`
	Status      DiscrepancyStatus   `json:"status"`
	AssignedTo  string              `json:"assigned_to,omitempty"`
	RelatedIDs  []string            `json:"related_ids,omitempty"`
	ImpactMinor int64               `json:"impact_minor"`
	Confidence  float64             `json:"confidence"`
}

// DiscrepancyID derives the deterministic id for a rule/entity pair.
func DiscrepancyID(ruleID, entityID string) string {
	sum := sha256.Sum256([]byte(ruleID + ":" + entityID))
	return fmt.Sprintf("%x", sum)[:16]
}

// Validate checks structural invariants on a discrepancy.
func (d *Discrepancy) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("discrepancy id is required")
	}
	if d.Category == "" {
		return fmt.Errorf("discrepancy category is required")
	}
	if d.Severity.Rank() == 0 {
		return fmt.Errorf("invalid severity %q", d.Severity)
	}
	if d.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if d.Confidence < 0.0 || d.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0 and 1")
	}
	return nil
}
