// Package statement normalizes heterogeneous bank statement formats into a
// uniform transaction sequence for the matcher.
package statement

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
)

// Format identifies a supported statement format.
type Format string

const (
	// FormatCSV is delimited text with a header row.
	FormatCSV Format = "CSV"
	// FormatOFX is the OFX/QFX tag-based format.
	FormatOFX Format = "OFX"
)

// Hints carries caller-supplied metadata the statement itself may lack.
type Hints struct {
	BankName            string
	AccountNumber       string
	ClosingBalanceMinor *int64
}

// ParsedStatement is the normalized result of parsing one statement file.
type ParsedStatement struct {
	BankName            string                  `json:"bank_name,omitempty"`
	AccountNumber       string                  `json:"account_number,omitempty"`
	Period              model.Period            `json:"period"`
	Transactions        []model.BankTransaction `json:"transactions"`
	OpeningBalanceMinor int64                   `json:"opening_balance_minor"`
	ClosingBalanceMinor int64                   `json:"closing_balance_minor"`
	SkippedRows         int                     `json:"skipped_rows"`
}

// Parser dispatches statement content to a format-specific parser.
type Parser struct{}

// NewParser creates a new statement parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse normalizes statement content in the declared format. An unknown
// format is fatal; an empty but well-formed statement is not.
func (p *Parser) Parse(content []byte, format Format, hints Hints) (*ParsedStatement, error) {
	var (
		stmt *ParsedStatement
		err  error
	)

	switch format {
	case FormatCSV:
		stmt, err = p.parseCSV(content)
	case FormatOFX:
		stmt, err = p.parseOFX(content)
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	applyHints(stmt, hints)
	stmt.Period = derivePeriod(stmt.Transactions)

	return stmt, nil
}

func applyHints(stmt *ParsedStatement, hints Hints) {
	if stmt.BankName == "" {
		stmt.BankName = hints.BankName
	}
	if stmt.AccountNumber == "" {
		stmt.AccountNumber = hints.AccountNumber
	}
	if hints.ClosingBalanceMinor != nil {
		stmt.ClosingBalanceMinor = *hints.ClosingBalanceMinor
	}
}

// derivePeriod computes the statement period from the transactions that were
// actually parsed, never from header dates.
func derivePeriod(txns []model.BankTransaction) model.Period {
	var period model.Period
	for _, txn := range txns {
		if period.Start.IsZero() || txn.Date.Before(period.Start) {
			period.Start = txn.Date
		}
		if period.End.IsZero() || txn.Date.After(period.End) {
			period.End = txn.Date
		}
	}
	return period
}

// parseAmountMinor converts a major-unit amount string to signed integer
// minor units. This is the only place float-style amounts enter the engine.
func parseAmountMinor(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")

	// Accounting-style negatives: (4.50) means -4.50.
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + s[1:len(s)-1]
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}

	return d.Shift(2).Round(0).IntPart(), nil
}

// typeForAmount classifies a signed amount as debit or credit.
func typeForAmount(amountMinor int64) model.TransactionType {
	if amountMinor < 0 {
		return model.TypeDebit
	}
	return model.TypeCredit
}

// syntheticID derives a stable transaction id for rows that carry none.
func syntheticID(date time.Time, amountMinor int64, description string, ordinal int) string {
	data := fmt.Sprintf("%s:%d:%s:%d", date.Format("2006-01-02"), amountMinor, description, ordinal)
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum)[:16]
}
