package statement

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledgersift/ledgersift/internal/common"
	"github.com/ledgersift/ledgersift/internal/model"
)

// columnRoles maps detected header positions to their meaning. A value of -1
// means the role was not found.
type columnRoles struct {
	date        int
	description int
	amount      int
	balance     int
	reference   int
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01-02-2006",
	"2006-01-02 15:04:05",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// parseCSV parses delimited text with a header row. Rows that fail to yield
// a valid date or amount are skipped and counted, never fatal.
func (p *Parser) parseCSV(content []byte) (*ParsedStatement, error) {
	lines := splitLines(string(content))
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no header row", common.ErrEmptyStatement)
	}

	roles := detectColumns(tokenizeRow(lines[0]))
	if roles.date < 0 || roles.amount < 0 {
		return nil, fmt.Errorf("%w: header has no date or amount column", common.ErrEmptyStatement)
	}

	stmt := &ParsedStatement{}

	for i, line := range lines[1:] {
		lineNo := i + 2
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := tokenizeRow(line)
		txn, ok := parseRow(fields, roles, len(stmt.Transactions))
		if !ok {
			stmt.SkippedRows++
			slog.Debug("Skipping malformed statement row", "line", lineNo)
			continue
		}

		stmt.Transactions = append(stmt.Transactions, txn)
	}

	deriveBalances(stmt)

	slog.Info("Parsed delimited statement",
		"transactions", len(stmt.Transactions),
		"skipped_rows", stmt.SkippedRows)

	return stmt, nil
}

// detectColumns assigns roles by case-insensitive substring matching on
// normalized header tokens. For each role the first matching column wins.
func detectColumns(headers []string) columnRoles {
	roles := columnRoles{date: -1, description: -1, amount: -1, balance: -1, reference: -1}

	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	match := func(keywords ...string) int {
		for i, h := range normalized {
			for _, kw := range keywords {
				if strings.Contains(h, kw) {
					return i
				}
			}
		}
		return -1
	}

	roles.date = match("date", "posted")
	roles.amount = match("amount", "debit", "credit")
	roles.description = match("desc", "memo", "narrative", "detail", "payee")
	roles.balance = match("balance")
	roles.reference = match("ref", "number", "id")

	return roles
}

// tokenizeRow splits a comma-delimited line honoring quoted fields: a quote
// toggles the in-quotes state, and a comma inside quotes is not a separator.
func tokenizeRow(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))

	return fields
}

func parseRow(fields []string, roles columnRoles, ordinal int) (model.BankTransaction, bool) {
	if roles.date >= len(fields) || roles.amount >= len(fields) {
		return model.BankTransaction{}, false
	}

	date, ok := parseDate(fields[roles.date])
	if !ok {
		return model.BankTransaction{}, false
	}

	amountMinor, err := parseAmountMinor(fields[roles.amount])
	if err != nil {
		return model.BankTransaction{}, false
	}

	txn := model.BankTransaction{
		Date:        date,
		AmountMinor: amountMinor,
		Type:        typeForAmount(amountMinor),
	}

	if roles.description >= 0 && roles.description < len(fields) {
		txn.Description = fields[roles.description]
	}
	if roles.reference >= 0 && roles.reference < len(fields) {
		txn.Reference = fields[roles.reference]
	}
	if roles.balance >= 0 && roles.balance < len(fields) {
		if balance, err := parseAmountMinor(fields[roles.balance]); err == nil {
			txn.BalanceMinor = &balance
		}
	}

	if txn.Reference != "" {
		txn.ID = txn.Reference
	} else {
		txn.ID = syntheticID(date, amountMinor, txn.Description, ordinal)
	}

	return txn, true
}

func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// deriveBalances fills the statement balances from the running-balance
// column when one was present: closing from the last row, opening backed out
// of the first row.
func deriveBalances(stmt *ParsedStatement) {
	if len(stmt.Transactions) == 0 {
		return
	}

	first := stmt.Transactions[0]
	last := stmt.Transactions[len(stmt.Transactions)-1]

	if last.BalanceMinor != nil {
		stmt.ClosingBalanceMinor = *last.BalanceMinor
	}
	if first.BalanceMinor != nil {
		stmt.OpeningBalanceMinor = *first.BalanceMinor - first.AmountMinor
	}
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.Trim(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
