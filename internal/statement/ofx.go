package statement

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/ledgersift/ledgersift/internal/model"
)

// parseOFX parses an OFX/QFX statement. Well-formed files go through ofxgo;
// headerless tag fragments fall back to a direct tag scan. Opening balance is
// not present in this format and defaults to 0.
func (p *Parser) parseOFX(content []byte) (*ParsedStatement, error) {
	processed := preprocessOFX(string(content))

	resp, err := ofxgo.ParseResponse(strings.NewReader(processed))
	if err != nil {
		if strings.Contains(strings.ToUpper(processed), "<STMTTRN>") {
			slog.Debug("OFX library rejected statement, scanning tags directly", "error", err)
			return p.scanTagBlocks(processed)
		}
		return nil, fmt.Errorf("failed to parse OFX statement: %w", err)
	}

	stmt := &ParsedStatement{}

	for _, msg := range resp.Bank {
		bankStmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		stmt.AccountNumber = string(bankStmt.BankAcctFrom.AcctID)
		balance, _ := bankStmt.BalAmt.Float64()
		if bankStmt.BankTranList != nil {
			for _, ofxTxn := range bankStmt.BankTranList.Transactions {
				stmt.Transactions = append(stmt.Transactions, convertOFXTransaction(ofxTxn))
			}
		}
		stmt.ClosingBalanceMinor = floatToMinor(balance)
	}

	for _, msg := range resp.CreditCard {
		ccStmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		stmt.AccountNumber = string(ccStmt.CCAcctFrom.AcctID)
		balance, _ := ccStmt.BalAmt.Float64()
		if ccStmt.BankTranList != nil {
			for _, ofxTxn := range ccStmt.BankTranList.Transactions {
				stmt.Transactions = append(stmt.Transactions, convertOFXTransaction(ofxTxn))
			}
		}
		stmt.ClosingBalanceMinor = floatToMinor(balance)
	}

	if org := resp.Signon.Org; org != "" {
		stmt.BankName = string(org)
	}

	slog.Info("Parsed OFX statement",
		"transactions", len(stmt.Transactions),
		"account", stmt.AccountNumber)

	return stmt, nil
}

// preprocessOFX fixes common formatting issues in OFX files before handing
// them to the parser library.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// Mixed-case SEVERITY values (should be INFO, WARN, or ERROR).
	severityRegex := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML-style files sometimes drop the closing angle bracket on a tag
	// that ends its line.
	tagFixRegex := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

func convertOFXTransaction(ofxTxn ofxgo.Transaction) model.BankTransaction {
	amountFloat, _ := ofxTxn.TrnAmt.Float64()
	amountMinor := floatToMinor(amountFloat)

	description := string(ofxTxn.Name)
	if ofxTxn.Payee != nil && ofxTxn.Payee.Name != "" {
		description = string(ofxTxn.Payee.Name)
	}
	if description == "" {
		description = string(ofxTxn.Memo)
	}

	id := string(ofxTxn.FiTID)

	return model.BankTransaction{
		ID:          id,
		Reference:   id,
		Date:        ofxTxn.DtPosted.Time,
		Description: strings.TrimSpace(description),
		AmountMinor: amountMinor,
		Type:        typeForAmount(amountMinor),
	}
}

// Tag-scan fallback for OFX-ish fragments the library cannot load.

var (
	trnCloseTag  = "</STMTTRN>"
	trnAmtRegex  = regexp.MustCompile(`(?i)<TRNAMT>([^<\r\n]+)`)
	dtPostedRgx  = regexp.MustCompile(`(?i)<DTPOSTED>([^<\r\n]+)`)
	memoRegex    = regexp.MustCompile(`(?i)<MEMO>([^<\r\n]+)`)
	nameRegex    = regexp.MustCompile(`(?i)<NAME>([^<\r\n]+)`)
	fitIDRegex   = regexp.MustCompile(`(?i)<FITID>([^<\r\n]+)`)
	balAmtRegex  = regexp.MustCompile(`(?i)<BALAMT>([^<\r\n]+)`)
	acctIDRegex  = regexp.MustCompile(`(?i)<ACCTID>([^<\r\n]+)`)
	orgTagRegex  = regexp.MustCompile(`(?i)<ORG>([^<\r\n]+)`)
	ofxDigitsRgx = regexp.MustCompile(`^\d+`)
)

func (p *Parser) scanTagBlocks(content string) (*ParsedStatement, error) {
	stmt := &ParsedStatement{
		BankName:      tagValue(orgTagRegex, content),
		AccountNumber: tagValue(acctIDRegex, content),
	}

	if raw := tagValue(balAmtRegex, content); raw != "" {
		if balance, err := parseAmountMinor(raw); err == nil {
			stmt.ClosingBalanceMinor = balance
		}
	}

	blocks := strings.Split(content, "<STMTTRN>")[1:]
	for _, block := range blocks {
		if end := strings.Index(block, trnCloseTag); end >= 0 {
			block = block[:end]
		}

		txn, ok := parseTagBlock(block)
		if !ok {
			stmt.SkippedRows++
			continue
		}
		stmt.Transactions = append(stmt.Transactions, txn)
	}

	slog.Info("Parsed OFX statement via tag scan",
		"transactions", len(stmt.Transactions),
		"skipped_blocks", stmt.SkippedRows)

	return stmt, nil
}

func parseTagBlock(block string) (model.BankTransaction, bool) {
	amountRaw := tagValue(trnAmtRegex, block)
	dateRaw := tagValue(dtPostedRgx, block)
	if amountRaw == "" || dateRaw == "" {
		return model.BankTransaction{}, false
	}

	amountMinor, err := parseAmountMinor(amountRaw)
	if err != nil {
		return model.BankTransaction{}, false
	}

	date, ok := parseOFXDate(dateRaw)
	if !ok {
		return model.BankTransaction{}, false
	}

	description := tagValue(memoRegex, block)
	if description == "" {
		description = tagValue(nameRegex, block)
	}

	id := tagValue(fitIDRegex, block)

	return model.BankTransaction{
		ID:          id,
		Reference:   id,
		Date:        date,
		Description: description,
		AmountMinor: amountMinor,
		Type:        typeForAmount(amountMinor),
	}, true
}

func tagValue(re *regexp.Regexp, content string) string {
	if m := re.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// parseOFXDate accepts YYYYMMDD and YYYYMMDDHHMMSS, with or without a
// trailing timezone suffix like [0:GMT].
func parseOFXDate(raw string) (time.Time, bool) {
	digits := ofxDigitsRgx.FindString(strings.TrimSpace(raw))

	switch {
	case len(digits) >= 14:
		if t, err := time.Parse("20060102150405", digits[:14]); err == nil {
			return t, true
		}
	case len(digits) >= 8:
		if t, err := time.Parse("20060102", digits[:8]); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func floatToMinor(amount float64) int64 {
	return decimal.NewFromFloat(amount).Shift(2).Round(0).IntPart()
}
