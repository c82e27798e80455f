package statement

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersift/ledgersift/internal/model"
)

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240215120000[0:GMT]
<LANGUAGE>ENG
<FI>
<ORG>First National
<FID>321
</FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>ACME SUPPLY CO
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>1500.00
<FITID>2024012001
<NAME>PAYROLL DEPOSIT
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<MEMO>RENT PAYMENT
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestParseOFXBankStatement(t *testing.T) {
	parser := NewParser()
	stmt, err := parser.Parse([]byte(sampleBankOFX), FormatOFX, Hints{})
	require.NoError(t, err)

	assert.Equal(t, "First National", stmt.BankName)
	assert.Equal(t, "1234567890", stmt.AccountNumber)
	assert.Equal(t, int64(100000), stmt.ClosingBalanceMinor)

	require.Len(t, stmt.Transactions, 3)

	first := stmt.Transactions[0]
	assert.Equal(t, "2024011501", first.ID)
	assert.Equal(t, "2024011501", first.Reference)
	assert.Equal(t, int64(-2550), first.AmountMinor)
	assert.Equal(t, model.TypeDebit, first.Type)
	assert.Equal(t, "ACME SUPPLY CO", first.Description)
	assert.Equal(t, "2024-01-15", first.Date.Format("2006-01-02"))

	second := stmt.Transactions[1]
	assert.Equal(t, int64(150000), second.AmountMinor)
	assert.Equal(t, model.TypeCredit, second.Type)

	third := stmt.Transactions[2]
	assert.Equal(t, "RENT PAYMENT", third.Description)

	assert.Equal(t, "2024-01-15", stmt.Period.Start.Format("2006-01-02"))
	assert.Equal(t, "2024-01-25", stmt.Period.End.Format("2006-01-02"))
}

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240215120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-89.99
<FITID>2024011001
<NAME>CLOUD HOSTING
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-450.25
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseOFXCreditCardStatement(t *testing.T) {
	parser := NewParser()
	stmt, err := parser.Parse([]byte(sampleCreditCardOFX), FormatOFX, Hints{})
	require.NoError(t, err)

	assert.Equal(t, "4111111111111111", stmt.AccountNumber)
	assert.Equal(t, int64(-45025), stmt.ClosingBalanceMinor)

	require.Len(t, stmt.Transactions, 1)
	txn := stmt.Transactions[0]
	assert.Equal(t, int64(-8999), txn.AmountMinor)
	assert.Equal(t, model.TypeDebit, txn.Type)
	assert.Equal(t, "CLOUD HOSTING", txn.Description)
}

func TestParseOFXFragmentFallback(t *testing.T) {
	// Headerless tag fragments are rejected by the OFX library and go
	// through the direct tag scan instead.
	content := `<ACCTID>999
<BALAMT>500.00
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240105
<TRNAMT>100.00
<FITID>abc123
<MEMO>Test
</STMTTRN>`

	parser := NewParser()
	stmt, err := parser.Parse([]byte(content), FormatOFX, Hints{})
	require.NoError(t, err)

	assert.Equal(t, "999", stmt.AccountNumber)
	assert.Equal(t, int64(50000), stmt.ClosingBalanceMinor)

	require.Len(t, stmt.Transactions, 1)
	txn := stmt.Transactions[0]
	assert.Equal(t, "abc123", txn.ID)
	assert.Equal(t, int64(10000), txn.AmountMinor)
	assert.Equal(t, model.TypeCredit, txn.Type)
	assert.Equal(t, "Test", txn.Description)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), txn.Date)
}

func TestParseOFXFragmentSkipsIncompleteBlocks(t *testing.T) {
	content := `<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240105
<TRNAMT>100.00
<FITID>good
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240106
</STMTTRN>`

	parser := NewParser()
	stmt, err := parser.Parse([]byte(content), FormatOFX, Hints{})
	require.NoError(t, err)

	require.Len(t, stmt.Transactions, 1)
	assert.Equal(t, "good", stmt.Transactions[0].ID)
	assert.Equal(t, 1, stmt.SkippedRows)
}

func TestParseOFXInvalidContent(t *testing.T) {
	parser := NewParser()
	_, err := parser.Parse([]byte("this is not OFX at all"), FormatOFX, Hints{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse OFX statement")
}

func TestParseOFXDate(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{input: "20240105", want: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), ok: true},
		{input: "20240105120000", want: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC), ok: true},
		{input: "20240105120000[0:GMT]", want: time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC), ok: true},
		{input: "2024", ok: false},
		{input: "garbage", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseOFXDate(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.want.Equal(got))
			}
		})
	}
}

func TestPreprocessOFX(t *testing.T) {
	input := "  \n<OFX>\n<SEVERITY>Info</SEVERITY>\n<LANGUAGE\n</OFX>"
	got := preprocessOFX(input)

	assert.True(t, !strings.HasPrefix(got, " "))
	assert.Contains(t, got, "<SEVERITY>INFO</SEVERITY>")
	assert.Contains(t, got, "<LANGUAGE>")
}
