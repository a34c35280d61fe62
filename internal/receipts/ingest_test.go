package receipts

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubResolver map[string]int

func (s stubResolver) ResolveAgent(policy string) (int, bool) {
	key, ok := s[policy]
	return key, ok
}

func (s stubResolver) PolicyCount() int { return len(s) }

func sheetRow(values map[Column]string) []string {
	row := make([]string, columnCount)
	for c, v := range values {
		row[c] = v
	}
	return row
}

func baseRow() map[Column]string {
	return map[Column]string{
		ColGroup:                 "G1",
		ColSheetAgentKey:         "9999",
		ColPolicyNumber:          "POL-1",
		ColReceiptNumber:         "R-1",
		ColTransactionCode:       "emi",
		ColMovementDate:          "2024-06-13",
		ColPolicyStartDate:       "01/06/2024",
		ColPremiumFraction:       "$1,000.50",
		ColCombinedAmount:        "2,000.00",
		ColPromoterCommissionPct: "10%",
		ColPaymentForm:           "m",
	}
}

func TestParseRowsResolvesAgentFromPolicy(t *testing.T) {
	rows := [][]string{HeaderRow(), sheetRow(baseRow())}
	out, err := ParseRows(rows, stubResolver{"POL-1": 1200}, nil)
	require.NoError(t, err)
	require.Len(t, out.Receipts, 1)

	r := out.Receipts[0]
	require.Equal(t, 1200, r.AgentKey)
	require.Equal(t, "9999", r.SheetAgentKey)
	require.Equal(t, TxNewIssue, r.TransactionCode)
	require.Equal(t, "M", r.PaymentForm)
	require.True(t, r.PremiumFraction.Equal(decimal.RequireFromString("1000.50")))
	require.True(t, r.CombinedAmount.Equal(decimal.NewFromInt(2000)))
	require.True(t, r.PromoterCommissionPct.Valid)
	require.True(t, r.PromoterCommissionPct.Decimal.Equal(decimal.NewFromInt(10)))
	require.False(t, r.FirstYearCommission.Valid)
	require.Equal(t, time.Date(2024, time.June, 13, 0, 0, 0, 0, time.UTC), r.MovementDate)
	require.Equal(t, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), r.PolicyStartDate)
	require.Equal(t, 1, r.VigencyYear)
	require.Equal(t, 1, out.Report.Accepted)
	require.Empty(t, out.Report.Rejected)
}

func TestParseRowsHeaderOrderAndAccentsAreFree(t *testing.T) {
	header := HeaderRow()
	header[ColGroup], header[ColPolicyNumber] = "  POLIZA ", "grupo"
	row := sheetRow(baseRow())
	row[ColGroup], row[ColPolicyNumber] = row[ColPolicyNumber], row[ColGroup]

	out, err := ParseRows([][]string{header, row}, stubResolver{"POL-1": 7}, nil)
	require.NoError(t, err)
	require.Len(t, out.Receipts, 1)
	require.Equal(t, "POL-1", out.Receipts[0].PolicyNumber)
	require.Equal(t, "G1", out.Receipts[0].Group)
}

func TestParseRowsRejectsUnknownPolicyAndBadMoney(t *testing.T) {
	unknown := baseRow()
	unknown[ColPolicyNumber] = "POL-404"
	badMoney := baseRow()
	badMoney[ColCombinedAmount] = "abc"
	rows := [][]string{HeaderRow(), sheetRow(unknown), {"", " "}, sheetRow(badMoney), sheetRow(baseRow())}

	out, err := ParseRows(rows, stubResolver{"POL-1": 1}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Report.Rows)
	require.Equal(t, 1, out.Report.Accepted)
	require.Len(t, out.Report.Rejected, 2)
	require.Equal(t, 2, out.Report.Rejected[0].Row)
	require.Equal(t, 4, out.Report.Rejected[1].Row)
	require.Equal(t, "Importe comble", out.Report.Rejected[1].Column)
}

func TestParseRowsStructuralFailures(t *testing.T) {
	_, err := ParseRows(nil, stubResolver{"P": 1}, nil)
	require.ErrorIs(t, err, ErrEmptySheet)

	_, err = ParseRows([][]string{HeaderRow()}, stubResolver{}, nil)
	require.ErrorIs(t, err, ErrPolicyLookupEmpty)

	header := HeaderRow()[:5]
	_, err = ParseRows([][]string{header}, stubResolver{"P": 1}, nil)
	require.ErrorIs(t, err, ErrMissingColumn)
	var missing *MissingColumnsError
	require.True(t, errors.As(err, &missing))
	require.Contains(t, missing.Columns, "Forma de pago")
	require.Len(t, missing.Columns, int(columnCount)-5)
}

func TestParseRowsKeepsUnparseableMovementDates(t *testing.T) {
	values := baseRow()
	values[ColMovementDate] = "not a date"
	out, err := ParseRows([][]string{HeaderRow(), sheetRow(values)}, stubResolver{"POL-1": 1}, nil)
	require.NoError(t, err)
	require.Len(t, out.Receipts, 1)
	require.False(t, out.Receipts[0].HasMovementDate())
	require.Equal(t, 1, out.Report.UnparseableDates)
}

func TestParseDateFormats(t *testing.T) {
	want := time.Date(2024, time.June, 13, 0, 0, 0, 0, time.UTC)
	for _, raw := range []string{"2024-06-13", "13/06/2024", "13-06-2024", "45456"} {
		got, err := ParseDate(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got, raw)
	}
	_, err := ParseDate("")
	require.ErrorIs(t, err, ErrUnparseableDate)
	_, err = ParseDate("31/02/2024")
	require.ErrorIs(t, err, ErrUnparseableDate)
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"":           "0",
		"$1,234.56":  "1234.56",
		"-300":       "-300",
		"(1,000.00)": "-1000",
		" 12.5 MXN ": "12.5",
	}
	for raw, want := range cases {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		require.True(t, got.Equal(decimal.RequireFromString(want)), "%q => %s", raw, got)
	}
	_, err := ParseAmount("1.2.3")
	require.Error(t, err)
}

func TestVigencyYear(t *testing.T) {
	start := time.Date(2022, time.March, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 1, VigencyYear(start, time.Date(2022, time.December, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 1, VigencyYear(start, time.Date(2023, time.March, 14, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 2, VigencyYear(start, time.Date(2023, time.March, 15, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 3, VigencyYear(start, time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 1, VigencyYear(time.Time{}, start))
}

func TestReadWorkbookUsesFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	header := HeaderRow()
	headerCells := make([]any, len(header))
	for i, h := range header {
		headerCells[i] = h
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &headerCells))

	row := sheetRow(baseRow())
	rowCells := make([]any, len(row))
	for i, v := range row {
		rowCells[i] = v
	}
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &rowCells))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	out, err := ReadWorkbook(bytes.NewReader(buf.Bytes()), "", stubResolver{"POL-1": 1500}, nil)
	require.NoError(t, err)
	require.Len(t, out.Receipts, 1)
	require.Equal(t, 1500, out.Receipts[0].AgentKey)
	require.Equal(t, "R-1", out.Receipts[0].ReceiptNumber)
}
