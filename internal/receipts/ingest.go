package receipts

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// PolicyResolver resolves the agent that owns a policy. The agent key printed
// on the sheet is never trusted; ownership always comes from here.
type PolicyResolver interface {
	ResolveAgent(policyNumber string) (int, bool)
	PolicyCount() int
}

// RowIssue explains why a sheet row was not accepted.
type RowIssue struct {
	Row    int    `json:"row"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
}

// IngestReport summarises a sheet ingestion.
type IngestReport struct {
	Rows             int        `json:"rows"`
	Accepted         int        `json:"accepted"`
	Rejected         []RowIssue `json:"rejected,omitempty"`
	UnparseableDates int        `json:"unparseable_dates"`
}

// Ingestion is the outcome of reading a sheet: typed receipts plus diagnostics.
type Ingestion struct {
	Receipts []Receipt
	Report   IngestReport
}

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
}

// ReadWorkbook reads the receipt sheet from an xlsx stream. When sheet is empty
// the first sheet of the workbook is used.
func ReadWorkbook(r io.Reader, sheet string, resolver PolicyResolver, logger *slog.Logger) (Ingestion, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Ingestion{}, fmt.Errorf("receipts: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Ingestion{}, ErrEmptySheet
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Ingestion{}, fmt.Errorf("receipts: read sheet %q: %w", sheet, err)
	}
	return ParseRows(rows, resolver, logger)
}

// ParseRows converts raw sheet rows (header first) into typed receipts.
// Structural problems abort; row-level problems drop the row and are reported.
func ParseRows(rows [][]string, resolver PolicyResolver, logger *slog.Logger) (Ingestion, error) {
	if len(rows) == 0 {
		return Ingestion{}, ErrEmptySheet
	}
	if resolver == nil || resolver.PolicyCount() == 0 {
		return Ingestion{}, ErrPolicyLookupEmpty
	}
	layout, err := ParseHeader(rows[0])
	if err != nil {
		return Ingestion{}, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	out := Ingestion{Receipts: make([]Receipt, 0, len(rows)-1)}
	for idx, row := range rows[1:] {
		sheetRow := idx + 2
		if blank(row) {
			continue
		}
		out.Report.Rows++
		receipt, issue := parseRow(layout, row, resolver)
		if issue != nil {
			issue.Row = sheetRow
			out.Report.Rejected = append(out.Report.Rejected, *issue)
			logger.Warn("receipt row rejected", slog.Int("row", sheetRow), slog.String("column", issue.Column), slog.String("reason", issue.Reason))
			continue
		}
		if !receipt.HasMovementDate() {
			out.Report.UnparseableDates++
			logger.Warn("receipt movement date unparseable", slog.Int("row", sheetRow), slog.String("policy", receipt.PolicyNumber))
		}
		out.Receipts = append(out.Receipts, receipt)
	}
	out.Report.Accepted = len(out.Receipts)
	return out, nil
}

func parseRow(layout Layout, row []string, resolver PolicyResolver) (Receipt, *RowIssue) {
	cell := func(c Column) string { return layout.Cell(row, c) }

	r := Receipt{
		Group:           cell(ColGroup),
		SheetAgentKey:   cell(ColSheetAgentKey),
		PolicyNumber:    cell(ColPolicyNumber),
		ReceiptNumber:   cell(ColReceiptNumber),
		Contractor:      cell(ColContractor),
		TransactionCode: strings.ToUpper(cell(ColTransactionCode)),
		PaymentForm:     strings.ToUpper(cell(ColPaymentForm)),
		Currency:        strings.ToUpper(cell(ColCurrency)),
	}
	if r.PolicyNumber == "" {
		return Receipt{}, &RowIssue{Column: ColPolicyNumber.Header(), Reason: "policy number is empty"}
	}
	agentKey, ok := resolver.ResolveAgent(r.PolicyNumber)
	if !ok {
		return Receipt{}, &RowIssue{Column: ColPolicyNumber.Header(), Reason: fmt.Sprintf("policy %s not found", r.PolicyNumber)}
	}
	r.AgentKey = agentKey

	var err error
	required := []struct {
		col  Column
		dest *decimal.Decimal
	}{
		{ColPremiumFraction, &r.PremiumFraction},
		{ColFixedSurcharge, &r.FixedSurcharge},
		{ColCombinedAmount, &r.CombinedAmount},
	}
	for _, f := range required {
		if *f.dest, err = ParseAmount(cell(f.col)); err != nil {
			return Receipt{}, &RowIssue{Column: f.col.Header(), Reason: err.Error()}
		}
	}
	optional := []struct {
		col     Column
		dest    *decimal.NullDecimal
		percent bool
	}{
		{ColFirstYearCommission, &r.FirstYearCommission, false},
		{ColVariableLeveling, &r.VariableLeveling, false},
		{ColPromoterCommissionPct, &r.PromoterCommissionPct, true},
		{ColPromoterCommissionAmount, &r.PromoterCommissionAmount, false},
		{ColAgentCommissionPct, &r.AgentCommissionPct, true},
		{ColAgentCommissionAmount, &r.AgentCommissionAmount, false},
		{ColSupervisorCommissionPct, &r.SupervisorCommissionPct, true},
		{ColSupervisorCommissionAmount, &r.SupervisorCommissionAmount, false},
	}
	for _, f := range optional {
		raw := cell(f.col)
		if f.percent {
			raw = strings.TrimSuffix(raw, "%")
		}
		if *f.dest, err = parseNullAmount(raw); err != nil {
			return Receipt{}, &RowIssue{Column: f.col.Header(), Reason: err.Error()}
		}
	}

	r.MovementDate, _ = ParseDate(cell(ColMovementDate))
	r.PolicyStartDate, _ = ParseDate(cell(ColPolicyStartDate))
	r.PolicyEndDate, _ = ParseDate(cell(ColPolicyEndDate))

	if raw := cell(ColVigencyYear); raw != "" {
		year, convErr := strconv.Atoi(strings.TrimSuffix(raw, ".0"))
		if convErr != nil {
			return Receipt{}, &RowIssue{Column: ColVigencyYear.Header(), Reason: fmt.Sprintf("invalid vigency year %q", raw)}
		}
		r.VigencyYear = year
	}
	if r.VigencyYear < 1 {
		r.VigencyYear = VigencyYear(r.PolicyStartDate, r.MovementDate)
	}
	return r, nil
}

// VigencyYear returns the policy year (1-based) a movement belongs to.
func VigencyYear(policyStart, movement time.Time) int {
	if policyStart.IsZero() || movement.IsZero() || movement.Before(policyStart) {
		return 1
	}
	years := movement.Year() - policyStart.Year()
	anniversary := policyStart.AddDate(years, 0, 0)
	if movement.Before(anniversary) {
		years--
	}
	return years + 1
}

// ParseAmount parses a money cell. Empty cells are zero; thousands separators
// and currency symbols are ignored.
func ParseAmount(raw string) (decimal.Decimal, error) {
	clean := cleanNumber(raw)
	if clean == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

func parseNullAmount(raw string) (decimal.NullDecimal, error) {
	if cleanNumber(raw) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParseAmount(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func cleanNumber(raw string) string {
	s := strings.TrimSpace(raw)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.NewReplacer(",", "", "$", "", "MXN", "", " ", "").Replace(s)
	if negative && s != "" && !strings.HasPrefix(s, "-") {
		s = "-" + s
	}
	return s
}

// ErrUnparseableDate is returned by ParseDate for values in no known format.
var ErrUnparseableDate = errors.New("receipts: unparseable date")

// ParseDate accepts ISO dates, day-first dates and excel serial numbers.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrUnparseableDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableDate, raw)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
