package receipts

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column is a field of the receipt sheet schema.
type Column int

const (
	ColGroup Column = iota
	ColSheetAgentKey
	ColPolicyNumber
	ColReceiptNumber
	ColContractor
	ColTransactionCode
	ColMovementDate
	ColPolicyStartDate
	ColPolicyEndDate
	ColVigencyYear
	ColPremiumFraction
	ColFixedSurcharge
	ColCombinedAmount
	ColFirstYearCommission
	ColVariableLeveling
	ColPromoterCommissionPct
	ColPromoterCommissionAmount
	ColAgentCommissionPct
	ColAgentCommissionAmount
	ColSupervisorCommissionPct
	ColSupervisorCommissionAmount
	ColCurrency
	ColPaymentForm

	columnCount
)

// columnHeaders is the single translation table between sheet headers and fields.
var columnHeaders = [columnCount]string{
	ColGroup:                      "Grupo",
	ColSheetAgentKey:              "Clave del agente",
	ColPolicyNumber:               "Póliza",
	ColReceiptNumber:              "Recibo",
	ColContractor:                 "Contratante",
	ColTransactionCode:            "DSN",
	ColMovementDate:               "Fecha de movimiento",
	ColPolicyStartDate:            "Inicio de vigencia",
	ColPolicyEndDate:              "Fin de vigencia",
	ColVigencyYear:                "Año de vigencia",
	ColPremiumFraction:            "Prima fraccionada",
	ColFixedSurcharge:             "Recargo fijo",
	ColCombinedAmount:             "Importe comble",
	ColFirstYearCommission:        "Comisión primer año",
	ColVariableLeveling:           "Nivelación variable",
	ColPromoterCommissionPct:      "% Comisión promotoría",
	ColPromoterCommissionAmount:   "Comisión promotoría",
	ColAgentCommissionPct:         "% Comisión agente",
	ColAgentCommissionAmount:      "Comisión agente",
	ColSupervisorCommissionPct:    "% Comisión supervisor",
	ColSupervisorCommissionAmount: "Comisión supervisor",
	ColCurrency:                   "Moneda",
	ColPaymentForm:                "Forma de pago",
}

// Header returns the canonical sheet header for the column.
func (c Column) Header() string {
	if c < 0 || c >= columnCount {
		return ""
	}
	return columnHeaders[c]
}

// HeaderRow returns the canonical header row in schema order.
func HeaderRow() []string {
	out := make([]string, columnCount)
	copy(out, columnHeaders[:])
	return out
}

// MissingColumnsError lists the schema columns absent from a sheet header.
type MissingColumnsError struct {
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("receipts: missing required column(s): %s", strings.Join(e.Columns, ", "))
}

func (e *MissingColumnsError) Unwrap() error {
	return ErrMissingColumn
}

// Layout maps every schema column to its position in a concrete sheet.
type Layout [columnCount]int

// ParseHeader validates a header row against the schema. Matching ignores case,
// accents and repeated whitespace; column order is free.
func ParseHeader(header []string) (Layout, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if key == "" {
			continue
		}
		if _, seen := positions[key]; !seen {
			positions[key] = i
		}
	}
	var layout Layout
	var missing []string
	for c := Column(0); c < columnCount; c++ {
		pos, ok := positions[normalizeHeader(columnHeaders[c])]
		if !ok {
			missing = append(missing, columnHeaders[c])
			continue
		}
		layout[c] = pos
	}
	if len(missing) > 0 {
		return Layout{}, &MissingColumnsError{Columns: missing}
	}
	return layout, nil
}

// Cell returns the trimmed value of column c in row, or "" when the row is short.
func (l Layout) Cell(row []string, c Column) string {
	pos := l[c]
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func normalizeHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}
