package commission

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/receipts"
)

var paymentFormMultipliers = map[string]int64{
	"H": 24,
	"M": 12,
}

// Multiplier returns the annualisation factor of a payment form.
func Multiplier(paymentForm string) int64 {
	if m, ok := paymentFormMultipliers[strings.ToUpper(strings.TrimSpace(paymentForm))]; ok {
		return m
	}
	return 1
}

// AnnualizedPremium scales the receipt's premium fraction to a yearly figure.
// It feeds production reporting only, never commission amounts.
func AnnualizedPremium(r receipts.Receipt) decimal.Decimal {
	return r.PremiumFraction.Mul(decimal.NewFromInt(Multiplier(r.PaymentForm)))
}

// ProductionLine is one agent's annualised production.
type ProductionLine struct {
	AgentKey   int             `json:"agent_key"`
	Receipts   int             `json:"receipts"`
	NewIssues  int             `json:"new_issues"`
	Premium    decimal.Decimal `json:"premium"`
	Annualized decimal.Decimal `json:"annualized"`
}

// Production summarises annualised production per agent, ordered by agent key.
func Production(rs []receipts.Receipt) []ProductionLine {
	byAgent := make(map[int]*ProductionLine)
	for _, r := range rs {
		line, ok := byAgent[r.AgentKey]
		if !ok {
			line = &ProductionLine{AgentKey: r.AgentKey, Premium: decimal.Zero, Annualized: decimal.Zero}
			byAgent[r.AgentKey] = line
		}
		line.Receipts++
		if r.TransactionCode == receipts.TxNewIssue {
			line.NewIssues++
		}
		line.Premium = line.Premium.Add(r.PremiumFraction)
		line.Annualized = line.Annualized.Add(AnnualizedPremium(r))
	}
	out := make([]ProductionLine, 0, len(byAgent))
	for _, line := range byAgent {
		out = append(out, *line)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentKey < out[j].AgentKey })
	return out
}
