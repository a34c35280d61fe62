// Package receipts models premium-movement receipts, the translation between
// the agency's spreadsheet layout and typed records, and their persistence.
package receipts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction codes (DSN) with special handling downstream.
const (
	TxNewIssue     = "EMI"
	TxFirstPayment = "1PG"
)

var (
	// ErrMissingColumn indicates the sheet header does not carry the fixed schema.
	ErrMissingColumn = errors.New("receipts: missing required column")
	// ErrEmptySheet indicates the sheet has no header row.
	ErrEmptySheet = errors.New("receipts: sheet is empty")
	// ErrPolicyLookupEmpty indicates no policy to agent mapping is available at all.
	ErrPolicyLookupEmpty = errors.New("receipts: policy lookup is empty")
)

// Receipt is one premium movement tied to a policy. Commission fields are
// derived once, before upload, and never mutated afterwards.
type Receipt struct {
	ID              int64  `json:"id,omitempty"`
	Group           string `json:"group"`
	SheetAgentKey   string `json:"sheet_agent_key,omitempty"`
	AgentKey        int    `json:"agent_key"`
	PolicyNumber    string `json:"policy_number"`
	ReceiptNumber   string `json:"receipt_number"`
	Contractor      string `json:"contractor,omitempty"`
	TransactionCode string `json:"transaction_code"`
	PaymentForm     string `json:"payment_form"`
	Currency        string `json:"currency,omitempty"`

	PremiumFraction     decimal.Decimal     `json:"premium_fraction"`
	FixedSurcharge      decimal.Decimal     `json:"fixed_surcharge"`
	CombinedAmount      decimal.Decimal     `json:"combined_amount"`
	FirstYearCommission decimal.NullDecimal `json:"first_year_commission"`
	VariableLeveling    decimal.NullDecimal `json:"variable_leveling"`

	PromoterCommissionPct      decimal.NullDecimal `json:"promoter_commission_pct"`
	PromoterCommissionAmount   decimal.NullDecimal `json:"promoter_commission_amount"`
	AgentCommissionPct         decimal.NullDecimal `json:"agent_commission_pct"`
	AgentCommissionAmount      decimal.NullDecimal `json:"agent_commission_amount"`
	SupervisorCommissionPct    decimal.NullDecimal `json:"supervisor_commission_pct"`
	SupervisorCommissionAmount decimal.NullDecimal `json:"supervisor_commission_amount"`

	// MovementDate is zero when the source value could not be parsed.
	MovementDate    time.Time `json:"movement_date"`
	PolicyStartDate time.Time `json:"policy_start_date"`
	PolicyEndDate   time.Time `json:"policy_end_date"`
	VigencyYear     int       `json:"vigency_year"`
}

// HasMovementDate reports whether the movement date was parsed successfully.
func (r Receipt) HasMovementDate() bool {
	return !r.MovementDate.IsZero()
}

// Key identifies the receipt movement uniquely for idempotent inserts.
func (r Receipt) Key() string {
	return r.PolicyNumber + "/" + r.ReceiptNumber + "/" + r.TransactionCode + "/" + r.MovementDate.Format("2006-01-02")
}
