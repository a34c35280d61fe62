package commission

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/promotoria/comisiones/internal/refdata"
)

// ErrInvalidRates indicates a malformed rate table.
var ErrInvalidRates = errors.New("commission: invalid rate table")

// Rates holds the percentage tables. Percentages are expressed in points
// (7 means 7%). Agent rates are indexed by vigency year; the last entry of a
// tier applies to every later year.
type Rates struct {
	Agent                   map[refdata.Tier][]decimal.Decimal
	Supervisor              decimal.Decimal
	AgentExcludedCodes      []string
	SupervisorExcludedCodes []string
}

// DefaultRates returns the agency's standard rate table.
func DefaultRates() Rates {
	regular := pcts(50, 35, 20)
	return Rates{
		Agent: map[refdata.Tier][]decimal.Decimal{
			refdata.TierSpecial:    pcts(55, 40, 25),
			refdata.TierRegular:    regular,
			refdata.TierSupervisor: regular,
		},
		Supervisor:              decimal.NewFromInt(7),
		SupervisorExcludedCodes: []string{"1PG"},
	}
}

func pcts(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

// AgentRate returns the percentage for the agent key in the given vigency year.
func (r Rates) AgentRate(agentKey, vigencyYear int) (decimal.Decimal, bool) {
	table := r.Agent[refdata.TierOf(agentKey)]
	if len(table) == 0 {
		return decimal.Decimal{}, false
	}
	if vigencyYear < 1 {
		vigencyYear = 1
	}
	if vigencyYear > len(table) {
		vigencyYear = len(table)
	}
	return table[vigencyYear-1], true
}

// AgentExcluded reports whether the transaction code earns no agent commission.
func (r Rates) AgentExcluded(code string) bool {
	return containsCode(r.AgentExcludedCodes, code)
}

// SupervisorExcluded reports whether the transaction code earns no supervisor commission.
func (r Rates) SupervisorExcluded(code string) bool {
	return containsCode(r.SupervisorExcludedCodes, code)
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

type ratesFile struct {
	Agent                   map[string][]string `yaml:"agent"`
	SupervisorRate          string              `yaml:"supervisor_rate"`
	AgentExcludedCodes      []string            `yaml:"agent_excluded_codes"`
	SupervisorExcludedCodes *[]string           `yaml:"supervisor_excluded_codes"`
}

// LoadRates parses a yaml rate table. Sections left out keep their defaults.
func LoadRates(r io.Reader) (Rates, error) {
	var raw ratesFile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return Rates{}, fmt.Errorf("%w: %v", ErrInvalidRates, err)
	}
	rates := DefaultRates()
	for name, values := range raw.Agent {
		tier := refdata.Tier(strings.ToLower(strings.TrimSpace(name)))
		switch tier {
		case refdata.TierSpecial, refdata.TierRegular, refdata.TierSupervisor:
		default:
			return Rates{}, fmt.Errorf("%w: unknown tier %q", ErrInvalidRates, name)
		}
		if len(values) == 0 {
			return Rates{}, fmt.Errorf("%w: tier %s has no rates", ErrInvalidRates, tier)
		}
		table := make([]decimal.Decimal, len(values))
		for i, v := range values {
			d, err := parseRate(v)
			if err != nil {
				return Rates{}, fmt.Errorf("%w: tier %s year %d: %v", ErrInvalidRates, tier, i+1, err)
			}
			table[i] = d
		}
		rates.Agent[tier] = table
	}
	if raw.SupervisorRate != "" {
		d, err := parseRate(raw.SupervisorRate)
		if err != nil {
			return Rates{}, fmt.Errorf("%w: supervisor rate: %v", ErrInvalidRates, err)
		}
		rates.Supervisor = d
	}
	if raw.AgentExcludedCodes != nil {
		rates.AgentExcludedCodes = raw.AgentExcludedCodes
	}
	if raw.SupervisorExcludedCodes != nil {
		rates.SupervisorExcludedCodes = *raw.SupervisorExcludedCodes
	}
	return rates, nil
}

// LoadRatesFile reads a rate table from disk. An empty path yields the defaults.
func LoadRatesFile(path string) (Rates, error) {
	if path == "" {
		return DefaultRates(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Rates{}, fmt.Errorf("commission: open rates: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadRates(f)
}

func parseRate(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(v), "%"))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Decimal{}, fmt.Errorf("rate %s out of range", v)
	}
	return d, nil
}
