package commission

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/receipts"
)

// Total is the effective commission of one agent or supervisor in a period.
type Total struct {
	Key      int             `json:"key"`
	Receipts int             `json:"receipts"`
	Included int             `json:"included"`
	Excluded int             `json:"excluded"`
	Amount   decimal.Decimal `json:"amount"`
}

// Summary holds per-agent and per-supervisor totals for one period.
type Summary struct {
	Agents      []Total `json:"agents"`
	Supervisors []Total `json:"supervisors"`
}

// Agent returns the agent's total, or a zero total when it had no receipts.
func (s Summary) Agent(key int) Total {
	return find(s.Agents, key)
}

// Supervisor returns the supervisor's total, or a zero total.
func (s Summary) Supervisor(key int) Total {
	return find(s.Supervisors, key)
}

func find(totals []Total, key int) Total {
	i := sort.Search(len(totals), func(i int) bool { return totals[i].Key >= key })
	if i < len(totals) && totals[i].Key == key {
		return totals[i]
	}
	return Total{Key: key, Amount: decimal.Zero}
}

// Summarize aggregates a period's receipts. Agent totals use agent
// commissions of the agent's own receipts; supervisor totals use supervisor
// commissions of the receipts of the supervisor's agents. The reversal rule is
// applied per owner.
func Summarize(rs []receipts.Receipt, dir Directory) Summary {
	byAgent := receipts.GroupByAgent(rs)
	bySupervisor := make(map[int][]receipts.Receipt)
	if dir != nil {
		for _, r := range rs {
			if sup, ok := dir.SupervisorOf(r.AgentKey); ok {
				bySupervisor[sup.Key] = append(bySupervisor[sup.Key], r)
			}
		}
	}
	return Summary{
		Agents:      totals(byAgent, AgentEntries),
		Supervisors: totals(bySupervisor, SupervisorEntries),
	}
}

func totals(groups map[int][]receipts.Receipt, entries func([]receipts.Receipt) []Entry) []Total {
	out := make([]Total, 0, len(groups))
	for key, rs := range groups {
		res := Resolve(entries(rs))
		out = append(out, Total{
			Key:      key,
			Receipts: len(rs),
			Included: len(res.Included),
			Excluded: len(res.Excluded),
			Amount:   res.Total,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
