package commission

import (
	"github.com/shopspring/decimal"

	"github.com/promotoria/comisiones/internal/receipts"
	"github.com/promotoria/comisiones/internal/refdata"
)

// Directory resolves supervisor attribution.
type Directory interface {
	SupervisorOf(agentKey int) (refdata.Agent, bool)
}

// Deriver fills the commission fields of freshly ingested receipts. It is the
// only place those fields are written.
type Deriver struct {
	engine *Engine
	dir    Directory
}

// NewDeriver constructs a Deriver.
func NewDeriver(engine *Engine, dir Directory) *Deriver {
	return &Deriver{engine: engine, dir: dir}
}

// Derive returns a copy of r with promoter, agent and supervisor commissions
// computed. Receipts of agents without a supervisor carry no supervisor commission.
func (d *Deriver) Derive(r receipts.Receipt) receipts.Receipt {
	out := r
	promoter := d.engine.Promoter(r)
	out.PromoterCommissionPct, out.PromoterCommissionAmount = promoter.Percentage, promoter.Amount

	agent := d.engine.Agent(r, r.AgentKey, r.VigencyYear)
	out.AgentCommissionPct, out.AgentCommissionAmount = agent.Percentage, agent.Amount

	out.SupervisorCommissionPct, out.SupervisorCommissionAmount = decimal.NullDecimal{}, decimal.NullDecimal{}
	if d.dir != nil {
		if _, ok := d.dir.SupervisorOf(r.AgentKey); ok {
			sup := d.engine.Supervisor(r)
			out.SupervisorCommissionPct, out.SupervisorCommissionAmount = sup.Percentage, sup.Amount
		}
	}
	return out
}

// DeriveAll derives every receipt, preserving order.
func (d *Deriver) DeriveAll(rs []receipts.Receipt) []receipts.Receipt {
	out := make([]receipts.Receipt, len(rs))
	for i, r := range rs {
		out[i] = d.Derive(r)
	}
	return out
}
