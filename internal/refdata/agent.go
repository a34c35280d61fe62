// Package refdata holds the read-only reference data the commission pipeline
// consults: the agent/supervisor directory and the policy ownership lookup.
package refdata

import "errors"

// ErrAgentNotFound indicates an agent key absent from the directory.
var ErrAgentNotFound = errors.New("refdata: agent not found")

// Key thresholds of the agent numbering scheme.
const (
	SpecialKeyLimit    = 999
	SupervisorKeyStart = 1800
)

// Status of an agent or supervisor account.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// Tier groups agents that share commission terms.
type Tier string

const (
	TierSpecial    Tier = "special"
	TierRegular    Tier = "regular"
	TierSupervisor Tier = "supervisor"
)

// TierOf classifies an agent key.
func TierOf(key int) Tier {
	switch {
	case key >= SupervisorKeyStart:
		return TierSupervisor
	case key < SpecialKeyLimit:
		return TierSpecial
	default:
		return TierRegular
	}
}

// IsSupervisorKey reports whether the key belongs to the supervisor range.
func IsSupervisorKey(key int) bool {
	return key >= SupervisorKeyStart
}

// Agent is one entry of the directory. Supervisors share the type and are
// distinguished by their key range.
type Agent struct {
	ID            int64  `json:"id"`
	Key           int    `json:"key"`
	Name          string `json:"name"`
	Status        Status `json:"status"`
	SupervisorKey *int   `json:"supervisor_key,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	BankAccount   string `json:"bank_account,omitempty"`
}

// Active reports whether the account is not cancelled.
func (a Agent) Active() bool {
	return a.Status != StatusCancelled
}

// IsSupervisor reports whether the account is a supervisor.
func (a Agent) IsSupervisor() bool {
	return IsSupervisorKey(a.Key)
}

// Tier returns the commission tier of the account.
func (a Agent) Tier() Tier {
	return TierOf(a.Key)
}
