package refdata

import (
	"fmt"
	"sort"
)

// Snapshot is an immutable view of the directory and policy lookup, loaded once
// per run and passed explicitly to the components that need it.
type Snapshot struct {
	agents      map[int]Agent
	byID        map[int64]Agent
	policies    map[string]int
	subordinate map[int][]int
}

// NewSnapshot indexes agents and the policy -> agent key map.
func NewSnapshot(agents []Agent, policies map[string]int) *Snapshot {
	s := &Snapshot{
		agents:      make(map[int]Agent, len(agents)),
		byID:        make(map[int64]Agent, len(agents)),
		policies:    make(map[string]int, len(policies)),
		subordinate: make(map[int][]int),
	}
	for _, a := range agents {
		s.agents[a.Key] = a
		if a.ID != 0 {
			s.byID[a.ID] = a
		}
		if a.SupervisorKey != nil {
			s.subordinate[*a.SupervisorKey] = append(s.subordinate[*a.SupervisorKey], a.Key)
		}
	}
	for policy, key := range policies {
		s.policies[policy] = key
	}
	for _, keys := range s.subordinate {
		sort.Ints(keys)
	}
	return s
}

// ResolveAgent returns the agent key owning the policy.
func (s *Snapshot) ResolveAgent(policyNumber string) (int, bool) {
	if s == nil {
		return 0, false
	}
	key, ok := s.policies[policyNumber]
	return key, ok
}

// PolicyCount returns the number of known policies.
func (s *Snapshot) PolicyCount() int {
	if s == nil {
		return 0
	}
	return len(s.policies)
}

// Agent looks up an account by key.
func (s *Snapshot) Agent(key int) (Agent, error) {
	if s != nil {
		if a, ok := s.agents[key]; ok {
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("%w: key %d", ErrAgentNotFound, key)
}

// AgentByID looks up an account by its database id.
func (s *Snapshot) AgentByID(id int64) (Agent, error) {
	if s != nil {
		if a, ok := s.byID[id]; ok {
			return a, nil
		}
	}
	return Agent{}, fmt.Errorf("%w: id %d", ErrAgentNotFound, id)
}

// SupervisorOf returns the supervisor assigned to the agent, if any.
func (s *Snapshot) SupervisorOf(agentKey int) (Agent, bool) {
	if s == nil {
		return Agent{}, false
	}
	a, ok := s.agents[agentKey]
	if !ok || a.SupervisorKey == nil {
		return Agent{}, false
	}
	sup, ok := s.agents[*a.SupervisorKey]
	return sup, ok
}

// Subordinates returns the keys of agents assigned to the supervisor, ascending.
func (s *Snapshot) Subordinates(supervisorKey int) []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s.subordinate[supervisorKey]...)
}

// Agents returns every account ordered by key.
func (s *Snapshot) Agents() []Agent {
	if s == nil {
		return nil
	}
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Policies returns a copy of the policy lookup.
func (s *Snapshot) Policies() map[string]int {
	out := make(map[string]int)
	if s == nil {
		return out
	}
	for k, v := range s.policies {
		out[k] = v
	}
	return out
}
