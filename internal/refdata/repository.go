package refdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the directory tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAgents returns every agent and supervisor.
func (r *Repository) ListAgents(ctx context.Context) ([]Agent, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, agent_key, name, status, supervisor_key, bank_name, bank_account
FROM agents
ORDER BY agent_key`)
	if err != nil {
		return nil, fmt.Errorf("refdata: list agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		var a Agent
		var status string
		if err := rows.Scan(&a.ID, &a.Key, &a.Name, &status, &a.SupervisorKey, &a.BankName, &a.BankAccount); err != nil {
			return nil, fmt.Errorf("refdata: scan agent: %w", err)
		}
		a.Status = Status(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListPolicies returns the policy number -> owning agent key lookup.
func (r *Repository) ListPolicies(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT policy_number, agent_key FROM policies`)
	if err != nil {
		return nil, fmt.Errorf("refdata: list policies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var policy string
		var key int
		if err := rows.Scan(&policy, &key); err != nil {
			return nil, fmt.Errorf("refdata: scan policy: %w", err)
		}
		out[policy] = key
	}
	return out, rows.Err()
}
