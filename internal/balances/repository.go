package balances

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promotoria/comisiones/internal/platform/db"
)

// Repository persists pending balances in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const balanceColumns = `b.id, b.agent_id, a.agent_key, b.effective_date, b.amount::text, b.observations, b.created_at`

// LatestAsOf returns the most recent balance effective on or before asOf.
func (r *Repository) LatestAsOf(ctx context.Context, agentID int64, asOf time.Time) (PendingBalance, bool, error) {
	row := r.pool.QueryRow(ctx, `
SELECT `+balanceColumns+`
FROM pending_balances b
JOIN agents a ON a.id = b.agent_id
WHERE b.agent_id = $1 AND b.effective_date <= $2
ORDER BY b.effective_date DESC, b.id DESC
LIMIT 1`, agentID, asOf)
	pb, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PendingBalance{}, false, nil
	}
	if err != nil {
		return PendingBalance{}, false, fmt.Errorf("balances: latest: %w", err)
	}
	return pb, true, nil
}

// Exists reports whether a balance is already recorded for the agent and date.
func (r *Repository) Exists(ctx context.Context, agentID int64, effectiveDate time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (SELECT 1 FROM pending_balances WHERE agent_id = $1 AND effective_date = $2)`,
		agentID, effectiveDate).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("balances: exists: %w", err)
	}
	return exists, nil
}

// Create inserts a balance. A concurrent insert for the same agent and date
// surfaces as ErrDuplicateBalance.
func (r *Repository) Create(ctx context.Context, pb PendingBalance) (PendingBalance, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO pending_balances (agent_id, effective_date, amount, observations)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`,
		pb.AgentID, pb.EffectiveDate, pb.Amount, pb.Observations).Scan(&pb.ID, &pb.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PendingBalance{}, ErrDuplicateBalance
		}
		return PendingBalance{}, fmt.Errorf("balances: create: %w", err)
	}
	return pb, nil
}

// NegativeAsOf lists agents whose latest balance on or before asOf is a debt.
func (r *Repository) NegativeAsOf(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
SELECT agent_id FROM (
    SELECT DISTINCT ON (agent_id) agent_id, amount
    FROM pending_balances
    WHERE effective_date <= $1
    ORDER BY agent_id, effective_date DESC, id DESC
) latest
WHERE amount < 0
ORDER BY agent_id`, asOf)
	if err != nil {
		return nil, fmt.Errorf("balances: negative: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("balances: negative: %w", err)
	}
	return ids, nil
}

// History returns every balance of the agent ordered by effective date.
func (r *Repository) History(ctx context.Context, agentID int64) ([]PendingBalance, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+balanceColumns+`
FROM pending_balances b
JOIN agents a ON a.id = b.agent_id
WHERE b.agent_id = $1
ORDER BY b.effective_date, b.id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("balances: history: %w", err)
	}
	defer rows.Close()

	var out []PendingBalance
	for rows.Next() {
		pb, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("balances: scan: %w", err)
		}
		out = append(out, pb)
	}
	return out, rows.Err()
}

func scanBalance(row pgx.Row) (PendingBalance, error) {
	var pb PendingBalance
	err := row.Scan(&pb.ID, &pb.AgentID, &pb.AgentKey, &pb.EffectiveDate, &pb.Amount, &pb.Observations, &pb.CreatedAt)
	return pb, err
}
