package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promotoria/comisiones/internal/platform/db"
)

// Repository persists receipts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
}

// NewRepository constructs a Repository backed by the pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

const insertReceipt = `
INSERT INTO receipts (
    receipt_key, upload_run_id, grp, agent_key, policy_number, receipt_number, contractor,
    transaction_code, payment_form, currency, premium_fraction, fixed_surcharge, combined_amount,
    first_year_commission, variable_leveling,
    promoter_commission_pct, promoter_commission_amount,
    agent_commission_pct, agent_commission_amount,
    supervisor_commission_pct, supervisor_commission_amount,
    movement_date, policy_start_date, policy_end_date, vigency_year
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25)
ON CONFLICT (receipt_key) DO NOTHING`

// CreateReceipts inserts a batch atomically and returns how many rows were
// actually created. Receipts already on file are skipped, so re-uploading a
// chunk never duplicates records.
func (r *Repository) CreateReceipts(ctx context.Context, runID uuid.UUID, batch []Receipt) (int, error) {
	if r == nil || r.pool == nil {
		return 0, fmt.Errorf("receipts: repository not initialised")
	}
	if len(batch) == 0 {
		return 0, nil
	}
	created := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for _, rec := range batch {
			b.Queue(insertReceipt,
				rec.Key(), runID, rec.Group, rec.AgentKey, rec.PolicyNumber, rec.ReceiptNumber, rec.Contractor,
				rec.TransactionCode, rec.PaymentForm, rec.Currency, rec.PremiumFraction, rec.FixedSurcharge, rec.CombinedAmount,
				rec.FirstYearCommission, rec.VariableLeveling,
				rec.PromoterCommissionPct, rec.PromoterCommissionAmount,
				rec.AgentCommissionPct, rec.AgentCommissionAmount,
				rec.SupervisorCommissionPct, rec.SupervisorCommissionAmount,
				dateParam(rec.MovementDate), dateParam(rec.PolicyStartDate), dateParam(rec.PolicyEndDate), rec.VigencyYear,
			)
		}
		results := tx.SendBatch(ctx, b)
		for range batch {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("receipts: insert: %w", err)
			}
			created += int(tag.RowsAffected())
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

const selectReceipts = `
SELECT id, grp, agent_key, policy_number, receipt_number, contractor, transaction_code, payment_form, currency,
       premium_fraction::text, fixed_surcharge::text, combined_amount::text,
       first_year_commission::text, variable_leveling::text,
       promoter_commission_pct::text, promoter_commission_amount::text,
       agent_commission_pct::text, agent_commission_amount::text,
       supervisor_commission_pct::text, supervisor_commission_amount::text,
       movement_date, policy_start_date, policy_end_date, vigency_year
FROM receipts`

// ListByMovementMonth returns the receipts whose movement date falls in the
// month, ordered by movement date then insertion order.
func (r *Repository) ListByMovementMonth(ctx context.Context, year int, month time.Month) ([]Receipt, error) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	rows, err := r.db.Query(ctx, selectReceipts+`
WHERE movement_date >= $1 AND movement_date < $2
ORDER BY movement_date, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("receipts: list month: %w", err)
	}
	return collectReceipts(rows)
}

func collectReceipts(rows pgx.Rows) ([]Receipt, error) {
	defer rows.Close()
	var out []Receipt
	for rows.Next() {
		var (
			rec                     Receipt
			movement, start, finish pgtype.Date
		)
		if err := rows.Scan(
			&rec.ID, &rec.Group, &rec.AgentKey, &rec.PolicyNumber, &rec.ReceiptNumber, &rec.Contractor,
			&rec.TransactionCode, &rec.PaymentForm, &rec.Currency,
			&rec.PremiumFraction, &rec.FixedSurcharge, &rec.CombinedAmount,
			&rec.FirstYearCommission, &rec.VariableLeveling,
			&rec.PromoterCommissionPct, &rec.PromoterCommissionAmount,
			&rec.AgentCommissionPct, &rec.AgentCommissionAmount,
			&rec.SupervisorCommissionPct, &rec.SupervisorCommissionAmount,
			&movement, &start, &finish, &rec.VigencyYear,
		); err != nil {
			return nil, fmt.Errorf("receipts: scan: %w", err)
		}
		rec.MovementDate = dateValue(movement)
		rec.PolicyStartDate = dateValue(start)
		rec.PolicyEndDate = dateValue(finish)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func dateParam(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: t, Valid: true}
}

func dateValue(d pgtype.Date) time.Time {
	if !d.Valid {
		return time.Time{}
	}
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}
