package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hwahn/dilmon/internal/contracts"
)

// FundamentalsRepository implements contracts.FundamentalsRepository.
type FundamentalsRepository struct {
	pool *pgxpool.Pool
}

// NewFundamentalsRepository creates a new fundamentals repository.
func NewFundamentalsRepository(pool *pgxpool.Pool) *FundamentalsRepository {
	return &FundamentalsRepository{pool: pool}
}

// allowed audit-corrected columns; UpdateField rejects anything else
// so a bad caller can never inject a column name.
var fundamentalsFields = map[string]bool{
	"shares_diluted": true,
	"free_cash_flow": true,
	"sbc":            true,
	"revenue":        true,
	"cash":           true,
}

// ListBySecurity returns quarters ordered oldest to newest by fiscal
// period. The "YYYY-Qn" format sorts correctly as text.
func (r *FundamentalsRepository) ListBySecurity(ctx context.Context, securityID int64, limit int) ([]*contracts.QuarterlyFundamentals, error) {
	query := `
		SELECT id, security_id, fiscal_period, COALESCE(fiscal_year, 0), COALESCE(quarter, 0),
		       shares_diluted, free_cash_flow, sbc, revenue, cash
		FROM quarterly_fundamentals
		WHERE security_id = $1
		ORDER BY fiscal_period ASC
	`
	args := []interface{}{securityID}
	if limit > 0 {
		// keep the most recent `limit` quarters, still oldest first
		query = `
			SELECT id, security_id, fiscal_period, COALESCE(fiscal_year, 0), COALESCE(quarter, 0),
			       shares_diluted, free_cash_flow, sbc, revenue, cash
			FROM (
				SELECT * FROM quarterly_fundamentals
				WHERE security_id = $1
				ORDER BY fiscal_period DESC
				LIMIT $2
			) recent
			ORDER BY fiscal_period ASC
		`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list fundamentals: %w", err)
	}
	defer rows.Close()

	var out []*contracts.QuarterlyFundamentals
	for rows.Next() {
		var f contracts.QuarterlyFundamentals
		err := rows.Scan(
			&f.ID, &f.SecurityID, &f.FiscalPeriod, &f.FiscalYear, &f.Quarter,
			&f.SharesDiluted, &f.FreeCashFlow, &f.SBC, &f.Revenue, &f.Cash,
		)
		if err != nil {
			return nil, fmt.Errorf("scan fundamentals: %w", err)
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// Upsert inserts or updates the row for (security, fiscal period).
func (r *FundamentalsRepository) Upsert(ctx context.Context, f *contracts.QuarterlyFundamentals) error {
	query := `
		INSERT INTO quarterly_fundamentals (
			security_id, fiscal_period, fiscal_year, quarter,
			shares_diluted, free_cash_flow, sbc, revenue, cash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (security_id, fiscal_period) DO UPDATE SET
			shares_diluted = EXCLUDED.shares_diluted,
			free_cash_flow = EXCLUDED.free_cash_flow,
			sbc            = EXCLUDED.sbc,
			revenue        = EXCLUDED.revenue,
			cash           = EXCLUDED.cash
	`

	_, err := r.pool.Exec(ctx, query,
		f.SecurityID, f.FiscalPeriod, f.FiscalYear, f.Quarter,
		f.SharesDiluted, f.FreeCashFlow, f.SBC, f.Revenue, f.Cash,
	)
	if err != nil {
		return fmt.Errorf("upsert fundamentals %s: %w", f.FiscalPeriod, err)
	}
	return nil
}

// UpdateField overwrites a single numeric column on a stored row.
func (r *FundamentalsRepository) UpdateField(ctx context.Context, rowID int64, field string, value *float64) error {
	if !fundamentalsFields[field] {
		return fmt.Errorf("unknown fundamentals field %q", field)
	}

	query := fmt.Sprintf(`UPDATE quarterly_fundamentals SET %s = $2 WHERE id = $1`, field)
	_, err := r.pool.Exec(ctx, query, rowID, value)
	if err != nil {
		return fmt.Errorf("update fundamentals field %s: %w", field, err)
	}
	return nil
}
