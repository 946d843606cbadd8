package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hwahn/dilmon/internal/contracts"
)

// SecurityRepository implements contracts.SecurityRepository.
type SecurityRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityRepository creates a new security repository.
func NewSecurityRepository(pool *pgxpool.Pool) *SecurityRepository {
	return &SecurityRepository{pool: pool}
}

const securityColumns = `id, ticker, cik, name, sector, exchange, market_cap, tier, is_spac, created_at, updated_at`

func scanSecurity(row pgx.Row) (*contracts.Security, error) {
	var s contracts.Security
	err := row.Scan(
		&s.ID, &s.Ticker, &s.CIK, &s.Name, &s.Sector, &s.Exchange,
		&s.MarketCap, &s.Tier, &s.IsSPAC, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByTicker returns the security for a ticker, or nil when unknown.
func (r *SecurityRepository) GetByTicker(ctx context.Context, ticker string) (*contracts.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM securities WHERE ticker = $1`

	sec, err := scanSecurity(r.pool.QueryRow(ctx, query, ticker))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get security by ticker: %w", err)
	}
	return sec, nil
}

// GetByID returns the security for an id, or nil when unknown.
func (r *SecurityRepository) GetByID(ctx context.Context, id int64) (*contracts.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM securities WHERE id = $1`

	sec, err := scanSecurity(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get security by id: %w", err)
	}
	return sec, nil
}

// Upsert creates the security or refreshes its profile fields.
// Tier is deliberately left out of the update set.
func (r *SecurityRepository) Upsert(ctx context.Context, sec *contracts.Security) error {
	query := `
		INSERT INTO securities (ticker, name, sector, exchange, market_cap, tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ticker) DO UPDATE SET
			name       = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE securities.name END,
			sector     = CASE WHEN EXCLUDED.sector <> '' THEN EXCLUDED.sector ELSE securities.sector END,
			exchange   = CASE WHEN EXCLUDED.exchange <> '' THEN EXCLUDED.exchange ELSE securities.exchange END,
			market_cap = EXCLUDED.market_cap,
			updated_at = now()
		RETURNING id
	`

	tier := sec.Tier
	if tier == "" {
		tier = contracts.TierInactive
	}

	err := r.pool.QueryRow(ctx, query,
		sec.Ticker, sec.Name, sec.Sector, sec.Exchange, sec.MarketCap, tier,
	).Scan(&sec.ID)
	if err != nil {
		return fmt.Errorf("upsert security %s: %w", sec.Ticker, err)
	}
	return nil
}

// UpdateTier sets the tracking tier.
func (r *SecurityRepository) UpdateTier(ctx context.Context, id int64, tier string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE securities SET tier = $2, updated_at = now() WHERE id = $1`, id, tier)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	return nil
}

// UpdateCIK stores a resolved registry identifier.
func (r *SecurityRepository) UpdateCIK(ctx context.Context, id int64, cik string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE securities SET cik = $2, updated_at = now() WHERE id = $1`, id, cik)
	if err != nil {
		return fmt.Errorf("update cik: %w", err)
	}
	return nil
}

// MarkSPAC flags a security as a SPAC.
func (r *SecurityRepository) MarkSPAC(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE securities SET is_spac = TRUE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark spac: %w", err)
	}
	return nil
}

// ListByTiers returns all securities in the given tiers.
func (r *SecurityRepository) ListByTiers(ctx context.Context, tiers []string) ([]*contracts.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM securities WHERE tier = ANY($1) ORDER BY ticker`

	rows, err := r.pool.Query(ctx, query, tiers)
	if err != nil {
		return nil, fmt.Errorf("list securities by tiers: %w", err)
	}
	defer rows.Close()

	return collectSecurities(rows)
}

// ListByMarketCapAsc returns securities smallest market cap first.
func (r *SecurityRepository) ListByMarketCapAsc(ctx context.Context, limit int) ([]*contracts.Security, error) {
	query := `SELECT ` + securityColumns + ` FROM securities ORDER BY market_cap ASC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list securities by market cap: %w", err)
	}
	defer rows.Close()

	return collectSecurities(rows)
}

// ListInactiveWithFundamentals returns inactive securities that have
// at least one stored quarter.
func (r *SecurityRepository) ListInactiveWithFundamentals(ctx context.Context) ([]*contracts.Security, error) {
	query := `
		SELECT ` + securityColumns + `
		FROM securities
		WHERE tier = 'inactive'
		  AND id IN (SELECT DISTINCT security_id FROM quarterly_fundamentals)
		ORDER BY ticker
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list enriched inactive securities: %w", err)
	}
	defer rows.Close()

	return collectSecurities(rows)
}

// TierCounts returns the number of securities per tier.
func (r *SecurityRepository) TierCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT tier, COUNT(*) FROM securities GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("tier counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var tier string
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

func collectSecurities(rows pgx.Rows) ([]*contracts.Security, error) {
	var out []*contracts.Security
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}
