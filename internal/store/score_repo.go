package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hwahn/dilmon/internal/contracts"
)

// ScoreRepository implements contracts.ScoreRepository.
type ScoreRepository struct {
	pool *pgxpool.Pool
}

// NewScoreRepository creates a new score repository.
func NewScoreRepository(pool *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{pool: pool}
}

const scoreColumns = `
	id, security_id, score_date, composite_score,
	share_cagr_score, fcf_burn_score, sbc_revenue_score,
	offering_freq_score, cash_runway_score, atm_active_score,
	share_cagr_3y, fcf_burn_rate, sbc_revenue_pct,
	offering_count_3y, cash_runway_months, atm_program_active,
	price_change_12m`

func scanScore(row pgx.Row) (*contracts.DilutionScore, error) {
	var s contracts.DilutionScore
	err := row.Scan(
		&s.ID, &s.SecurityID, &s.ScoreDate, &s.Composite,
		&s.ShareCAGRScore, &s.FCFBurnScore, &s.SBCRevenueScore,
		&s.OfferingFreqScore, &s.CashRunwayScore, &s.ATMActiveScore,
		&s.ShareCAGR3Y, &s.FCFBurnRate, &s.SBCRevenuePct,
		&s.OfferingCount3Y, &s.CashRunwayMonths, &s.ATMProgramActive,
		&s.PriceChange12M,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Insert appends a new score row.
func (r *ScoreRepository) Insert(ctx context.Context, s *contracts.DilutionScore) error {
	query := `
		INSERT INTO dilution_scores (
			security_id, score_date, composite_score,
			share_cagr_score, fcf_burn_score, sbc_revenue_score,
			offering_freq_score, cash_runway_score, atm_active_score,
			share_cagr_3y, fcf_burn_rate, sbc_revenue_pct,
			offering_count_3y, cash_runway_months, atm_program_active,
			price_change_12m
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		s.SecurityID, s.ScoreDate, s.Composite,
		s.ShareCAGRScore, s.FCFBurnScore, s.SBCRevenueScore,
		s.OfferingFreqScore, s.CashRunwayScore, s.ATMActiveScore,
		s.ShareCAGR3Y, s.FCFBurnRate, s.SBCRevenuePct,
		s.OfferingCount3Y, s.CashRunwayMonths, s.ATMProgramActive,
		s.PriceChange12M,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

// LatestBySecurity returns the most recent score row, or nil if the
// security has never been scored.
func (r *ScoreRepository) LatestBySecurity(ctx context.Context, securityID int64) (*contracts.DilutionScore, error) {
	query := `SELECT ` + scoreColumns + `
		FROM dilution_scores WHERE security_id = $1 ORDER BY id DESC LIMIT 1`

	s, err := scanScore(r.pool.QueryRow(ctx, query, securityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest score: %w", err)
	}
	return s, nil
}

// HistoryBySecurity returns all score rows, newest first.
func (r *ScoreRepository) HistoryBySecurity(ctx context.Context, securityID int64) ([]*contracts.DilutionScore, error) {
	query := `SELECT ` + scoreColumns + `
		FROM dilution_scores WHERE security_id = $1 ORDER BY id DESC`

	rows, err := r.pool.Query(ctx, query, securityID)
	if err != nil {
		return nil, fmt.Errorf("score history: %w", err)
	}
	defer rows.Close()

	return collectScores(rows)
}

// UpdatePriceChange sets the trailing 12-month return on a score row.
func (r *ScoreRepository) UpdatePriceChange(ctx context.Context, scoreID int64, priceChange float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE dilution_scores SET price_change_12m = $2 WHERE id = $1`, scoreID, priceChange)
	if err != nil {
		return fmt.Errorf("update price change: %w", err)
	}
	return nil
}

// LatestAll returns the most recent score row per security, highest
// composite first.
func (r *ScoreRepository) LatestAll(ctx context.Context) ([]*contracts.DilutionScore, error) {
	query := `SELECT ` + scoreColumns + `
		FROM dilution_scores
		WHERE id IN (
			SELECT MAX(id) FROM dilution_scores GROUP BY security_id
		)
		ORDER BY composite_score DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("latest scores: %w", err)
	}
	defer rows.Close()

	return collectScores(rows)
}

func collectScores(rows pgx.Rows) ([]*contracts.DilutionScore, error) {
	var out []*contracts.DilutionScore
	for rows.Next() {
		s, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
