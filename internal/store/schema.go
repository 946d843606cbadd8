package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureSchema creates the tables the pipeline needs if they do not
// exist yet. Safe to call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS securities (
			id          BIGSERIAL PRIMARY KEY,
			ticker      TEXT NOT NULL UNIQUE,
			cik         TEXT NOT NULL DEFAULT '',
			name        TEXT NOT NULL,
			sector      TEXT NOT NULL DEFAULT '',
			exchange    TEXT NOT NULL DEFAULT '',
			market_cap  DOUBLE PRECISION NOT NULL DEFAULT 0,
			tier        TEXT NOT NULL DEFAULT 'inactive',
			is_spac     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_securities_tier ON securities (tier)`,
		`CREATE TABLE IF NOT EXISTS quarterly_fundamentals (
			id             BIGSERIAL PRIMARY KEY,
			security_id    BIGINT NOT NULL REFERENCES securities(id) ON DELETE CASCADE,
			fiscal_period  TEXT NOT NULL,
			fiscal_year    INT,
			quarter        INT,
			shares_diluted DOUBLE PRECISION,
			free_cash_flow DOUBLE PRECISION,
			sbc            DOUBLE PRECISION,
			revenue        DOUBLE PRECISION,
			cash           DOUBLE PRECISION,
			UNIQUE (security_id, fiscal_period)
		)`,
		`CREATE TABLE IF NOT EXISTS filings (
			id               BIGSERIAL PRIMARY KEY,
			security_id      BIGINT NOT NULL REFERENCES securities(id) ON DELETE CASCADE,
			accession_number TEXT NOT NULL UNIQUE,
			filing_type      TEXT NOT NULL,
			filed_date       DATE,
			document_url     TEXT NOT NULL DEFAULT '',
			is_dilution_event BOOLEAN NOT NULL DEFAULT FALSE,
			dilution_type    TEXT NOT NULL DEFAULT '',
			offering_amount  DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_filings_security ON filings (security_id)`,
		`CREATE TABLE IF NOT EXISTS dilution_scores (
			id                  BIGSERIAL PRIMARY KEY,
			security_id         BIGINT NOT NULL REFERENCES securities(id) ON DELETE CASCADE,
			score_date          DATE NOT NULL DEFAULT CURRENT_DATE,
			composite_score     DOUBLE PRECISION NOT NULL,
			share_cagr_score    DOUBLE PRECISION,
			fcf_burn_score      DOUBLE PRECISION,
			sbc_revenue_score   DOUBLE PRECISION,
			offering_freq_score DOUBLE PRECISION,
			cash_runway_score   DOUBLE PRECISION,
			atm_active_score    DOUBLE PRECISION,
			share_cagr_3y       DOUBLE PRECISION,
			fcf_burn_rate       DOUBLE PRECISION,
			sbc_revenue_pct     DOUBLE PRECISION,
			offering_count_3y   INT,
			cash_runway_months  DOUBLE PRECISION,
			atm_program_active  BOOLEAN NOT NULL DEFAULT FALSE,
			price_change_12m    DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_security ON dilution_scores (security_id)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
