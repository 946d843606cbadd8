package contracts

import "context"

// Repository interfaces are defined here and implemented in
// internal/store. The pipeline depends only on these.

// SecurityRepository manages the tracked-security table.
type SecurityRepository interface {
	GetByTicker(ctx context.Context, ticker string) (*Security, error)
	GetByID(ctx context.Context, id int64) (*Security, error)
	// Upsert creates the security or refreshes name/sector/exchange/
	// market cap on an existing row. Tier is never touched here; only
	// the pipeline mutates it.
	Upsert(ctx context.Context, sec *Security) error
	UpdateTier(ctx context.Context, id int64, tier string) error
	UpdateCIK(ctx context.Context, id int64, cik string) error
	MarkSPAC(ctx context.Context, id int64) error
	ListByTiers(ctx context.Context, tiers []string) ([]*Security, error)
	// ListByMarketCapAsc returns securities ordered smallest cap
	// first, capped at limit (0 = no cap).
	ListByMarketCapAsc(ctx context.Context, limit int) ([]*Security, error)
	// ListInactiveWithFundamentals returns inactive securities that
	// already have stored quarters (enriched but never promoted).
	ListInactiveWithFundamentals(ctx context.Context) ([]*Security, error)
	TierCounts(ctx context.Context) (map[string]int, error)
}

// FundamentalsRepository manages stored quarterly fundamentals.
type FundamentalsRepository interface {
	// ListBySecurity returns up to limit quarters ordered oldest to
	// newest by fiscal period (0 = all).
	ListBySecurity(ctx context.Context, securityID int64, limit int) ([]*QuarterlyFundamentals, error)
	// Upsert inserts the quarter or updates the existing row for the
	// same (security, fiscal period). Rows are never deleted.
	Upsert(ctx context.Context, f *QuarterlyFundamentals) error
	// UpdateField overwrites a single numeric field on a stored row
	// (used by the retrospective audit).
	UpdateField(ctx context.Context, rowID int64, field string, value *float64) error
}

// FilingRepository manages filings. Accession number is the
// idempotency key: inserting a duplicate is a silent no-op.
type FilingRepository interface {
	ListBySecurity(ctx context.Context, securityID int64) ([]*Filing, error)
	InsertIfAbsent(ctx context.Context, f *Filing) error
	Exists(ctx context.Context, accessionNumber string) (bool, error)
}

// ScoreRepository manages dilution scores. Insert-only history.
type ScoreRepository interface {
	Insert(ctx context.Context, s *DilutionScore) error
	LatestBySecurity(ctx context.Context, securityID int64) (*DilutionScore, error)
	HistoryBySecurity(ctx context.Context, securityID int64) ([]*DilutionScore, error)
	// UpdatePriceChange sets the trailing return on an existing score
	// row; the one mutation scores allow, because the price fetch is
	// decoupled from the rescore path.
	UpdatePriceChange(ctx context.Context, scoreID int64, priceChange float64) error
	// LatestAll returns the most recent score row per security.
	LatestAll(ctx context.Context) ([]*DilutionScore, error)
}
