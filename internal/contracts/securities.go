package contracts

import "time"

// Tracking tiers. A security's tier is relative to the population
// scored in the same run, never an absolute threshold.
const (
	TierInactive   = "inactive"
	TierMonitoring = "monitoring"
	TierWatchlist  = "watchlist"
	TierCritical   = "critical"
)

// ActiveTiers lists the tiers that the pipeline scores.
var ActiveTiers = []string{TierCritical, TierWatchlist, TierMonitoring}

// Dilution event types assigned by the filing classifier.
const (
	DilutionATM              = "atm"
	DilutionATMShelf         = "atm_shelf"
	DilutionRegisteredDirect = "registered_direct"
	DilutionFollowOn         = "follow_on"
	DilutionConvertible      = "convertible"
	DilutionPIPE             = "pipe"
)

// Security represents one tracked equity. Ticker is the unique key;
// market cap is refreshed on every universe sync.
type Security struct {
	ID          int64
	Ticker      string
	CIK         string // zero-padded registry identifier, empty if unresolved
	Name        string
	Sector      string
	Exchange    string
	MarketCap   float64
	Tier        string
	IsSPAC      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// QuarterlyFundamentals is one stored quarter for a security, unique
// per (security, fiscal period). Every numeric field is independently
// nullable because upstream statements routinely omit line items.
type QuarterlyFundamentals struct {
	ID            int64
	SecurityID    int64
	FiscalPeriod  string // "2024-Q3"
	FiscalYear    int
	Quarter       int
	SharesDiluted *float64
	FreeCashFlow  *float64
	SBC           *float64
	Revenue       *float64
	Cash          *float64
}

// QuarterRecord is one merged quarterly record as it arrives from the
// market data API, before validation and persistence.
type QuarterRecord struct {
	Date          string // statement date, "YYYY-MM-DD"
	FiscalPeriod  string // calendar-quarter bucketed, "YYYY-Qn"
	SharesDiluted *float64
	FreeCashFlow  *float64
	SBC           *float64
	Revenue       *float64
	Cash          *float64
}

// Filing is one regulatory filing, unique by accession number.
// Rows are inserted once and never updated; re-ingesting the same
// accession number is a no-op.
type Filing struct {
	ID              int64
	SecurityID      int64
	AccessionNumber string
	FilingType      string
	FiledDate       *time.Time
	DocumentURL     string
	IsDilutionEvent bool
	DilutionType    string // empty when not a dilution event
	OfferingAmount  *float64
}

// DilutionScore is one scoring run's result for a security.
// Append-only: every run inserts a new row, history is never rewritten.
type DilutionScore struct {
	ID         int64
	SecurityID int64
	ScoreDate  time.Time

	Composite float64

	// Sub-scores, 0-100, nil when uncomputable
	ShareCAGRScore    *float64
	FCFBurnScore      *float64
	SBCRevenueScore   *float64
	OfferingFreqScore *float64
	CashRunwayScore   *float64
	ATMActiveScore    *float64

	// Underlying metrics
	ShareCAGR3Y      *float64
	FCFBurnRate      *float64
	SBCRevenuePct    *float64
	OfferingCount3Y  *int
	CashRunwayMonths *float64
	ATMProgramActive bool

	// Trailing 12-month split-adjusted return. Carried forward from
	// the previous score row unless a fresh price fetch ran.
	PriceChange12M *float64
}
