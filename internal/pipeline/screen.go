package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/internal/external/edgar"
	"github.com/hwahn/dilmon/internal/external/fmp"
	"github.com/hwahn/dilmon/internal/screen"
)

// filingsPerSecurity caps how many filings one enrichment pulls.
const filingsPerSecurity = 40

// syncUniverse refreshes the security table from the screener: new
// tickers are created inactive, known ones get their name, sector,
// exchange and market cap refreshed. Instruments that are not common
// equity never enter the table.
func (o *Orchestrator) syncUniverse(ctx context.Context) error {
	entries, err := o.market.GetUniverse(ctx)
	if err != nil {
		return fmt.Errorf("sync universe: %w", err)
	}

	synced, skipped := 0, 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if screen.IsNonEquity(e.Ticker, e.Name) {
			skipped++
			continue
		}

		sec := &contracts.Security{
			Ticker:    e.Ticker,
			Name:      e.Name,
			Sector:    e.Sector,
			Exchange:  e.Exchange,
			MarketCap: e.MarketCap,
			Tier:      contracts.TierInactive,
		}
		if err := o.securities.Upsert(ctx, sec); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Ticker, err)
		}
		synced++
	}

	o.logger.WithFields(map[string]interface{}{
		"synced":     synced,
		"non_equity": skipped,
	}).Info("Universe synced")
	return nil
}

// screenAndEnrich walks the universe smallest market cap first,
// quick-screens each security and enriches the candidates. Small caps
// go first because that is where dilution risk concentrates and where
// an interrupted run hurts most.
//
// In resume mode, securities that are already tracked count as
// candidates without re-screening, and the market-cap prefix the
// interrupted run already walked is skipped outright: the walk is
// ascending, so every inactive security at or below the largest cap
// among promoted securities was screened out before the interruption.
func (o *Orchestrator) screenAndEnrich(ctx context.Context, opts Options, result *Result) error {
	limit := opts.MaxSecurities
	if opts.Quick && (limit == 0 || limit > quickModeLimit) {
		limit = quickModeLimit
	}

	universe, err := o.securities.ListByMarketCapAsc(ctx, limit)
	if err != nil {
		return fmt.Errorf("list universe: %w", err)
	}

	var cutoff float64
	if opts.Mode == ModeResume {
		tracked, err := o.securities.ListByTiers(ctx, contracts.ActiveTiers)
		if err != nil {
			return fmt.Errorf("list tracked: %w", err)
		}
		cutoff = resumeCutoff(tracked)
		o.logger.WithField("cutoff_market_cap", cutoff).Info("Resuming above processed prefix")
	}

	for _, sec := range universe {
		if err := ctx.Err(); err != nil {
			o.logger.Info("Run cancelled, stopping after committed work")
			return err
		}

		if opts.Mode == ModeResume && screenedBeforeInterrupt(sec, cutoff) {
			continue
		}
		result.Screened++

		if screen.ShouldExclude(sec.Ticker, sec.Name) {
			if err := o.excludeSecurity(ctx, sec); err != nil {
				o.logFailure(sec.Ticker, "exclude", err, result)
			}
			continue
		}

		if sec.Tier != contracts.TierInactive {
			result.Candidates++
			skipFilings := opts.Mode == ModeResume
			if err := o.enrichSecurity(ctx, sec, skipFilings); err != nil {
				o.logFailure(sec.Ticker, "enrich", err, result)
				continue
			}
			result.Enriched++
			continue
		}

		records, err := o.market.GetScreeningFinancials(ctx, sec.Ticker, screenQuarters)
		if err != nil {
			o.logFailure(sec.Ticker, "quick screen fetch", err, result)
			continue
		}

		if !o.isCandidate(records) {
			continue
		}
		result.Candidates++

		if err := o.enrichSecurity(ctx, sec, false); err != nil {
			o.logFailure(sec.Ticker, "enrich", err, result)
			continue
		}
		if err := o.securities.UpdateTier(ctx, sec.ID, contracts.TierMonitoring); err != nil {
			o.logFailure(sec.Ticker, "promote", err, result)
			continue
		}
		result.Enriched++

		o.logger.WithFields(map[string]interface{}{
			"ticker":     sec.Ticker,
			"market_cap": sec.MarketCap,
		}).Info("Promoted candidate to monitoring")
	}

	return nil
}

// enrichKnown re-enriches every security that is either tracked or
// was enriched before without being promoted. Used by enrich-only
// mode to refresh fundamentals and filings without a universe walk.
func (o *Orchestrator) enrichKnown(ctx context.Context, result *Result) error {
	tracked, err := o.securities.ListByTiers(ctx, contracts.ActiveTiers)
	if err != nil {
		return fmt.Errorf("list tracked: %w", err)
	}
	dormant, err := o.securities.ListInactiveWithFundamentals(ctx)
	if err != nil {
		return fmt.Errorf("list dormant: %w", err)
	}

	for _, sec := range append(tracked, dormant...) {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Candidates++

		if err := o.enrichSecurity(ctx, sec, false); err != nil {
			o.logFailure(sec.Ticker, "enrich", err, result)
			continue
		}
		if sec.Tier == contracts.TierInactive {
			if err := o.securities.UpdateTier(ctx, sec.ID, contracts.TierMonitoring); err != nil {
				o.logFailure(sec.Ticker, "promote", err, result)
				continue
			}
		}
		result.Enriched++
	}

	return nil
}

// enrichSecurity stores validated fundamentals for one security,
// resolves its registry identifier and ingests its recent filings.
// Everything here is idempotent: quarters upsert by fiscal period,
// filings insert by accession number.
func (o *Orchestrator) enrichSecurity(ctx context.Context, sec *contracts.Security, skipFilings bool) error {
	records, err := o.market.GetQuarterlyFinancials(ctx, sec.Ticker, enrichQuarters)
	if err != nil {
		return fmt.Errorf("fetch fundamentals: %w", err)
	}

	history, err := o.fundamentals.ListBySecurity(ctx, sec.ID, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	for _, rec := range records {
		if rec.FiscalPeriod == "unknown" {
			continue
		}
		cleaned := o.validator.ValidateIncoming(ctx, sec.Ticker, rec.FiscalPeriod, rec, history, sec.MarketCap)

		year, quarter := fmp.ParseFiscalPeriod(cleaned.FiscalPeriod)
		row := &contracts.QuarterlyFundamentals{
			SecurityID:    sec.ID,
			FiscalPeriod:  cleaned.FiscalPeriod,
			FiscalYear:    year,
			Quarter:       quarter,
			SharesDiluted: cleaned.SharesDiluted,
			FreeCashFlow:  cleaned.FreeCashFlow,
			SBC:           cleaned.SBC,
			Revenue:       cleaned.Revenue,
			Cash:          cleaned.Cash,
		}
		if err := o.fundamentals.Upsert(ctx, row); err != nil {
			return fmt.Errorf("upsert quarter %s: %w", cleaned.FiscalPeriod, err)
		}
	}

	cik := sec.CIK
	if cik == "" {
		resolved, ok, err := o.filings.LookupCIK(ctx, sec.Ticker)
		if err != nil {
			return fmt.Errorf("lookup CIK: %w", err)
		}
		if !ok {
			o.logger.WithField("ticker", sec.Ticker).Debug("No CIK for ticker, skipping filings")
			return nil
		}
		if err := o.securities.UpdateCIK(ctx, sec.ID, resolved); err != nil {
			return fmt.Errorf("store CIK: %w", err)
		}
		cik = resolved
	}

	if skipFilings {
		return nil
	}
	return o.ingestFilings(ctx, sec, cik)
}

// ingestFilings pulls the recent filing history and stores each
// filing with its dilution classification. Known accession numbers
// are skipped before any document fetch.
func (o *Orchestrator) ingestFilings(ctx context.Context, sec *contracts.Security, cik string) error {
	refs, err := o.filings.GetRecentFilings(ctx, cik, edgar.DefaultFilingTypes, filingsPerSecurity)
	if err != nil {
		return fmt.Errorf("fetch filings: %w", err)
	}

	inserted := 0
	for _, ref := range refs {
		known, err := o.filingRepo.Exists(ctx, ref.AccessionNumber)
		if err != nil {
			return fmt.Errorf("check filing %s: %w", ref.AccessionNumber, err)
		}
		if known {
			continue
		}

		cls := o.filings.ClassifyFiling(ctx, ref.Form, ref.DocumentURL)

		filing := &contracts.Filing{
			SecurityID:      sec.ID,
			AccessionNumber: ref.AccessionNumber,
			FilingType:      ref.Form,
			DocumentURL:     ref.DocumentURL,
			IsDilutionEvent: cls.IsDilutionEvent,
			DilutionType:    cls.DilutionType,
			OfferingAmount:  cls.OfferingAmount,
		}
		if t, err := time.Parse("2006-01-02", ref.FilingDate); err == nil {
			filing.FiledDate = &t
		}

		if err := o.filingRepo.InsertIfAbsent(ctx, filing); err != nil {
			return fmt.Errorf("insert filing %s: %w", ref.AccessionNumber, err)
		}
		inserted++
	}

	if inserted > 0 {
		o.logger.WithFields(map[string]interface{}{
			"ticker": sec.Ticker,
			"count":  inserted,
		}).Info("Ingested new filings")
	}
	return nil
}

// resumeCutoff is the largest market cap among already-promoted
// securities, the high-water mark of an interrupted ascending walk.
func resumeCutoff(tracked []*contracts.Security) float64 {
	var cutoff float64
	for _, s := range tracked {
		if s.MarketCap > cutoff {
			cutoff = s.MarketCap
		}
	}
	return cutoff
}

// screenedBeforeInterrupt reports whether an interrupted run already
// screened this security out. Tracked securities are never skipped;
// they get re-enriched.
func screenedBeforeInterrupt(sec *contracts.Security, cutoff float64) bool {
	return sec.Tier == contracts.TierInactive && sec.MarketCap <= cutoff
}

// isCandidate is the quick quantitative screen: sustained share-count
// growth or persistent cash burn over the trailing two years.
func (o *Orchestrator) isCandidate(records []contracts.QuarterRecord) bool {
	return o.quickShareCAGR(records) > o.cfg.Scoring.ShareCAGRMin ||
		o.negativeFCFCount(records) >= o.cfg.Scoring.FCFNegativeQuarters
}

// quickShareCAGR annualizes share growth across the fetched records.
// Records arrive newest first from the statement API.
func (o *Orchestrator) quickShareCAGR(records []contracts.QuarterRecord) float64 {
	var shares []float64
	for i := len(records) - 1; i >= 0; i-- { // oldest first
		if s := records[i].SharesDiluted; s != nil && *s > 0 {
			shares = append(shares, *s)
		}
	}
	if len(shares) < 2 {
		return 0
	}
	numQuarters := float64(len(shares) - 1)
	return math.Pow(shares[len(shares)-1]/shares[0], 4/numQuarters) - 1
}

func (o *Orchestrator) negativeFCFCount(records []contracts.QuarterRecord) int {
	count := 0
	for _, r := range records {
		if r.FreeCashFlow != nil && *r.FreeCashFlow < 0 {
			count++
		}
	}
	return count
}

// excludeSecurity marks a SPAC and demotes a tracked instrument that
// the filters now reject.
func (o *Orchestrator) excludeSecurity(ctx context.Context, sec *contracts.Security) error {
	if screen.IsSPACName(sec.Name) && !sec.IsSPAC {
		if err := o.securities.MarkSPAC(ctx, sec.ID); err != nil {
			return err
		}
		o.logger.WithField("ticker", sec.Ticker).Debug("Marked SPAC")
	}
	if sec.Tier != contracts.TierInactive {
		if err := o.securities.UpdateTier(ctx, sec.ID, contracts.TierInactive); err != nil {
			return err
		}
		o.logger.WithField("ticker", sec.Ticker).Info("Demoted excluded security to inactive")
	}
	return nil
}

func (o *Orchestrator) logFailure(ticker, stage string, err error, result *Result) {
	result.Failed++
	o.logger.WithError(err).WithFields(map[string]interface{}{
		"ticker": ticker,
		"stage":  stage,
	}).Warn("Security failed, continuing batch")
}
