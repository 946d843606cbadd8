// Package handlers holds the HTTP handlers for the query API.
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/hwahn/dilmon/internal/contracts"
	"github.com/hwahn/dilmon/pkg/logger"
)

// ScoreHandler serves stored scores and filings. Read-only by
// construction: it holds no reference to anything that can write.
type ScoreHandler struct {
	securities contracts.SecurityRepository
	scores     contracts.ScoreRepository
	filings    contracts.FilingRepository
	logger     *logger.Logger
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(
	securities contracts.SecurityRepository,
	scores contracts.ScoreRepository,
	filings contracts.FilingRepository,
	log *logger.Logger,
) *ScoreHandler {
	return &ScoreHandler{
		securities: securities,
		scores:     scores,
		filings:    filings,
		logger:     log,
	}
}

type scoreResponse struct {
	Ticker    string  `json:"ticker"`
	ScoreDate string  `json:"score_date"`
	Composite float64 `json:"composite"`

	ShareCAGRScore    *float64 `json:"share_cagr_score"`
	FCFBurnScore      *float64 `json:"fcf_burn_score"`
	SBCRevenueScore   *float64 `json:"sbc_revenue_score"`
	OfferingFreqScore *float64 `json:"offering_freq_score"`
	CashRunwayScore   *float64 `json:"cash_runway_score"`
	ATMActiveScore    *float64 `json:"atm_active_score"`

	ShareCAGR3Y      *float64 `json:"share_cagr_3y"`
	FCFBurnRate      *float64 `json:"fcf_burn_rate"`
	SBCRevenuePct    *float64 `json:"sbc_revenue_pct"`
	OfferingCount3Y  *int     `json:"offering_count_3y"`
	CashRunwayMonths *float64 `json:"cash_runway_months"`
	ATMProgramActive bool     `json:"atm_program_active"`

	PriceChange12M *float64 `json:"price_change_12m"`
}

type filingResponse struct {
	AccessionNumber string   `json:"accession_number"`
	FilingType      string   `json:"filing_type"`
	FiledDate       *string  `json:"filed_date"`
	DocumentURL     string   `json:"document_url"`
	IsDilutionEvent bool     `json:"is_dilution_event"`
	DilutionType    string   `json:"dilution_type,omitempty"`
	OfferingAmount  *float64 `json:"offering_amount"`
}

// GetLatestScore returns the most recent score for one security.
// GET /api/securities/{ticker}/score
func (h *ScoreHandler) GetLatestScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sec, ok := h.lookupSecurity(w, r)
	if !ok {
		return
	}

	score, err := h.scores.LatestBySecurity(ctx, sec.ID)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", sec.Ticker).Error("Failed to get latest score")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve score")
		return
	}
	if score == nil {
		respondError(w, http.StatusNotFound, "no score for security")
		return
	}

	respondJSON(w, http.StatusOK, toScoreResponse(sec.Ticker, score))
}

// GetScoreHistory returns all score rows for one security, newest
// first.
// GET /api/securities/{ticker}/scores
func (h *ScoreHandler) GetScoreHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sec, ok := h.lookupSecurity(w, r)
	if !ok {
		return
	}

	history, err := h.scores.HistoryBySecurity(ctx, sec.ID)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", sec.Ticker).Error("Failed to get score history")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve score history")
		return
	}

	out := make([]scoreResponse, 0, len(history))
	for _, s := range history {
		out = append(out, toScoreResponse(sec.Ticker, s))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetFilings returns the stored filing history for one security.
// GET /api/securities/{ticker}/filings
func (h *ScoreHandler) GetFilings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sec, ok := h.lookupSecurity(w, r)
	if !ok {
		return
	}

	filings, err := h.filings.ListBySecurity(ctx, sec.ID)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", sec.Ticker).Error("Failed to get filings")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve filings")
		return
	}

	out := make([]filingResponse, 0, len(filings))
	for _, f := range filings {
		fr := filingResponse{
			AccessionNumber: f.AccessionNumber,
			FilingType:      f.FilingType,
			DocumentURL:     f.DocumentURL,
			IsDilutionEvent: f.IsDilutionEvent,
			DilutionType:    f.DilutionType,
			OfferingAmount:  f.OfferingAmount,
		}
		if f.FiledDate != nil {
			d := f.FiledDate.Format("2006-01-02")
			fr.FiledDate = &d
		}
		out = append(out, fr)
	}
	respondJSON(w, http.StatusOK, out)
}

// GetLatestScores returns the most recent score per security, ordered
// by composite descending.
// GET /api/scores/latest
func (h *ScoreHandler) GetLatestScores(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	latest, err := h.scores.LatestAll(ctx)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest scores")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve scores")
		return
	}

	out := make([]scoreResponse, 0, len(latest))
	for _, s := range latest {
		sec, err := h.securities.GetByID(ctx, s.SecurityID)
		if err != nil || sec == nil {
			h.logger.WithField("security_id", s.SecurityID).Warn("Orphan score row")
			continue
		}
		out = append(out, toScoreResponse(sec.Ticker, s))
	}
	respondJSON(w, http.StatusOK, out)
}

// lookupSecurity resolves the {ticker} path variable. Writes the
// error response itself; callers just return on !ok.
func (h *ScoreHandler) lookupSecurity(w http.ResponseWriter, r *http.Request) (*contracts.Security, bool) {
	ticker := strings.ToUpper(mux.Vars(r)["ticker"])
	if ticker == "" {
		respondError(w, http.StatusBadRequest, "ticker is required")
		return nil, false
	}

	sec, err := h.securities.GetByTicker(r.Context(), ticker)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to look up security")
		respondError(w, http.StatusInternalServerError, "Failed to look up security")
		return nil, false
	}
	if sec == nil {
		respondError(w, http.StatusNotFound, "unknown security")
		return nil, false
	}
	return sec, true
}

func toScoreResponse(ticker string, s *contracts.DilutionScore) scoreResponse {
	return scoreResponse{
		Ticker:            ticker,
		ScoreDate:         s.ScoreDate.Format(time.RFC3339),
		Composite:         s.Composite,
		ShareCAGRScore:    s.ShareCAGRScore,
		FCFBurnScore:      s.FCFBurnScore,
		SBCRevenueScore:   s.SBCRevenueScore,
		OfferingFreqScore: s.OfferingFreqScore,
		CashRunwayScore:   s.CashRunwayScore,
		ATMActiveScore:    s.ATMActiveScore,
		ShareCAGR3Y:       s.ShareCAGR3Y,
		FCFBurnRate:       s.FCFBurnRate,
		SBCRevenuePct:     s.SBCRevenuePct,
		OfferingCount3Y:   s.OfferingCount3Y,
		CashRunwayMonths:  s.CashRunwayMonths,
		ATMProgramActive:  s.ATMProgramActive,
		PriceChange12M:    s.PriceChange12M,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
