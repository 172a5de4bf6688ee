package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/domain"
	"github.com/anjeshnu/quantfolio/internal/modules/backtest"
	"github.com/anjeshnu/quantfolio/internal/modules/blacklitterman"
	"github.com/anjeshnu/quantfolio/internal/modules/factors"
	"github.com/anjeshnu/quantfolio/internal/modules/optimization"
	"github.com/anjeshnu/quantfolio/internal/modules/risk"
	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
)

// Handlers implements the analytical API endpoints.
type Handlers struct {
	log   zerolog.Logger
	store *backtest.Store
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(log zerolog.Logger, store *backtest.Store) *Handlers {
	return &Handlers{
		log:   log.With().Str("component", "handlers").Logger(),
		store: store,
	}
}

// panelRequest is the wire form of a return panel.
type panelRequest struct {
	Dates   []string             `json:"dates"`
	Symbols []string             `json:"symbols"`
	Data    map[string][]float64 `json:"data"`
}

func (p panelRequest) panel() (timeseries.Panel, error) {
	return timeseries.New(p.Dates, p.Symbols, p.Data)
}

// EstimateExposures regresses asset returns on factor returns.
//
// POST /api/exposures
func (h *Handlers) EstimateExposures(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assets  panelRequest `json:"assets"`
		Factors panelRequest `json:"factors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	assets, err := req.Assets.panel()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	factorPanel, err := req.Factors.panel()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	model := factors.NewModel(h.log)
	set, err := model.EstimateExposures(assets, factorPanel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// covarianceRequest selects the estimation mode for one request.
type covarianceRequest struct {
	Returns panelRequest            `json:"returns"`
	Factors *panelRequest           `json:"factors,omitempty"`
	Spec    backtest.CovarianceSpec `json:"covariance"`
}

// estimate resolves the request to a covariance matrix, running the factor
// regression first when the factor method is selected.
func (cr covarianceRequest) estimate(log zerolog.Logger) (risk.Matrix, timeseries.Panel, error) {
	panel, err := cr.Returns.panel()
	if err != nil {
		return risk.Matrix{}, timeseries.Panel{}, err
	}

	cfg := risk.Config{
		Method:            risk.Method(cr.Spec.Method),
		Halflife:          cr.Spec.Halflife,
		ShrinkageOverride: cr.Spec.Shrinkage,
	}
	estimator := risk.NewEstimator(cfg, log)

	if cfg.Method == risk.MethodFactor {
		if cr.Factors == nil {
			return risk.Matrix{}, timeseries.Panel{}, &domain.SingularInputError{
				Matrix: "covariance",
				Reason: "factor method requires a factors panel",
			}
		}
		factorPanel, err := cr.Factors.panel()
		if err != nil {
			return risk.Matrix{}, timeseries.Panel{}, err
		}
		set, err := factors.NewModel(log).EstimateExposures(panel, factorPanel)
		if err != nil {
			return risk.Matrix{}, timeseries.Panel{}, err
		}
		cov, err := estimator.EstimateFromFactors(set, factorPanel)
		return cov, panel, err
	}

	cov, err := estimator.Estimate(panel)
	return cov, panel, err
}

// EstimateCovariance builds a covariance matrix from a return panel.
//
// POST /api/covariance
func (h *Handlers) EstimateCovariance(w http.ResponseWriter, r *http.Request) {
	var req covarianceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cov, _, err := req.estimate(h.log)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cov)
}

// ComputePosterior blends a prior with views.
//
// POST /api/posterior
func (h *Handlers) ComputePosterior(w http.ResponseWriter, r *http.Request) {
	var req struct {
		covarianceRequest
		Views         []blacklitterman.Spec `json:"views"`
		Tau           float64               `json:"tau,omitempty"`
		MarketWeights map[string]float64    `json:"market_weights,omitempty"`
		RiskAversion  float64               `json:"risk_aversion,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cov, panel, err := req.estimate(h.log)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views, err := blacklitterman.ParseSpecs(req.Views)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	engine := blacklitterman.NewEngine(req.Tau, h.log)
	prior, err := resolvePrior(panel, cov, req.MarketWeights, req.RiskAversion, engine)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	posterior, err := engine.ComputePosterior(prior, cov, views)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, posterior)
}

// Optimize estimates, optionally blends views, and solves for weights.
//
// POST /api/optimize
func (h *Handlers) Optimize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		covarianceRequest
		Views         []blacklitterman.Spec    `json:"views,omitempty"`
		Tau           float64                  `json:"tau,omitempty"`
		MarketWeights map[string]float64       `json:"market_weights,omitempty"`
		RiskAversion  float64                  `json:"risk_aversion,omitempty"`
		Objective     optimization.Objective   `json:"objective"`
		Constraints   optimization.Constraints `json:"constraints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cov, panel, err := req.estimate(h.log)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	engine := blacklitterman.NewEngine(req.Tau, h.log)
	mu, err := resolvePrior(panel, cov, req.MarketWeights, req.RiskAversion, engine)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if len(req.Views) > 0 {
		views, err := blacklitterman.ParseSpecs(req.Views)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		posterior, err := engine.ComputePosterior(mu, cov, views)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		mu = posterior.Returns
		cov = posterior.Covariance
	}

	result, err := optimization.NewOptimizer(h.log).Solve(mu, cov, req.Objective, req.Constraints)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RunBacktest replays a strategy and persists the run.
//
// POST /api/backtest
func (h *Handlers) RunBacktest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Returns panelRequest            `json:"returns"`
		Factors *panelRequest           `json:"factors,omitempty"`
		Config  backtest.Config         `json:"config"`
		Spec    backtest.CovarianceSpec `json:"covariance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	panel, err := req.Returns.panel()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	cfg := req.Config
	cfg.Covariance = risk.Config{
		Method:            risk.Method(req.Spec.Method),
		Halflife:          req.Spec.Halflife,
		ShrinkageOverride: req.Spec.Shrinkage,
	}

	engine := backtest.NewEngine(h.log)
	var result *backtest.RunResult
	if req.Factors != nil {
		factorPanel, perr := req.Factors.panel()
		if perr != nil {
			writeDomainError(w, perr)
			return
		}
		result, err = engine.RunWithFactors(r.Context(), panel, factorPanel, cfg)
	} else {
		result, err = engine.Run(r.Context(), panel, cfg)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.store.Save(r.Context(), result); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	attribution, err := result.Attributions(panel)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*backtest.RunResult
		Attribution []backtest.Attribution `json:"attribution"`
	}{result, attribution})
}

// RunRollingSharpe computes a trailing Sharpe ratio series for a stored
// run. Entries before the window fills are null.
//
// GET /api/backtest/runs/{runID}/sharpe?window=&periods_per_year=&risk_free=
func (h *Handlers) RunRollingSharpe(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	result, err := h.store.Get(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}

	window := backtest.DefaultRebalanceEvery
	if raw := r.URL.Query().Get("window"); raw != "" {
		if window, err = strconv.Atoi(raw); err != nil || window <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("window must be a positive integer"))
			return
		}
	}
	periodsPerYear := backtest.DefaultPeriodsPerYear
	if raw := r.URL.Query().Get("periods_per_year"); raw != "" {
		if periodsPerYear, err = strconv.Atoi(raw); err != nil || periodsPerYear <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("periods_per_year must be a positive integer"))
			return
		}
	}
	riskFree := 0.0
	if raw := r.URL.Query().Get("risk_free"); raw != "" {
		if riskFree, err = strconv.ParseFloat(raw, 64); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id": runID,
		"window": window,
		"dates":  result.Dates(),
		"values": result.RollingSharpe(window, periodsPerYear, riskFree),
	})
}

// ComputeFrontier estimates the universe and traces its efficient
// frontier.
//
// POST /api/frontier
func (h *Handlers) ComputeFrontier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		covarianceRequest
		MarketWeights map[string]float64       `json:"market_weights,omitempty"`
		RiskAversion  float64                  `json:"risk_aversion,omitempty"`
		Points        int                      `json:"points,omitempty"`
		Constraints   optimization.Constraints `json:"constraints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	cov, panel, err := req.estimate(h.log)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	engine := blacklitterman.NewEngine(0, h.log)
	mu, err := resolvePrior(panel, cov, req.MarketWeights, req.RiskAversion, engine)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	points, err := optimization.NewOptimizer(h.log).Frontier(mu, cov, req.Points, req.Constraints)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": cov.Symbols,
		"points":  points,
	})
}

// ListRuns lists stored backtest runs.
//
// GET /api/backtest/runs?strategy=&limit=
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		limit = parsed
	}

	runs, err := h.store.List(r.Context(), r.URL.Query().Get("strategy"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun loads one stored run.
//
// GET /api/backtest/runs/{runID}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	result, err := h.store.Get(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, errors.New("run not found"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DeleteRun removes one stored run.
//
// DELETE /api/backtest/runs/{runID}
func (h *Handlers) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), chi.URLParam(r, "runID")); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CompareRuns builds a side-by-side summary of stored runs.
//
// POST /api/backtest/compare
func (h *Handlers) CompareRuns(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunIDs []string `json:"run_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	results := make([]*backtest.RunResult, 0, len(req.RunIDs))
	for _, runID := range req.RunIDs {
		result, err := h.store.Get(r.Context(), runID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if result == nil {
			writeError(w, http.StatusNotFound, errors.New("run not found: "+runID))
			return
		}
		results = append(results, result)
	}
	writeJSON(w, http.StatusOK, backtest.CompareStrategies(results))
}

// resolvePrior returns implied equilibrium returns when market weights are
// given, trailing means otherwise.
func resolvePrior(panel timeseries.Panel, cov risk.Matrix, marketWeights map[string]float64, riskAversion float64, engine *blacklitterman.Engine) ([]float64, error) {
	if riskAversion <= 0 {
		riskAversion = optimization.DefaultRiskAversion
	}
	if len(marketWeights) > 0 {
		mw := make([]float64, len(cov.Symbols))
		for i, symbol := range cov.Symbols {
			mw[i] = marketWeights[symbol]
		}
		return engine.ImpliedReturns(mw, cov, riskAversion)
	}

	mu := make([]float64, len(cov.Symbols))
	for i, symbol := range cov.Symbols {
		series := panel.Series(symbol)
		total := 0.0
		for _, v := range series {
			total += v
		}
		if len(series) > 0 {
			mu[i] = total / float64(len(series))
		}
	}
	return mu, nil
}
