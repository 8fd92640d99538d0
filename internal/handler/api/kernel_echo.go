package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	models "RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/service/metrics"
	"RiskKernel/internal/service/ratelimit"
	"RiskKernel/internal/usecase"
	xhttp "RiskKernel/pkg/http"
	xlogger "RiskKernel/pkg/logger"
	xutil "RiskKernel/pkg/util"
)

// KernelEchoHandler exposes the kernel's pure operations and the live session
// state over HTTP.
type KernelEchoHandler struct {
	logger     *xlogger.Logger
	tail       domsvc.TailEstimator
	classifier domsvc.RegimeClassifier
	sizer      domsvc.PositionSizer
	orch       *usecase.Orchestrator
	decisions  domrepo.DecisionStore
	rl         *ratelimit.Limiter
	riskFree   float64

	// RateCapacity and RateRefill bound requests per client and endpoint.
	RateCapacity float64
	RateRefill   float64
}

func NewKernelEchoHandler(
	logger *xlogger.Logger,
	tail domsvc.TailEstimator,
	classifier domsvc.RegimeClassifier,
	sizer domsvc.PositionSizer,
	orch *usecase.Orchestrator,
	decisions domrepo.DecisionStore,
	riskFree float64,
) *KernelEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &KernelEchoHandler{
		logger:       logger,
		tail:         tail,
		classifier:   classifier,
		sizer:        sizer,
		orch:         orch,
		decisions:    decisions,
		rl:           ratelimit.New(),
		riskFree:     riskFree,
		RateCapacity: 20,
		RateRefill:   10,
	}
}

func (h *KernelEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1", h.observe)
	g.POST("/alpha", h.Alpha)
	g.GET("/regime", h.Regime)
	g.POST("/size", h.Size)
	g.GET("/state", h.State)
	g.GET("/decisions/latest", h.LatestDecisions)
	g.GET("/alpha/board", h.AlphaBoard)
}

// observe records latency and errors per route and applies the rate limit.
func (h *KernelEchoHandler) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		endpoint := c.Path()
		defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

		if !h.rl.Allow(c.RealIP()+":"+endpoint, h.RateCapacity, h.RateRefill) {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
			h.logger.Warn("kernel api rate limited", xlogger.String("endpoint", endpoint), xlogger.String("remote", c.RealIP()))
			return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
		}
		err := next(c)
		if err != nil || c.Response().Status >= http.StatusBadRequest {
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
		}
		return err
	}
}

// Alpha estimates the tail exponent of a posted return series.
func (h *KernelEchoHandler) Alpha(c echo.Context) error {
	req := &models.AlphaRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.tail.Estimate(req.Series))
}

// Regime classifies a tail exponent.
func (h *KernelEchoHandler) Regime(c echo.Context) error {
	req := &models.RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=3600")
	return xhttp.SuccessResponse(c, h.classifier.Classify(req.Alpha))
}

// Size runs the position sizer on a posted forecast.
func (h *KernelEchoHandler) Size(c echo.Context) error {
	req := &models.SizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rf := h.riskFree
	if req.RiskFreeRate != nil {
		rf = *req.RiskFreeRate
	}
	fc := models.ForecastQuantiles{Low: req.Low, Median: req.Median, High: req.High, HorizonDays: req.HorizonDays}
	res, err := h.sizer.Size(fc, req.Alpha, req.Price, rf)
	if err != nil {
		if ae := kernelError(err); ae != nil {
			return xhttp.AppErrorResponse(c, ae)
		}
		h.logger.Error("size error", xlogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	return xhttp.SuccessResponse(c, res)
}

type stateView struct {
	Symbol string                   `json:"symbol"`
	Steps  int                      `json:"steps"`
	State  models.StateEstimate     `json:"state"`
	Regime *models.RegimeAssessment `json:"regime,omitempty"`
	Last   *models.DecisionRecord   `json:"last,omitempty"`
	Veto   *models.VetoDecision     `json:"veto,omitempty"`
}

// State returns a symbol's kinematic state, regime and last decision.
func (h *KernelEchoHandler) State(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	s, ok := h.orch.Session(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no session for %s", req.Symbol))
	}
	v := stateView{Symbol: req.Symbol, Steps: s.Steps(), State: s.State()}
	if a, ok := s.Alpha().Load(); ok {
		v.Regime = &a
	}
	if last, ok := s.Last(); ok {
		v.Last = &last
		gate := last.Veto()
		v.Veto = &gate
	}
	return xhttp.SuccessResponse(c, v)
}

type latestRequest struct {
	Symbol string `query:"symbol" validate:"required"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=1000"`
	Hours  int    `query:"hours" default:"24" validate:"gte=1,lte=720"`
	// To ends the window; RFC3339 or unix seconds, defaults to now.
	To string `query:"to"`
}

// LatestDecisions lists recent decisions from the audit store, or the session's
// last decision when no store is configured.
func (h *KernelEchoHandler) LatestDecisions(c echo.Context) error {
	req := &latestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if h.decisions != nil {
		to := xutil.ParseTimeDefault(req.To, time.Now().UTC())
		rows, err := h.decisions.Query(c.Request().Context(), req.Symbol, to.Add(-time.Duration(req.Hours)*time.Hour), to, req.Limit)
		if err != nil {
			h.logger.Error("decision query error", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
			return xhttp.InternalServerErrorResponse(c)
		}
		return xhttp.ListResponse(c, rows, int64(len(rows)))
	}
	rows := []models.DecisionRecord{}
	if s, ok := h.orch.Session(req.Symbol); ok {
		if last, ok := s.Last(); ok {
			rows = append(rows, last)
		}
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// AlphaBoard returns the latest regime per tracked symbol.
func (h *KernelEchoHandler) AlphaBoard(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.orch.Board().Snapshot())
}

var _ xhttp.Handler = (*KernelEchoHandler)(nil)

// SweepRateLimits forgets clients idle for longer than idle.
func (h *KernelEchoHandler) SweepRateLimits(idle time.Duration) int {
	return h.rl.Sweep(idle)
}
