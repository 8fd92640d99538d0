package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/services/kinematics"
	"RiskKernel/internal/services/regime"
	"RiskKernel/internal/services/sizing"
	"RiskKernel/internal/services/tail"
	"RiskKernel/internal/usecase"
	xhttp "RiskKernel/pkg/http"
)

type constSignal float64

func (s constSignal) Candidate(_ context.Context, symbol string) (models.CandidateSignal, error) {
	return models.CandidateSignal{Symbol: symbol, Value: float64(s)}, nil
}

type relForecast struct{}

func (relForecast) Forecast(_ context.Context, _ string, p float64) (models.ForecastQuantiles, error) {
	return models.ForecastQuantiles{Low: p * 0.95, Median: p * 1.05, High: p * 1.15, HorizonDays: 10}, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*echo.Echo, *KernelEchoHandler, *usecase.Orchestrator) {
	t.Helper()
	c, err := regime.NewClassifier()
	require.NoError(t, err)
	s, err := sizing.NewSizer(c)
	require.NoError(t, err)
	te := tail.NewHillEstimator()
	orch := usecase.NewOrchestrator(te, c, s, relForecast{}, constSignal(0.5), func() (domsvc.StateEstimator, error) {
		return kinematics.NewEstimator()
	})
	h := NewKernelEchoHandler(nil, te, c, s, orch, nil, 0.04)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, h, orch
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestRegimeEndpoint(t *testing.T) {
	e, _, _ := newTestServer(t)

	code, env := do(t, e, http.MethodGet, "/api/v1/regime?alpha=2.5", "")
	require.Equal(t, http.StatusOK, code)
	var a models.RegimeAssessment
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, models.RegimeLevyStable, a.Regime)
	assert.InDelta(t, 0.5, a.Lambda, 1e-12)

	code, _ = do(t, e, http.MethodGet, "/api/v1/regime?alpha=-1", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAlphaEndpoint(t *testing.T) {
	e, _, _ := newTestServer(t)

	code, env := do(t, e, http.MethodPost, "/api/v1/alpha", `{"series":[0.01,-0.02,0.005]}`)
	require.Equal(t, http.StatusOK, code)
	var est models.TailEstimate
	require.NoError(t, json.Unmarshal(env.Data, &est))
	assert.Equal(t, tail.DefaultAlpha, est.Alpha)

	code, _ = do(t, e, http.MethodPost, "/api/v1/alpha", `{"series":[]}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSizeEndpoint(t *testing.T) {
	e, _, _ := newTestServer(t)

	code, env := do(t, e, http.MethodPost, "/api/v1/size", `{"low":95,"median":105,"high":115,"horizon_days":10,"alpha":3.5,"price":100}`)
	require.Equal(t, http.StatusOK, code)
	var d models.SizingDecision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.InDelta(t, 0.20, d.FinalFraction, 1e-12)

	code, env = do(t, e, http.MethodPost, "/api/v1/size", `{"low":95,"median":105,"high":90,"alpha":3.5,"price":100}`)
	assert.Equal(t, http.StatusBadRequest, code)
	var verrs []xhttp.ValidationError
	require.NoError(t, json.Unmarshal(env.Data, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, "high", verrs[0].Field)
	assert.Equal(t, "ERR_GTEFIELD", verrs[0].Code)
	assert.Equal(t, "high must not be below low", verrs[0].Message)
}

func TestStateAndDecisionEndpoints(t *testing.T) {
	e, _, orch := newTestServer(t)

	code, _ := do(t, e, http.MethodGet, "/api/v1/state?symbol=AAPL", "")
	assert.Equal(t, http.StatusNotFound, code)

	for i := 0; i < 5; i++ {
		_, err := orch.Step(context.Background(), models.Tick{Symbol: "AAPL", Timestamp: int64(i + 1), Price: 100 + float64(i)})
		require.NoError(t, err)
	}

	code, env := do(t, e, http.MethodGet, "/api/v1/state?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, code)
	var v stateView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.Equal(t, 5, v.Steps)
	assert.False(t, v.State.Cold)
	require.NotNil(t, v.Last)
	assert.Equal(t, 4, v.Last.Step)
	require.NotNil(t, v.Regime)
	require.NotNil(t, v.Veto)
	assert.Equal(t, v.Last.Vetoed, v.Veto.Vetoed)
	assert.Equal(t, v.Last.Reason, v.Veto.Reason)

	code, env = do(t, e, http.MethodGet, "/api/v1/decisions/latest?symbol=AAPL", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.DecisionRecord `json:"rows"`
		Total int64                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 1, list.Total)

	code, env = do(t, e, http.MethodGet, "/api/v1/alpha/board", "")
	require.Equal(t, http.StatusOK, code)
	var board map[string]models.RegimeAssessment
	require.NoError(t, json.Unmarshal(env.Data, &board))
	assert.Contains(t, board, "AAPL")
}

func TestRateLimit(t *testing.T) {
	e, h, _ := newTestServer(t)
	h.RateCapacity, h.RateRefill = 2, 0

	for i := 0; i < 2; i++ {
		code, _ := do(t, e, http.MethodGet, "/api/v1/regime?alpha=3", "")
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := do(t, e, http.MethodGet, "/api/v1/regime?alpha=3", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, 0, h.SweepRateLimits(time.Hour))
}
