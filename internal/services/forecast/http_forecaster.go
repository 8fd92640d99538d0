// Package forecast provides ForecastProvider implementations: a remote quantile
// service guarded by a circuit breaker, and a local realized-volatility band.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
	xhttp "RiskKernel/pkg/http"
)

const quantilesPath = "/forecast/quantiles"

// HTTPConfig configures the remote forecaster.
type HTTPConfig struct {
	BaseURL     string
	Timeout     time.Duration
	HorizonDays float64
	// Breaker trips after this many consecutive failures and stays open for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// HTTPForecaster asks a forecast service for quantiles. Transport failures, bad
// payloads and an open breaker all surface as ErrUpstreamUnavailable.
type HTTPForecaster struct {
	baseURL string
	horizon float64
	client  *xhttp.Client
	breaker *gobreaker.CircuitBreaker
}

type quantilesReq struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	HorizonDays float64 `json:"horizon_days"`
}

type quantilesResp struct {
	Low         float64 `json:"low"`
	Median      float64 `json:"median"`
	High        float64 `json:"high"`
	HorizonDays float64 `json:"horizon_days"`
}

// NewHTTPForecaster builds the client and its breaker.
func NewHTTPForecaster(cfg HTTPConfig) *HTTPForecaster {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	st := gobreaker.Settings{Name: "forecast"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= cfg.MaxFailures }
	st.Interval = 0
	st.Timeout = cfg.OpenTimeout

	client := xhttp.NewClient(
		xhttp.WithBaseURL(cfg.BaseURL),
		xhttp.WithTimeout(cfg.Timeout),
		xhttp.WithHeader("User-Agent", "riskkernel"),
	)
	return &HTTPForecaster{
		baseURL: cfg.BaseURL,
		horizon: cfg.HorizonDays,
		client:  client,
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

// State reports the breaker state, for health output.
func (f *HTTPForecaster) State() string {
	return f.breaker.State().String()
}

func (f *HTTPForecaster) Forecast(ctx context.Context, symbol string, price float64) (models.ForecastQuantiles, error) {
	if f.baseURL == "" {
		return models.ForecastQuantiles{}, fmt.Errorf("forecast %s: no service configured: %w", symbol, models.ErrUpstreamUnavailable)
	}

	res, err := f.breaker.Execute(func() (interface{}, error) {
		var qr quantilesResp
		err := f.client.PostJSON(ctx, quantilesPath, quantilesReq{Symbol: symbol, Price: price, HorizonDays: f.horizon}, &qr)
		if err != nil {
			return nil, fmt.Errorf("post %s: %w", quantilesPath, err)
		}
		return qr, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.ForecastQuantiles{}, fmt.Errorf("forecast %s: breaker %s: %w", symbol, f.breaker.State(), models.ErrUpstreamUnavailable)
		}
		return models.ForecastQuantiles{}, fmt.Errorf("forecast %s: %v: %w", symbol, err, models.ErrUpstreamUnavailable)
	}

	qr := res.(quantilesResp)
	out := models.ForecastQuantiles{Low: qr.Low, Median: qr.Median, High: qr.High, HorizonDays: qr.HorizonDays}
	if out.HorizonDays == 0 {
		out.HorizonDays = f.horizon
	}
	if err := validQuantiles(out); err != nil {
		return models.ForecastQuantiles{}, fmt.Errorf("forecast %s: %v: %w", symbol, err, models.ErrUpstreamUnavailable)
	}
	return out, nil
}

func validQuantiles(q models.ForecastQuantiles) error {
	for _, v := range []float64{q.Low, q.Median, q.High, q.HorizonDays} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite quantiles %+v", q)
		}
	}
	if q.Low > q.Median || q.Median > q.High {
		return fmt.Errorf("unordered quantiles %+v", q)
	}
	if q.HorizonDays < 0 {
		return fmt.Errorf("negative horizon %v", q.HorizonDays)
	}
	return nil
}

var _ domsvc.ForecastProvider = (*HTTPForecaster)(nil)
