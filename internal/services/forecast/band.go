package forecast

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/services/features"
)

// BandConfig configures the realized-volatility band forecaster.
type BandConfig struct {
	// Window is the number of trailing returns used for drift and volatility.
	Window int
	// HorizonDays is the forecast horizon; BarsPerDay converts it into bars.
	HorizonDays float64
	BarsPerDay  float64
	// Timeframe is the bar size fed to Observe. It sets BarsPerDay when that is unset.
	Timeframe string
	// Quantile is the upper band probability; the lower band uses 1−Quantile.
	Quantile float64
}

// BandForecaster projects a lognormal band from each symbol's trailing returns.
// It is a local stand-in for the remote forecast service in backtests and when
// no service is configured. Safe for concurrent use.
type BandForecaster struct {
	cfg BandConfig
	z   float64

	mu     sync.Mutex
	prices map[string][]float64
}

// NewBandForecaster validates cfg and returns a forecaster with empty history.
func NewBandForecaster(cfg BandConfig) (*BandForecaster, error) {
	if cfg.Window < 2 {
		cfg.Window = 60
	}
	if cfg.BarsPerDay <= 0 && cfg.Timeframe != "" {
		cfg.BarsPerDay = features.BarsPerTradingDay(cfg.Timeframe)
	}
	if cfg.BarsPerDay <= 0 {
		cfg.BarsPerDay = 1
	}
	if cfg.Quantile == 0 {
		cfg.Quantile = 0.9
	}
	if !(cfg.Quantile > 0.5 && cfg.Quantile < 1) {
		return nil, fmt.Errorf("band quantile must be in (0.5,1), got %v", cfg.Quantile)
	}
	if cfg.HorizonDays < 0 {
		return nil, fmt.Errorf("band horizon must be >= 0, got %v", cfg.HorizonDays)
	}
	return &BandForecaster{
		cfg:    cfg,
		z:      distuv.UnitNormal.Quantile(cfg.Quantile),
		prices: make(map[string][]float64),
	}, nil
}

// Observe appends a price to the symbol's history, keeping Window+1 prices.
func (f *BandForecaster) Observe(symbol string, price float64) {
	if !(price > 0) || math.IsInf(price, 0) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := append(f.prices[symbol], price)
	if over := len(h) - (f.cfg.Window + 1); over > 0 {
		h = append(h[:0:0], h[over:]...)
	}
	f.prices[symbol] = h
}

// Forecast returns the band around price. Without Window returns of history the
// forecast is unavailable.
func (f *BandForecaster) Forecast(_ context.Context, symbol string, price float64) (models.ForecastQuantiles, error) {
	f.mu.Lock()
	hist := append([]float64(nil), f.prices[symbol]...)
	f.mu.Unlock()

	if len(hist) < f.cfg.Window+1 {
		return models.ForecastQuantiles{}, fmt.Errorf("band %s: %d/%d prices: %w", symbol, len(hist), f.cfg.Window+1, models.ErrUpstreamUnavailable)
	}
	rets, err := features.LogReturns(hist)
	if err != nil {
		return models.ForecastQuantiles{}, fmt.Errorf("band %s: %v: %w", symbol, err, models.ErrUpstreamUnavailable)
	}

	bars := f.cfg.HorizonDays * f.cfg.BarsPerDay
	drift := stat.Mean(rets, nil) * bars
	sigma := features.RealizedVolatility(rets, len(rets), 1) * math.Sqrt(bars)

	return models.ForecastQuantiles{
		Low:         price * math.Exp(drift-f.z*sigma),
		Median:      price * math.Exp(drift),
		High:        price * math.Exp(drift+f.z*sigma),
		HorizonDays: f.cfg.HorizonDays,
	}, nil
}

// Reset forgets a symbol's history.
func (f *BandForecaster) Reset(symbol string) {
	f.mu.Lock()
	delete(f.prices, symbol)
	f.mu.Unlock()
}

var (
	_ domsvc.ForecastProvider = (*BandForecaster)(nil)
	_ domsvc.PriceObserver    = (*BandForecaster)(nil)
)
