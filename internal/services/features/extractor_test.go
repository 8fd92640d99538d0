package features

import (
	"math"
	"testing"

	"RiskKernel/internal/domain/models"
)

func TestLogReturns(t *testing.T) {
	got, err := LogReturns([]float64{100, 110, 99})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 returns, got %d", len(got))
	}
	if math.Abs(got[0]-math.Log(1.1)) > 1e-12 {
		t.Fatalf("unexpected first return %v", got[0])
	}
	if math.Abs(got[1]-math.Log(0.9)) > 1e-12 {
		t.Fatalf("unexpected second return %v", got[1])
	}
}

func TestLogReturnsShortWindow(t *testing.T) {
	got, err := LogReturns([]float64{100})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

func TestLogReturnsRejectsBadPrices(t *testing.T) {
	for _, bad := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := LogReturns([]float64{100, bad, 101}); err == nil {
			t.Fatalf("expected error for %v", bad)
		}
	}
}

func TestCloses(t *testing.T) {
	got := Closes([]models.Candle{{Close: 1}, {Close: 2.5}})
	if len(got) != 2 || got[0] != 1 || got[1] != 2.5 {
		t.Fatalf("unexpected closes %v", got)
	}
}

func TestRealizedVolatility(t *testing.T) {
	rets := []float64{0.01, -0.01, 0.01, -0.01}
	got := RealizedVolatility(rets, 4, 1)
	want := math.Sqrt(4 * 0.0001 / 3)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("got %v want %v", got, want)
	}
	if RealizedVolatility(rets, 5, 1) != 0 {
		t.Fatalf("expected 0 for short window")
	}
}

func TestBarsPerTradingDay(t *testing.T) {
	if BarsPerTradingDay("1d") != 1 {
		t.Fatalf("expected 1 bar per day for 1d")
	}
}
