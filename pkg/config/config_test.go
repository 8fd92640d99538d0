package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
symbols: [AAPL]
kafka:
  brokers: [localhost:9092]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 2.0, c.Kernel.CriticalAlpha)
	assert.Equal(t, 3.0, c.Kernel.GaussianAlpha)
	assert.Equal(t, 0.95, c.Kernel.Confidence)
	assert.Equal(t, 0.2, c.Kernel.PositionCap)
	assert.Equal(t, 0.04, c.Kernel.RiskFreeRate)
	assert.Equal(t, 100, c.Kernel.Lookback)
	assert.Equal(t, "diagonal", c.Kernel.Filter.NoiseModel)
	assert.Equal(t, 1000.0, c.Kernel.Filter.InitialVariance)
	assert.Equal(t, "market.ticks", c.Kafka.Topics.Ticks)
	assert.Equal(t, 5*time.Minute, c.Signals.TTL)
	assert.Equal(t, "band", c.Forecast.Mode)
	assert.Equal(t, uint32(5), c.Forecast.MaxFailures)
	assert.Equal(t, "riskkernel:alpha:", c.Redis.KeyPrefix)
}

func TestParseKeepsExplicitZero(t *testing.T) {
	c, err := Parse([]byte(minimal + `
kernel:
  risk_free_rate: 0
pipeline:
  max_rps: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, c.Kernel.RiskFreeRate)
	assert.Equal(t, 0, c.Pipeline.MaxRPS)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no symbols":         "kafka:\n  brokers: [x:1]\n",
		"no brokers":         "symbols: [AAPL]\n",
		"bad noise model":    minimal + "kernel:\n  filter:\n    noise_model: cubic\n",
		"cap above one":      minimal + "kernel:\n  position_cap: 1.5\n",
		"thresholds swap":    minimal + "kernel:\n  critical_alpha: 3.5\n",
		"http without url":   minimal + "forecast:\n  mode: http\n",
		"warm up without ch": minimal + "warm_up:\n  bars: 50\n",
		"bad yaml":           "symbols: [AAPL\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)

	env := map[string]string{
		"KAFKA_BROKERS":   "k1:9092, k2:9092",
		"SYMBOLS":         "BTC-USD,ETH-USD",
		"FORECAST_URL":    "http://forecast:8000",
		"REDIS_ADDR":      "redis:6379",
		"CLICKHOUSE_HOST": "ch",
		"LOG_LEVEL":       "debug",
		"SERVER_PORT":     "9090",
		"RISK_FREE_RATE":  "0.05",
		"POSITION_CAP":    "0.1",
	}
	require.NoError(t, c.applyEnv(func(k string) string { return env[k] }))
	require.NoError(t, c.Validate())

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, []string{"BTC-USD", "ETH-USD"}, c.Symbols)
	assert.Equal(t, "http", c.Forecast.Mode)
	assert.Equal(t, "http://forecast:8000", c.Forecast.BaseURL)
	assert.True(t, c.Redis.Enabled)
	assert.True(t, c.ClickHouse.Enabled)
	assert.Equal(t, "ch", c.ClickHouse.Host)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 0.05, c.Kernel.RiskFreeRate)
	assert.Equal(t, 0.1, c.Kernel.PositionCap)
}

func TestApplyEnvBadFloat(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	err = c.applyEnv(func(k string) string {
		if k == "POSITION_CAP" {
			return "lots"
		}
		return ""
	})
	assert.Error(t, err)
}

func TestLoadSampleConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "BTC-USD"}, c.Symbols)
	assert.Equal(t, 390.0, c.Forecast.BarsPerDay)
}

func TestLoadWithEnvFillsMissingBrokers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("symbols: [AAPL]\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, c.Kafka.Brokers)
}

func TestDefaultsSkipsValidation(t *testing.T) {
	c, err := Defaults()
	require.NoError(t, err)
	assert.Empty(t, c.Symbols)
	assert.Equal(t, 100, c.Kernel.Lookback)
	assert.Equal(t, 60, c.Forecast.BandWindow)
}
