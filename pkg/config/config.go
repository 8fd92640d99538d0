package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	xutil "RiskKernel/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
		RateLimitIdle   time.Duration `yaml:"rate_limit_idle" default:"10m"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Symbols []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	Kernel  Kernel   `yaml:"kernel"`
	Kafka   struct {
		Brokers      []string `yaml:"brokers" validate:"required,min=1"`
		RequiredAcks int      `yaml:"required_acks" default:"1" validate:"oneof=-1 0 1"`
		Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Topics       struct {
			Ticks     string `yaml:"ticks" default:"market.ticks" validate:"required"`
			Signals   string `yaml:"signals" default:"strategy.signals"`
			Decisions string `yaml:"decisions" default:"risk.decisions"`
			Faults    string `yaml:"faults" default:"risk.faults"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID         string        `yaml:"group_id" default:"riskkernel"`
			AutoOffsetReset string        `yaml:"auto_offset_reset" default:"latest" validate:"oneof=latest earliest"`
			Workers         int           `yaml:"workers" default:"4" validate:"gte=1"`
			BufferSize      int           `yaml:"buffer_size" default:"64"`
			RetryMax        int           `yaml:"retry_max" default:"3"`
			BackoffMin      time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax      time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic        string        `yaml:"dlq_topic"`
			MinBytes        int           `yaml:"min_bytes" default:"1"`
			MaxBytes        int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost" validate:"required_if=Enabled true"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"riskkernel"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert" default:"true"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		DecisionsTable   string        `yaml:"decisions_table" default:"decisions"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr" default:"localhost:6379" validate:"required_if=Enabled true"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		AlphaTTL  time.Duration `yaml:"alpha_ttl" default:"1h"`
		KeyPrefix string        `yaml:"key_prefix" default:"riskkernel:alpha:"`
	} `yaml:"redis"`
	Forecast struct {
		Mode         string        `yaml:"mode" default:"band" validate:"oneof=http band"`
		BaseURL      string        `yaml:"base_url" validate:"required_if=Mode http"`
		Timeout      time.Duration `yaml:"timeout" default:"3s"`
		MaxFailures  uint32        `yaml:"max_failures" default:"5"`
		OpenTimeout  time.Duration `yaml:"open_timeout" default:"30s"`
		BandWindow   int           `yaml:"band_window" default:"60" validate:"gte=2"`
		BandQuantile float64       `yaml:"band_quantile" default:"0.9" validate:"gt=0.5,lt=1"`
		BarsPerDay   float64       `yaml:"bars_per_day" default:"0" validate:"gte=0"` // 0 derives from warm_up.timeframe
	} `yaml:"forecast"`
	Signals struct {
		TTL time.Duration `yaml:"ttl" default:"5m"`
	} `yaml:"signals"`
	Pipeline struct {
		MaxRPS int `yaml:"max_rps" default:"0" validate:"gte=0"`
	} `yaml:"pipeline"`
	WarmUp struct {
		Bars      int    `yaml:"bars" default:"0" validate:"gte=0"`
		Timeframe string `yaml:"timeframe" default:"1m" validate:"oneof=1s 1m 5m 1h 1d"`
	} `yaml:"warm_up"`
	Digest struct {
		Enabled   bool          `yaml:"enabled"`
		Interval  time.Duration `yaml:"interval" default:"30s"`
		Threshold int           `yaml:"threshold" default:"100"`
	} `yaml:"digest"`
}

// Kernel holds the numerical parameters of the decision step.
type Kernel struct {
	Filter struct {
		TimeStep         float64 `yaml:"time_step" default:"1" validate:"gt=0"`
		ProcessNoise     float64 `yaml:"process_noise" default:"0.01" validate:"gte=0"`
		MeasurementNoise float64 `yaml:"measurement_noise" default:"1" validate:"gt=0"`
		NoiseModel       string  `yaml:"noise_model" default:"diagonal" validate:"oneof=diagonal analytic"`
		InitialVariance  float64 `yaml:"initial_variance" default:"1000" validate:"gt=0"`
	} `yaml:"filter"`
	CriticalAlpha      float64 `yaml:"critical_alpha" default:"2" validate:"gt=0"`
	GaussianAlpha      float64 `yaml:"gaussian_alpha" default:"3" validate:"gt=0"`
	Confidence         float64 `yaml:"confidence" default:"0.95" validate:"gt=0.5,lt=1"`
	PositionCap        float64 `yaml:"position_cap" default:"0.2" validate:"gt=0,lte=1"`
	RiskFreeRate       float64 `yaml:"risk_free_rate" default:"0.04"`
	DefaultHorizonDays float64 `yaml:"default_horizon_days" default:"10" validate:"gt=0"`
	Lookback           int     `yaml:"lookback" default:"100" validate:"gte=20"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file. Defaults are applied before
// the file so explicit zero values in YAML are kept.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse builds a validated Config from YAML bytes.
func Parse(b []byte) (*Config, error) {
	c, err := parse(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Defaults returns a Config holding only default values, for tools that need
// kernel parameters without the service sections. It is not validated.
func Defaults() (*Config, error) { return parse(nil) }

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parse(b)
}

func parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitList(v)
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Symbols = xutil.SplitList(v)
	}
	if v := getenv("FORECAST_URL"); v != "" {
		c.Forecast.Mode = "http"
		c.Forecast.BaseURL = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Enabled = true
		c.ClickHouse.Host = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	c.Server.Port = xutil.ParseIntDefault(getenv("SERVER_PORT"), c.Server.Port)
	for name, dst := range map[string]*float64{
		"RISK_FREE_RATE": &c.Kernel.RiskFreeRate,
		"POSITION_CAP":   &c.Kernel.PositionCap,
	} {
		v := getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("env %s: %w", name, err)
		}
		*dst = f
	}
	return nil
}

// Validate checks struct tags and the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kernel.CriticalAlpha >= c.Kernel.GaussianAlpha {
		return fmt.Errorf("kernel.critical_alpha (%v) must be below kernel.gaussian_alpha (%v)", c.Kernel.CriticalAlpha, c.Kernel.GaussianAlpha)
	}
	if c.Kafka.Consumer.BackoffMin > c.Kafka.Consumer.BackoffMax {
		return fmt.Errorf("kafka.consumer.backoff_min must not exceed backoff_max")
	}
	if c.Digest.Enabled && c.Kafka.Topics.Faults == "" {
		return fmt.Errorf("digest.enabled requires kafka.topics.faults")
	}
	if c.WarmUp.Bars > 0 && !c.ClickHouse.Enabled {
		return fmt.Errorf("warm_up.bars requires clickhouse.enabled")
	}
	return nil
}
