package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "RiskKernel/internal/domain/repository"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/handler/api"
	mid "RiskKernel/internal/middleware"
	internalrepo "RiskKernel/internal/repository"
	icache "RiskKernel/internal/service/cache"
	svcmetrics "RiskKernel/internal/service/metrics"
	"RiskKernel/internal/services/forecast"
	"RiskKernel/internal/services/kinematics"
	"RiskKernel/internal/services/regime"
	"RiskKernel/internal/services/sizing"
	"RiskKernel/internal/services/tail"
	"RiskKernel/internal/usecase"
	pkgch "RiskKernel/pkg/clickhouse"
	"RiskKernel/pkg/config"
	pkgkafka "RiskKernel/pkg/kafka"
	applogger "RiskKernel/pkg/logger"
	"RiskKernel/pkg/metrics"
)

// ProvideLogger builds the process logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("service", "riskkernel"), applogger.String("env", cfg.Environment)), nil
}

// ProvideClickHouseClient creates a ClickHouse client and its schema. It returns
// nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithEndpoint(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, schemaStatements(cfg)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

func schemaStatements(cfg *config.Config) []string {
	db := cfg.ClickHouse.Database
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		internalrepo.CandleSchema(db, domrepo.TF1s),
		internalrepo.CandleSchema(db, domrepo.TF1m),
		internalrepo.CandleSchema(db, domrepo.TF1h),
		internalrepo.CandleSchema(db, domrepo.TF1d),
		internalrepo.DecisionSchema(decisionsTable(cfg)),
	}
}

func decisionsTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + "." + cfg.ClickHouse.DecisionsTable
}

// ProvideRedisCache connects the snapshot cache. It returns nil when Redis is disabled.
func ProvideRedisCache(cfg *config.Config) (*icache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc := icache.NewRedisCache(icache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rc, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts, cfg.Kafka.Producer.Async),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.TraceHook())
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideKernelMetrics registers the decision-step collectors.
func ProvideKernelMetrics() *svcmetrics.KernelMetrics {
	return svcmetrics.NewKernelMetrics(prometheus.DefaultRegisterer)
}

// ProvideDecisionStore returns the ClickHouse audit store, or nil without ClickHouse.
func ProvideDecisionStore(ch *pkgch.Client, cfg *config.Config) domrepo.DecisionStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHDecisionStore(ch, decisionsTable(cfg))
}

// ProvideFeatureStore returns the ClickHouse candle store, or nil without ClickHouse.
func ProvideFeatureStore(ch *pkgch.Client, cfg *config.Config, l *applogger.Logger) domrepo.FeatureStore {
	if ch == nil {
		return nil
	}
	fs := internalrepo.NewCHFeatureStore(ch, cfg.ClickHouse.Database)
	fs.SetLogger(l)
	return fs
}

// ProvideDecisionPublisher publishes decision records to the decisions topic.
func ProvideDecisionPublisher(producer *pkgkafka.Producer, cfg *config.Config) domrepo.DecisionPublisher {
	if cfg.Kafka.Topics.Decisions == "" {
		return nil
	}
	return internalrepo.NewKafkaDecisionPublisher(producer, cfg.Kafka.Topics.Decisions)
}

// ProvideAlphaBoard creates the per-symbol regime board, mirrored to Redis when available.
func ProvideAlphaBoard(rc *icache.RedisCache, cfg *config.Config) *usecase.AlphaBoard {
	if rc == nil {
		return usecase.NewAlphaBoard(nil)
	}
	return usecase.NewAlphaBoard(internalrepo.NewAlphaSnapshotStore(rc, cfg.Redis.KeyPrefix, cfg.Redis.AlphaTTL))
}

// ProvideTailEstimator creates the Hill estimator.
func ProvideTailEstimator() domsvc.TailEstimator {
	return tail.NewHillEstimator()
}

// ProvideClassifier creates the regime classifier from the kernel thresholds.
func ProvideClassifier(cfg *config.Config) (domsvc.RegimeClassifier, error) {
	c, err := regime.NewClassifier(
		regime.WithCriticalAlpha(cfg.Kernel.CriticalAlpha),
		regime.WithGaussianAlpha(cfg.Kernel.GaussianAlpha),
	)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return c, nil
}

// ProvideSizer creates the expected-shortfall sizer.
func ProvideSizer(classifier domsvc.RegimeClassifier, cfg *config.Config) (domsvc.PositionSizer, error) {
	s, err := sizing.NewSizer(classifier,
		sizing.WithConfidence(cfg.Kernel.Confidence),
		sizing.WithPositionCap(cfg.Kernel.PositionCap),
	)
	if err != nil {
		return nil, fmt.Errorf("sizer: %w", err)
	}
	return s, nil
}

// ProvideEstimatorFactory validates the filter settings once and returns a
// factory for per-symbol estimators.
func ProvideEstimatorFactory(cfg *config.Config) (usecase.EstimatorFactory, error) {
	f := cfg.Kernel.Filter
	noise, err := kinematics.NewProcessNoise(f.NoiseModel, f.ProcessNoise)
	if err != nil {
		return nil, fmt.Errorf("kalman noise: %w", err)
	}
	opts := []kinematics.Option{
		kinematics.WithTimeStep(f.TimeStep),
		kinematics.WithMeasurementNoise(f.MeasurementNoise),
		kinematics.WithNoiseModel(noise),
		kinematics.WithInitialVariance(f.InitialVariance),
	}
	if _, err := kinematics.NewEstimator(opts...); err != nil {
		return nil, fmt.Errorf("kalman config: %w", err)
	}
	return func() (domsvc.StateEstimator, error) {
		e, err := kinematics.NewEstimator(opts...)
		if err != nil {
			return nil, err
		}
		return e, nil
	}, nil
}

// ProvideForecaster selects the remote forecast service or the local band.
func ProvideForecaster(cfg *config.Config) (domsvc.ForecastProvider, error) {
	fc := cfg.Forecast
	if fc.Mode == "http" {
		return forecast.NewHTTPForecaster(forecast.HTTPConfig{
			BaseURL:     fc.BaseURL,
			Timeout:     fc.Timeout,
			HorizonDays: cfg.Kernel.DefaultHorizonDays,
			MaxFailures: fc.MaxFailures,
			OpenTimeout: fc.OpenTimeout,
		}), nil
	}
	b, err := forecast.NewBandForecaster(forecast.BandConfig{
		Window:      fc.BandWindow,
		HorizonDays: cfg.Kernel.DefaultHorizonDays,
		BarsPerDay:  fc.BarsPerDay,
		Timeframe:   cfg.WarmUp.Timeframe,
		Quantile:    fc.BandQuantile,
	})
	if err != nil {
		return nil, fmt.Errorf("band forecaster: %w", err)
	}
	return b, nil
}

// ProvideSignalBoard holds the latest strategy signal per symbol.
func ProvideSignalBoard(cfg *config.Config) *usecase.SignalBoard {
	return usecase.NewSignalBoard(cfg.Signals.TTL)
}

// ProvideOrchestrator assembles the decision step.
func ProvideOrchestrator(
	cfg *config.Config,
	tailEst domsvc.TailEstimator,
	classifier domsvc.RegimeClassifier,
	sizer domsvc.PositionSizer,
	forecasts domsvc.ForecastProvider,
	signals *usecase.SignalBoard,
	newEst usecase.EstimatorFactory,
	board *usecase.AlphaBoard,
	km *svcmetrics.KernelMetrics,
	l *applogger.Logger,
) *usecase.Orchestrator {
	return usecase.NewOrchestrator(tailEst, classifier, sizer, forecasts, signals, newEst,
		usecase.WithLookback(cfg.Kernel.Lookback),
		usecase.WithRiskFreeRate(cfg.Kernel.RiskFreeRate),
		usecase.WithAlphaBoard(board),
		usecase.WithMetrics(km),
		usecase.WithLogger(l.With(applogger.String("component", "orchestrator"))),
	)
}

// ProvideDecisionProcessor delivers each decision to Kafka and ClickHouse.
func ProvideDecisionProcessor(
	orch *usecase.Orchestrator,
	pub domrepo.DecisionPublisher,
	store domrepo.DecisionStore,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.DecisionProcessor {
	return usecase.NewDecisionProcessor(orch, pub, store, m, l)
}

// ProvideTickPipeline validates and throttles ticks ahead of the processor.
func ProvideTickPipeline(proc *usecase.DecisionProcessor, m domrepo.Metrics, cfg *config.Config) *mid.TickPipeline {
	return mid.NewTickPipeline(proc, m, mid.WithMaxRPS(cfg.Pipeline.MaxRPS))
}

// ProvideKafkaTicksHandler binds the ticks topic to the pipeline.
func ProvideKafkaTicksHandler(pipe *mid.TickPipeline, m domrepo.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.Topics.Ticks, pipe, m)
}

// ProvideKafkaSignalsHandler binds the signals topic to the signal board.
func ProvideKafkaSignalsHandler(board *usecase.SignalBoard, m domrepo.Metrics, cfg *config.Config) *usecase.KafkaSignalsHandler {
	return usecase.NewKafkaSignalsHandler(cfg.Kafka.Topics.Signals, board, m)
}

// ProvideKernelHandler exposes the kernel over HTTP.
func ProvideKernelHandler(
	l *applogger.Logger,
	tailEst domsvc.TailEstimator,
	classifier domsvc.RegimeClassifier,
	sizer domsvc.PositionSizer,
	orch *usecase.Orchestrator,
	store domrepo.DecisionStore,
	cfg *config.Config,
) *api.KernelEchoHandler {
	return api.NewKernelEchoHandler(l, tailEst, classifier, sizer, orch, store, cfg.Kernel.RiskFreeRate)
}
