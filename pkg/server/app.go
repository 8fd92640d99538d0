package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	domrepo "RiskKernel/internal/domain/repository"
	"RiskKernel/internal/handler/api"
	icache "RiskKernel/internal/service/cache"
	"RiskKernel/internal/usecase"
	pkgch "RiskKernel/pkg/clickhouse"
	"RiskKernel/pkg/config"
	xhttp "RiskKernel/pkg/http"
	pkgkafka "RiskKernel/pkg/kafka"
	applogger "RiskKernel/pkg/logger"
)

// Deps is everything the application owns for its lifetime.
type Deps struct {
	Cfg       *config.Config
	Log       *applogger.Logger
	Orch      *usecase.Orchestrator
	Consumer  *pkgkafka.Consumer
	Ticks     *usecase.KafkaTicksHandler
	Signals   *usecase.KafkaSignalsHandler
	Board     *usecase.SignalBoard
	Producer  *pkgkafka.Producer
	Publisher domrepo.DecisionPublisher
	Decisions domrepo.DecisionStore
	Features  domrepo.FeatureStore
	CH        *pkgch.Client
	Redis     *icache.RedisCache
	API       *api.KernelEchoHandler
}

// App encapsulates the entire application lifecycle.
type App struct {
	Deps
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(d Deps) *App {
	return &App{Deps: d}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	cfg := a.Cfg
	l := a.Log

	if cfg.Digest.Enabled && a.Producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Digest.Interval,
			CountThreshold: cfg.Digest.Threshold,
			Topic:          cfg.Kafka.Topics.Faults,
			Publisher:      a.Producer,
			GroupBy:        []string{"symbol"},
		})
		l.Info("fault digest enabled", applogger.String("topic", cfg.Kafka.Topics.Faults))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	usecase.WarmUp(runCtx, a.Orch, a.Features, cfg.Symbols, cfg.WarmUp.Bars+1,
		domrepo.NormalizeTimeframe(cfg.WarmUp.Timeframe), l)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.API,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l),
	)

	if a.Consumer != nil {
		a.Consumer.RegisterHandler(a.Ticks)
		if a.Signals != nil && a.Signals.Topic() != "" {
			a.Consumer.RegisterHandler(a.Signals)
		}
		go func() {
			if err := a.Consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("kafka consumer started",
			applogger.String("ticks", a.Ticks.Topic()),
			applogger.String("signals", cfg.Kafka.Topics.Signals),
		)
	}

	if cfg.Server.RateLimitIdle > 0 {
		go a.housekeeping(runCtx, cfg.Server.RateLimitIdle)
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}
	l.Info("risk kernel running",
		applogger.Strings("symbols", cfg.Symbols),
		applogger.Int("port", cfg.Server.Port),
	)

	<-ctx.Done()
	l.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// housekeeping drops idle rate limit buckets and expired signals.
func (a *App) housekeeping(ctx context.Context, idle time.Duration) {
	t := time.NewTicker(idle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.API != nil {
				if n := a.API.SweepRateLimits(idle); n > 0 {
					a.Log.Debug("rate limit buckets swept", applogger.Int("removed", n))
				}
			}
			if a.Board != nil {
				if n := a.Board.Sweep(); n > 0 {
					a.Log.Debug("expired signals swept", applogger.Int("removed", n))
				}
			}
		}
	}
}

// shutdown stops intake first, then drains outputs and closes clients.
func (a *App) shutdown() error {
	l := a.Log
	l.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), a.Cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// Final digest goes out before the producer closes.
	l.RemoveCollector()

	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			l.Warn("decision publisher close error", applogger.Error(err))
		}
	} else if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.Decisions != nil {
		if err := a.Decisions.Close(); err != nil {
			l.Warn("decision store close error", applogger.Error(err))
		}
	}
	if a.CH != nil {
		if err := a.CH.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			l.Warn("redis close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
