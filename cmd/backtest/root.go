package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"RiskKernel/internal/di"
	domrepo "RiskKernel/internal/domain/repository"
	domsvc "RiskKernel/internal/domain/service"
	"RiskKernel/internal/services/forecast"
	"RiskKernel/internal/usecase"
	"RiskKernel/pkg/config"
	applogger "RiskKernel/pkg/logger"
	xutil "RiskKernel/pkg/util"
)

type rootFlags struct {
	configPath  string
	out         string
	summaryOnly bool
	logLevel    string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "backtest",
		Short:         "Replay price history through the risk kernel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "service config for kernel parameters (defaults when empty)")
	root.PersistentFlags().StringVarP(&f.out, "out", "o", "-", "output file, - for stdout")
	root.PersistentFlags().BoolVar(&f.summaryOnly, "summary-only", false, "write only the summary")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "warn", "log level on stderr")

	root.AddCommand(csvCmd(f))
	root.AddCommand(clickhouseCmd(f))
	return root
}

func csvCmd(f *rootFlags) *cobra.Command {
	var (
		file   string
		symbol string
	)
	cmd := &cobra.Command{
		Use:   "csv",
		Short: "Replay bars from a CSV file (timestamp,price,signal,low,median,high,horizon)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, err := f.setup()
			if err != nil {
				return err
			}
			in, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open bars: %w", err)
			}
			defer in.Close()
			bars, err := readBars(in)
			if err != nil {
				return err
			}
			bt, err := newBacktester(cfg, l)
			if err != nil {
				return err
			}
			res, err := bt.Run(cmd.Context(), symbol, bars)
			if err != nil {
				return err
			}
			return f.write(res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "CSV file with a header row")
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol the bars belong to")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func clickhouseCmd(f *rootFlags) *cobra.Command {
	var (
		symbol string
		from   string
		to     string
		tf     string
		sig    float64
	)
	cmd := &cobra.Command{
		Use:   "clickhouse",
		Short: "Replay stored candles with a constant candidate signal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.configPath == "" {
				return fmt.Errorf("--config is required for clickhouse replays")
			}
			cfg, l, err := f.setup()
			if err != nil {
				return err
			}
			start, ok := xutil.ParseTime(from)
			if !ok {
				return fmt.Errorf("invalid --from %q", from)
			}
			end := xutil.ParseTimeDefault(to, time.Now().UTC())
			start, end = xutil.AlignFromTo(start, end, tf)

			cfg.ClickHouse.Enabled = true
			ch, err := di.ProvideClickHouseClient(cfg)
			if err != nil {
				return err
			}
			defer ch.Close()
			store := di.ProvideFeatureStore(ch, cfg, l)

			bt, err := newBacktester(cfg, l)
			if err != nil {
				return err
			}
			res, err := bt.RunStored(cmd.Context(), store, symbol, start, end, domrepo.NormalizeTimeframe(tf), sig)
			if err != nil {
				return err
			}
			return f.write(res)
		},
	}
	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "symbol to replay")
	cmd.Flags().StringVar(&from, "from", "", "window start, RFC3339 or unix seconds")
	cmd.Flags().StringVar(&to, "to", "", "window end, defaults to now")
	cmd.Flags().StringVar(&tf, "tf", "1m", "candle timeframe (1s, 1m, 5m, 1h, 1d)")
	cmd.Flags().Float64Var(&sig, "signal", 1, "candidate signal applied on every bar")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func (f *rootFlags) setup() (*config.Config, *applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: f.logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		return nil, nil, err
	}
	if f.configPath == "" {
		cfg, err := config.Defaults()
		return cfg, l, err
	}
	cfg, err := config.Load(f.configPath)
	return cfg, l, err
}

// newBacktester builds the kernel the same way the service does. Bars without
// a forecast fall back to a fresh realized-volatility band per run.
func newBacktester(cfg *config.Config, l *applogger.Logger) (*usecase.Backtester, error) {
	classifier, err := di.ProvideClassifier(cfg)
	if err != nil {
		return nil, err
	}
	sizer, err := di.ProvideSizer(classifier, cfg)
	if err != nil {
		return nil, err
	}
	newEst, err := di.ProvideEstimatorFactory(cfg)
	if err != nil {
		return nil, err
	}
	band := forecast.BandConfig{
		Window:      cfg.Forecast.BandWindow,
		HorizonDays: cfg.Kernel.DefaultHorizonDays,
		BarsPerDay:  cfg.Forecast.BarsPerDay,
		Timeframe:   cfg.WarmUp.Timeframe,
		Quantile:    cfg.Forecast.BandQuantile,
	}
	if _, err := forecast.NewBandForecaster(band); err != nil {
		return nil, err
	}
	fallback := func() domsvc.ForecastProvider {
		b, _ := forecast.NewBandForecaster(band)
		return b
	}
	return usecase.NewBacktester(di.ProvideTailEstimator(), classifier, sizer, newEst, fallback, l,
		usecase.WithLookback(cfg.Kernel.Lookback),
		usecase.WithRiskFreeRate(cfg.Kernel.RiskFreeRate),
	), nil
}

func (f *rootFlags) write(res *usecase.BacktestResult) error {
	var w io.Writer = os.Stdout
	if f.out != "-" && f.out != "" {
		file, err := os.Create(f.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer file.Close()
		w = file
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if f.summaryOnly {
		return enc.Encode(res.Summary)
	}
	return enc.Encode(res)
}
