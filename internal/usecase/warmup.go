package usecase

import (
	"context"
	"time"

	domrepo "RiskKernel/internal/domain/repository"
	"RiskKernel/internal/services/features"
	applogger "RiskKernel/pkg/logger"
)

// WarmUp preloads each symbol's session from the latest stored candles so live
// decisions start with a full tail window. Store failures are logged per symbol.
func WarmUp(ctx context.Context, o *Orchestrator, store domrepo.FeatureStore, symbols []string, n int, tf domrepo.Timeframe, l *applogger.Logger) {
	if store == nil || n <= 0 {
		return
	}
	for _, sym := range symbols {
		start := time.Now()
		cs, err := store.GetLatestNCandles(ctx, sym, n, tf)
		if err != nil {
			l.Warn("warm-up load failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		used, err := o.Warm(sym, features.Closes(cs))
		if err != nil {
			l.Warn("warm-up failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		l.Info("session warmed",
			applogger.String("symbol", sym),
			applogger.String("tf", string(tf)),
			applogger.Int("prices", used),
			applogger.Duration("span", time.Duration(used)*tf.Duration()),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
}
