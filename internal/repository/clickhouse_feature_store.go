package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	pkgch "RiskKernel/pkg/clickhouse"
	applogger "RiskKernel/pkg/logger"
)

// CHFeatureStore implements FeatureStore backed by ClickHouse candle tables.
type CHFeatureStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHFeatureStore(ch *pkgch.Client, database string) *CHFeatureStore {
	return newCHFeatureStore(ch.DB(), database)
}

func newCHFeatureStore(db *sql.DB, database string) *CHFeatureStore {
	if database == "" {
		database = "riskkernel"
	}
	return &CHFeatureStore{db: db, database: database, l: applogger.NewNop()}
}

// SetLogger injects a structured logger.
func (s *CHFeatureStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *CHFeatureStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol, '' AS org_id
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	return s.query(ctx, "get_candles", qtpl, symbol, tf, false, symbol, from, to)
}

// GetLatestNCandles returns the newest n candles in ascending order.
func (s *CHFeatureStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	const qtpl = `
        SELECT bucket, symbol, open, high, low, close, vol, '' AS org_id
        FROM %s
        WHERE symbol = ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	return s.query(ctx, "latest_candles", qtpl, symbol, tf, true, symbol, n)
}

func (s *CHFeatureStore) query(ctx context.Context, op, qtpl, symbol string, tf domrepo.Timeframe, reverse bool, args ...any) ([]models.Candle, error) {
	start := time.Now()
	table, err := s.tableForTF(tf)
	if err != nil {
		return nil, err
	}
	fields := []applogger.Field{
		applogger.String("table", table),
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(qtpl, table), args...)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.OrgID); err != nil {
			s.l.Error("clickhouse "+op+" scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse "+op+" rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	s.l.Debug("clickhouse "+op+" ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

func (s *CHFeatureStore) tableForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s, domrepo.TF1m, domrepo.TF1h, domrepo.TF1d:
		return fmt.Sprintf("%s.candles_%s", s.database, tf), nil
	case domrepo.TF5m:
		// no dedicated table; 1m bars serve 5m requests
		return fmt.Sprintf("%s.candles_%s", s.database, domrepo.TF1m), nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

// CandleSchema returns the DDL for one candle table.
func CandleSchema(database string, tf domrepo.Timeframe) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles_%s (
    bucket DateTime('UTC'),
    symbol LowCardinality(String),
    open Float64,
    high Float64,
    low Float64,
    close Float64,
    vol Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, bucket)`, database, tf)
}
