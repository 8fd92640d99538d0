package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"RiskKernel/internal/domain/models"
	domrepo "RiskKernel/internal/domain/repository"
	pkgch "RiskKernel/pkg/clickhouse"
)

const decisionColumns = "id, symbol, step, ts, price, alpha, regime, lambda, raw_signal, raw_size, sizer_fraction, final_size, outcome, vetoed, veto_checked, reason, position, velocity, acceleration, state_cold"

// CHDecisionStore keeps the decision audit trail in ClickHouse.
type CHDecisionStore struct {
	db    *sql.DB
	table string
}

func NewCHDecisionStore(ch *pkgch.Client, table string) *CHDecisionStore {
	return newCHDecisionStore(ch.DB(), table)
}

func newCHDecisionStore(db *sql.DB, table string) *CHDecisionStore {
	if table == "" {
		table = "riskkernel.decisions"
	}
	return &CHDecisionStore{db: db, table: table}
}

// DecisionSchema returns the DDL for the decisions table.
func DecisionSchema(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id String,
    symbol LowCardinality(String),
    step UInt64,
    ts DateTime64(3, 'UTC'),
    price Float64,
    alpha Float64,
    regime LowCardinality(String),
    lambda Float64,
    raw_signal Float64,
    raw_size Float64,
    sizer_fraction Float64,
    final_size Float64,
    outcome LowCardinality(String),
    vetoed UInt8,
    veto_checked UInt8,
    reason String,
    position Float64,
    velocity Float64,
    acceleration Float64,
    state_cold UInt8
) ENGINE = MergeTree
ORDER BY (symbol, ts, step)`, table)
}

func (s *CHDecisionStore) Store(ctx context.Context, d *models.DecisionRecord) error {
	return s.StoreBatch(ctx, []*models.DecisionRecord{d})
}

func (s *CHDecisionStore) StoreBatch(ctx context.Context, ds []*models.DecisionRecord) error {
	const chunkSize = 2000
	for start := 0; start < len(ds); start += chunkSize {
		end := start + chunkSize
		if end > len(ds) {
			end = len(ds)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*20)
		for _, d := range ds[start:end] {
			if d == nil || d.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				d.ID, d.Symbol, uint64(d.Step), d.Timestamp, d.Price,
				d.Alpha, d.Regime.String(), d.Lambda,
				d.RawSignal, d.RawSize, d.SizerFraction, d.FinalSize,
				string(d.Outcome), boolToUInt8(d.Vetoed), boolToUInt8(d.VetoChecked), d.Reason,
				d.Position, d.Velocity, d.Acceleration, boolToUInt8(d.StateCold),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, decisionColumns, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert decisions: %w", err)
		}
	}
	return nil
}

// Query returns decisions for symbol in [from, to], newest first.
func (s *CHDecisionStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC, step DESC LIMIT ?", decisionColumns, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []*models.DecisionRecord
	for rows.Next() {
		var (
			d                        models.DecisionRecord
			step                     uint64
			regime, outcome          string
			vetoed, checked, coldRaw uint8
		)
		if err := rows.Scan(
			&d.ID, &d.Symbol, &step, &d.Timestamp, &d.Price,
			&d.Alpha, &regime, &d.Lambda,
			&d.RawSignal, &d.RawSize, &d.SizerFraction, &d.FinalSize,
			&outcome, &vetoed, &checked, &d.Reason,
			&d.Position, &d.Velocity, &d.Acceleration, &coldRaw,
		); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		r, err := models.ParseRegime(regime)
		if err != nil {
			return nil, fmt.Errorf("decision %s: %w", d.ID, err)
		}
		d.Step = int(step)
		d.Regime = r
		d.Outcome = models.Outcome(outcome)
		d.Vetoed, d.VetoChecked, d.StateCold = vetoed == 1, checked == 1, coldRaw == 1
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *CHDecisionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHDecisionStore) Close() error {
	return nil // pool owned by pkg/clickhouse
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ domrepo.DecisionStore = (*CHDecisionStore)(nil)
