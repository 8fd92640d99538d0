package repository

import "time"

// Timeframe is a candle bucket width. Each one stored has its own candles_<tf> table.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// Duration is the bucket width, zero for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1s:
		return time.Second
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	}
	return 0
}

// NormalizeTimeframe maps s to a known timeframe; anything else reads as 1m.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); tf.Duration() > 0 {
		return tf
	}
	return TF1m
}
