package models

import "time"

// Tick is a single price observation for a symbol.
type Tick struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Price     float64
}

// CandidateSignal is the raw directional signal supplied by a strategy collaborator.
// Positive values are long, negative short; magnitude is the requested allocation.
type CandidateSignal struct {
	Symbol    string
	Timestamp int64
	Value     float64
	Source    string
}

// ForecastQuantiles is an external probabilistic price forecast.
type ForecastQuantiles struct {
	Low         float64 `json:"low"`
	Median      float64 `json:"median"`
	High        float64 `json:"high"`
	HorizonDays float64 `json:"horizon_days"`
}

// Candle represents an OHLCV record.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	OrgID  string
}
