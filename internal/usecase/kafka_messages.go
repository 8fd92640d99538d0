package usecase

import (
	"encoding/json"
	"fmt"

	"RiskKernel/internal/domain/models"
)

// tickMessage is the market.ticks payload. Feeds send the price as "c" (close)
// or "price"; "c" wins when both are set.
type tickMessage struct {
	Symbol string   `json:"symbol"`
	T      int64    `json:"t"`
	C      *float64 `json:"c"`
	Price  *float64 `json:"price"`
}

func decodeTick(b []byte) (models.Tick, error) {
	var m tickMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.Tick{}, err
	}
	p := m.C
	if p == nil {
		p = m.Price
	}
	if p == nil {
		return models.Tick{}, fmt.Errorf("tick for %q has no price", m.Symbol)
	}
	return models.Tick{Symbol: m.Symbol, Timestamp: unixSeconds(m.T), Price: *p}, nil
}

// signalMessage is the strategy.signals payload.
type signalMessage struct {
	Symbol string  `json:"symbol"`
	T      int64   `json:"t"`
	Signal float64 `json:"signal"`
	Source string  `json:"source"`
}

func decodeSignal(b []byte) (models.CandidateSignal, error) {
	var m signalMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.CandidateSignal{}, err
	}
	return models.CandidateSignal{Symbol: m.Symbol, Timestamp: unixSeconds(m.T), Value: m.Signal, Source: m.Source}, nil
}

// unixSeconds accepts seconds or milliseconds since the epoch.
func unixSeconds(t int64) int64 {
	if t > 1e11 {
		return t / 1000
	}
	return t
}
