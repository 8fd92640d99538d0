package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"RiskKernel/internal/domain/models"
	"RiskKernel/internal/usecase"
)

var barColumns = []string{"timestamp", "price", "signal", "low", "median", "high", "horizon"}

// readBars parses a header row followed by one bar per line. Empty signal means
// no candidate at that bar; empty forecast columns mean no forecast.
func readBars(r io.Reader) ([]usecase.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range barColumns[:2] {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var bars []usecase.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseBar(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func parseBar(rec []string, idx map[string]int) (usecase.Bar, error) {
	field := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var b usecase.Bar
	ts, err := strconv.ParseInt(field("timestamp"), 10, 64)
	if err != nil {
		return b, fmt.Errorf("timestamp: %w", err)
	}
	b.Timestamp = ts
	// Bad prices are kept; the orchestrator rejects them as data-quality faults.
	if b.Price, err = strconv.ParseFloat(field("price"), 64); err != nil {
		return b, fmt.Errorf("price: %w", err)
	}
	if s := field("signal"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return b, fmt.Errorf("signal: %w", err)
		}
		b.Signal = &v
	}

	low, median, high, horizon := field("low"), field("median"), field("high"), field("horizon")
	if low == "" && median == "" && high == "" {
		return b, nil
	}
	var fq models.ForecastQuantiles
	for _, p := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"low", low, &fq.Low},
		{"median", median, &fq.Median},
		{"high", high, &fq.High},
		{"horizon", horizon, &fq.HorizonDays},
	} {
		if p.raw == "" {
			return b, fmt.Errorf("%s: missing while other forecast columns are set", p.name)
		}
		v, err := strconv.ParseFloat(p.raw, 64)
		if err != nil {
			return b, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = v
	}
	b.Forecast = &fq
	return b, nil
}
