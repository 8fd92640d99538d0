package models

import "time"

// SizingDecision is the output of the position sizer. Fractions are of capital.
type SizingDecision struct {
	Lambda            float64 `json:"lambda"`
	ExpectedReturn    float64 `json:"expected_return"`
	Sigma             float64 `json:"sigma"`
	ExpectedShortfall float64 `json:"expected_shortfall"` // fraction of price
	ExcessReturn      float64 `json:"excess_return"`
	RawFraction       float64 `json:"raw_fraction"`
	FinalFraction     float64 `json:"final_fraction"`
}

// VetoDecision is the final gate output.
type VetoDecision struct {
	Vetoed bool   `json:"vetoed"`
	Reason string `json:"reason"`
}

// Outcome classifies a decision record for counting and display.
type Outcome string

const (
	OutcomeApproved  Outcome = "approved"
	OutcomeVetoed    Outcome = "vetoed"
	OutcomeZero      Outcome = "zero"
	OutcomeUnchecked Outcome = "unchecked"
	OutcomeUpstream  Outcome = "upstream_unavailable"
)

// DecisionRecord is the flat, serializable audit record emitted once per step.
type DecisionRecord struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Step          int       `json:"step"`
	Timestamp     time.Time `json:"timestamp"`
	Price         float64   `json:"price"`
	Alpha         float64   `json:"alpha"`
	Regime        Regime    `json:"regime"`
	Lambda        float64   `json:"lambda"`
	RawSignal     float64   `json:"raw_signal"`
	RawSize       float64   `json:"raw_size"`
	SizerFraction float64   `json:"sizer_fraction"`
	FinalSize     float64   `json:"final_size"`
	Outcome       Outcome   `json:"outcome"`
	Vetoed        bool      `json:"vetoed"`
	VetoChecked   bool      `json:"veto_checked"`
	Reason        string    `json:"reason"`

	Position     float64 `json:"position"`
	Velocity     float64 `json:"velocity"`
	Acceleration float64 `json:"acceleration"`
	StateCold    bool    `json:"state_cold"`
}

// ApplyVeto records a hard veto: the size is forced to zero and v's reason kept for audit.
func (d *DecisionRecord) ApplyVeto(v VetoDecision) {
	d.Vetoed = true
	d.FinalSize = 0
	d.Outcome = OutcomeVetoed
	d.Reason = v.Reason
}

// Veto returns the gate view of the record.
func (d DecisionRecord) Veto() VetoDecision {
	return VetoDecision{Vetoed: d.Vetoed, Reason: d.Reason}
}
