package models

import (
	"encoding/json"
	"fmt"
)

// Regime is a discrete tail-risk classification.
type Regime int

const (
	RegimeCritical Regime = iota
	RegimeLevyStable
	RegimeGaussian

	// RegimeUnknown marks a step whose tail estimate could not be computed.
	RegimeUnknown Regime = -1
)

func (r Regime) String() string {
	switch r {
	case RegimeCritical:
		return "Critical"
	case RegimeLevyStable:
		return "LevyStable"
	case RegimeGaussian:
		return "Gaussian"
	case RegimeUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Regime(%d)", int(r))
	}
}

// MarshalJSON encodes the regime by name.
func (r Regime) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON decodes a regime name.
func (r *Regime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRegime(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRegime converts a regime name back to its value.
func ParseRegime(s string) (Regime, error) {
	switch s {
	case "Critical":
		return RegimeCritical, nil
	case "LevyStable":
		return RegimeLevyStable, nil
	case "Gaussian":
		return RegimeGaussian, nil
	case "Unknown":
		return RegimeUnknown, nil
	default:
		return RegimeCritical, fmt.Errorf("unknown regime %q", s)
	}
}

// RegimeAssessment is the regime derived from a tail exponent together with its
// sizing scale and leverage cap.
type RegimeAssessment struct {
	Alpha       float64 `json:"alpha"`
	Regime      Regime  `json:"regime"`
	Lambda      float64 `json:"lambda"`
	LeverageCap float64 `json:"leverage_cap"`
}
