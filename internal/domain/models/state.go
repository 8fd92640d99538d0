package models

// StateEstimate is the filtered kinematic state of a price series.
// Covariance is ordered (position, velocity, acceleration).
type StateEstimate struct {
	Position     float64       `json:"position"`
	Velocity     float64       `json:"velocity"`
	Acceleration float64       `json:"acceleration"`
	Covariance   [3][3]float64 `json:"covariance"`
	// Cold is set until enough observations exist to initialise the filter.
	Cold         bool `json:"cold"`
	Observations int  `json:"observations"`
}

// TailEstimate is the result of a tail-index estimation over one window.
type TailEstimate struct {
	Alpha      float64 `json:"alpha"`
	TailSize   int     `json:"tail_size"`
	SampleSize int     `json:"sample_size"`
	// Degenerate is set when the conservative default was returned.
	Degenerate bool `json:"degenerate"`
}
