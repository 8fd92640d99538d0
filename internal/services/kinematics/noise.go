package kinematics

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	NoiseModelDiagonal = "diagonal"
	NoiseModelAnalytic = "analytic"
)

// ProcessNoise builds the process-noise covariance Q for one time step.
type ProcessNoise interface {
	Name() string
	Matrix(dt float64) *mat.SymDense
}

// DiagonalNoise is q·I₃. It ignores the cross-correlation between position,
// velocity and acceleration and is the default for numerical stability.
type DiagonalNoise struct {
	Q float64
}

func (n DiagonalNoise) Name() string { return NoiseModelDiagonal }

func (n DiagonalNoise) Matrix(_ float64) *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		n.Q, 0, 0,
		0, n.Q, 0,
		0, 0, n.Q,
	})
}

// AnalyticNoise is the continuous white-noise jerk model for a constant-acceleration
// state, scaled by the spectral density Q.
type AnalyticNoise struct {
	Q float64
}

func (n AnalyticNoise) Name() string { return NoiseModelAnalytic }

func (n AnalyticNoise) Matrix(dt float64) *mat.SymDense {
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt
	dt5 := dt4 * dt
	q := n.Q
	return mat.NewSymDense(3, []float64{
		q * dt5 / 20, q * dt4 / 8, q * dt3 / 6,
		q * dt4 / 8, q * dt3 / 3, q * dt2 / 2,
		q * dt3 / 6, q * dt2 / 2, q * dt,
	})
}

// NewProcessNoise resolves a configured model name. An empty name selects the diagonal model.
func NewProcessNoise(model string, q float64) (ProcessNoise, error) {
	if q < 0 {
		return nil, fmt.Errorf("process noise must be >= 0, got %v", q)
	}
	switch model {
	case "", NoiseModelDiagonal:
		return DiagonalNoise{Q: q}, nil
	case NoiseModelAnalytic:
		return AnalyticNoise{Q: q}, nil
	default:
		return nil, fmt.Errorf("unknown noise model %q", model)
	}
}

var (
	_ ProcessNoise = DiagonalNoise{}
	_ ProcessNoise = AnalyticNoise{}
)
