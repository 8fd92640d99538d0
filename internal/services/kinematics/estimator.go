// Package kinematics extracts position, velocity and acceleration from a noisy
// price stream with a constant-acceleration Kalman filter.
package kinematics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"RiskKernel/internal/domain/models"
	domsvc "RiskKernel/internal/domain/service"
)

// bootstrapObservations is the number of raw prices needed before the filter starts.
const bootstrapObservations = 3

// Config holds estimator configuration.
type Config struct {
	TimeStep         float64
	ProcessNoise     float64
	MeasurementNoise float64
	NoiseModel       ProcessNoise
	// InitialVariance is the diagonal of the prior covariance set at bootstrap.
	InitialVariance float64
}

// Option configures an Estimator.
type Option func(*Config)

// WithTimeStep sets Δt between observations.
func WithTimeStep(dt float64) Option {
	return func(c *Config) {
		c.TimeStep = dt
	}
}

// WithProcessNoise sets the scalar q used by the default noise model.
func WithProcessNoise(q float64) Option {
	return func(c *Config) {
		c.ProcessNoise = q
	}
}

// WithMeasurementNoise sets the scalar observation variance r.
func WithMeasurementNoise(r float64) Option {
	return func(c *Config) {
		c.MeasurementNoise = r
	}
}

// WithNoiseModel replaces the process-noise strategy.
func WithNoiseModel(n ProcessNoise) Option {
	return func(c *Config) {
		c.NoiseModel = n
	}
}

// WithInitialVariance sets the prior covariance diagonal used at bootstrap.
func WithInitialVariance(v float64) Option {
	return func(c *Config) {
		c.InitialVariance = v
	}
}

// Estimator is a recursive filter over one symbol's price stream.
// It is not safe for concurrent use.
type Estimator struct {
	cfg Config
	f   *mat.Dense
	q   *mat.SymDense

	warm []float64
	x    *mat.VecDense
	p    *mat.Dense
	n    int
}

// NewEstimator creates an estimator. Defaults: Δt=1, q=0.01 (diagonal), r=1.
func NewEstimator(opts ...Option) (*Estimator, error) {
	cfg := &Config{
		TimeStep:         1.0,
		ProcessNoise:     0.01,
		MeasurementNoise: 1.0,
		InitialVariance:  1e3,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !(cfg.TimeStep > 0) || math.IsInf(cfg.TimeStep, 0) {
		return nil, fmt.Errorf("time step must be positive, got %v", cfg.TimeStep)
	}
	if !(cfg.MeasurementNoise > 0) {
		return nil, fmt.Errorf("measurement noise must be positive, got %v", cfg.MeasurementNoise)
	}
	if !(cfg.InitialVariance > 0) {
		return nil, fmt.Errorf("initial variance must be positive, got %v", cfg.InitialVariance)
	}
	if cfg.NoiseModel == nil {
		if cfg.ProcessNoise < 0 {
			return nil, fmt.Errorf("process noise must be >= 0, got %v", cfg.ProcessNoise)
		}
		cfg.NoiseModel = DiagonalNoise{Q: cfg.ProcessNoise}
	}

	dt := cfg.TimeStep
	return &Estimator{
		cfg: *cfg,
		f: mat.NewDense(3, 3, []float64{
			1, dt, 0.5 * dt * dt,
			0, 1, dt,
			0, 0, 1,
		}),
		q:    cfg.NoiseModel.Matrix(dt),
		warm: make([]float64, 0, bootstrapObservations),
	}, nil
}

// Config returns the effective configuration.
func (e *Estimator) Config() Config { return e.cfg }

// Update consumes one observation and returns the new estimate. Non-finite input
// leaves the state untouched and returns a DataQuality fault.
func (e *Estimator) Update(observation float64) (models.StateEstimate, error) {
	if math.IsNaN(observation) || math.IsInf(observation, 0) {
		return e.State(), &models.DataQualityError{Value: observation, Reason: "non-finite observation"}
	}

	if e.x == nil {
		e.warm = append(e.warm, observation)
		e.n++
		if len(e.warm) == bootstrapObservations {
			e.bootstrap()
		}
		return e.State(), nil
	}

	x, p, err := e.step(observation)
	if err != nil {
		return e.State(), err
	}
	e.x, e.p = x, p
	e.n++
	return e.State(), nil
}

// step runs predict and correct on copies so a failure never touches the stored state.
func (e *Estimator) step(z float64) (*mat.VecDense, *mat.Dense, error) {
	var xPred mat.VecDense
	xPred.MulVec(e.f, e.x)

	var fp, pPred mat.Dense
	fp.Mul(e.f, e.p)
	pPred.Mul(&fp, e.f.T())
	pPred.Add(&pPred, e.q)

	// H = [1 0 0]: only position is observed.
	s := pPred.At(0, 0) + e.cfg.MeasurementNoise
	if !(s > 0) || math.IsInf(s, 0) {
		return nil, nil, fmt.Errorf("innovation variance %v: %w", s, models.ErrNumericalFault)
	}
	innovation := z - xPred.AtVec(0)
	gain := mat.NewVecDense(3, []float64{
		pPred.At(0, 0) / s,
		pPred.At(1, 0) / s,
		pPred.At(2, 0) / s,
	})

	x := mat.NewVecDense(3, nil)
	x.AddScaledVec(&xPred, innovation, gain)

	var kh, ikh, p mat.Dense
	kh.Mul(gain, mat.NewDense(1, 3, []float64{1, 0, 0}))
	ikh.Sub(identity3(), &kh)
	p.Mul(&ikh, &pPred)
	symmetrize(&p)

	if !finiteVec(x) || !finiteDense(&p) {
		return nil, nil, fmt.Errorf("non-finite filter state: %w", models.ErrNumericalFault)
	}
	return x, &p, nil
}

func (e *Estimator) bootstrap() {
	dt := e.cfg.TimeStep
	p0, p1, p2 := e.warm[0], e.warm[1], e.warm[2]
	e.x = mat.NewVecDense(3, []float64{
		p2,
		(p2 - p0) / (2 * dt),
		(p2 - 2*p1 + p0) / (dt * dt),
	})
	v := e.cfg.InitialVariance
	e.p = mat.NewDense(3, 3, []float64{
		v, 0, 0,
		0, v, 0,
		0, 0, v,
	})
}

// State returns a copy of the current estimate.
func (e *Estimator) State() models.StateEstimate {
	st := models.StateEstimate{Observations: e.n}
	if e.x == nil {
		st.Cold = true
		if len(e.warm) > 0 {
			st.Position = e.warm[len(e.warm)-1]
		}
		return st
	}
	st.Position = e.x.AtVec(0)
	st.Velocity = e.x.AtVec(1)
	st.Acceleration = e.x.AtVec(2)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			st.Covariance[i][j] = e.p.At(i, j)
		}
	}
	return st
}

// Reset discards all state; the next observation starts a new bootstrap.
func (e *Estimator) Reset() {
	e.warm = e.warm[:0]
	e.x = nil
	e.p = nil
	e.n = 0
}

func identity3() *mat.DiagDense {
	return mat.NewDiagDense(3, []float64{1, 1, 1})
}

func symmetrize(m *mat.Dense) {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if f := v.AtVec(i); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finiteDense(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if f := m.At(i, j); math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
	}
	return true
}

var _ domsvc.StateEstimator = (*Estimator)(nil)
