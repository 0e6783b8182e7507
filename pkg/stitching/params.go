package stitching

import (
	"fmt"
	"log"
	"runtime"

	"ptvstitch/pkg/smoothing"
)

// Default kinematic recomputation settings for stitched trajectories.
const (
	DefaultSmoothWindow = 5
	DefaultSmoothOrder  = 3
)

// Params holds the stitching parameters.
type Params struct {
	// MaxTimeSeparation (Ts) is the largest gap, in time units, that a
	// connection may bridge.
	MaxTimeSeparation float64

	// MaxDistance (dm) is the largest combined position/velocity residual
	// accepted for a connection.
	MaxDistance float64

	// AccelerationWeight (wa) scales the acceleration term of the velocity
	// projection. Zero disables it.
	AccelerationWeight float64

	// Selector chooses the conflict-resolution strategy.
	Selector SelectorKind

	// NumWorkers bounds the goroutines used for candidate generation.
	NumWorkers int

	// Smoother recomputes kinematics of stitched trajectories. Nil selects a
	// cubic polynomial over a five-sample window.
	Smoother smoothing.Smoother

	// Logger receives progress lines. Nil selects log.Default().
	Logger *log.Logger
}

// DefaultParams returns parameters with the given gates and defaults elsewhere.
func DefaultParams(maxTimeSeparation, maxDistance float64) Params {
	return Params{
		MaxTimeSeparation: maxTimeSeparation,
		MaxDistance:       maxDistance,
		Selector:          SelectorGreedy,
		NumWorkers:        runtime.NumCPU(),
	}
}

// Validate checks the gates and fills unset fields with defaults.
func (p *Params) Validate() error {
	if !(p.MaxTimeSeparation > 0) {
		return fmt.Errorf("max time separation must be positive, got %g", p.MaxTimeSeparation)
	}
	if !(p.MaxDistance >= 0) {
		return fmt.Errorf("max distance must be non-negative, got %g", p.MaxDistance)
	}
	kind, err := ParseSelector(string(p.Selector))
	if err != nil {
		return err
	}
	p.Selector = kind
	if p.NumWorkers < 1 {
		p.NumWorkers = runtime.NumCPU()
	}
	if p.Smoother == nil {
		sm, err := smoothing.NewPolySmoother(DefaultSmoothWindow, DefaultSmoothOrder)
		if err != nil {
			return err
		}
		p.Smoother = sm
	}
	if p.Logger == nil {
		p.Logger = log.Default()
	}
	return nil
}
