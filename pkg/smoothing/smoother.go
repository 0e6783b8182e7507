// Package smoothing estimates particle velocity and acceleration from
// position samples. The moving-polynomial smoother follows Lüthi et al.
// (2005): a polynomial is fitted over a sliding window of samples and its
// analytic derivatives give the kinematics at the window's evaluation point.
package smoothing

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"ptvstitch/internal/models"
	"ptvstitch/pkg/interpolation"
)

// ErrTooShort is returned when a trajectory has fewer samples than the window.
var ErrTooShort = errors.New("trajectory shorter than smoothing window")

// Kinematics holds per-sample estimates aligned with the input positions.
type Kinematics struct {
	Position     []r3.Vec
	Velocity     []r3.Vec
	Acceleration []r3.Vec
}

// Smoother turns a position sequence into kinematics.
type Smoother interface {
	Smooth(positions []r3.Vec) (Kinematics, error)
}

// PolySmoother fits a polynomial of a fixed order over a sliding window.
// Time is measured in samples, so velocities are per sample step.
type PolySmoother struct {
	window int
	order  int
}

// NewPolySmoother validates the window and order. The window must be a
// positive odd number and the order must be smaller than the window.
func NewPolySmoother(window, order int) (*PolySmoother, error) {
	if window < 1 || window%2 != 1 {
		return nil, fmt.Errorf("window must be a positive odd integer, got %d", window)
	}
	if order < 0 || order >= window {
		return nil, fmt.Errorf("polynomial order %d must be in [0, %d)", order, window)
	}
	return &PolySmoother{window: window, order: order}, nil
}

// Window returns the number of samples in each fit.
func (p *PolySmoother) Window() int { return p.window }

// Order returns the polynomial order.
func (p *PolySmoother) Order() int { return p.order }

// Smooth returns smoothed positions with velocity and acceleration for every
// sample. Samples within half a window of either end are evaluated from the
// first or last full window rather than a centred one.
func (p *PolySmoother) Smooth(positions []r3.Vec) (Kinematics, error) {
	n := len(positions)
	if n < p.window {
		return Kinematics{}, fmt.Errorf("%w: %d samples, window %d", ErrTooShort, n, p.window)
	}

	k := Kinematics{
		Position:     make([]r3.Vec, n),
		Velocity:     make([]r3.Vec, n),
		Acceleration: make([]r3.Vec, n),
	}

	ts := make([]float64, p.window)
	for i := range ts {
		ts[i] = float64(i)
	}
	half := p.window / 2
	ys := make([]float64, p.window)

	for axis := 0; axis < 3; axis++ {
		for i := 0; i < n; i++ {
			var start int
			var at float64
			switch {
			case i <= half:
				start, at = 0, float64(i)
			case n-1-i <= half:
				start, at = n-p.window, float64(p.window+i-n)
			default:
				start, at = i-half, float64(half)
			}

			for j := range ys {
				ys[j] = models.Axis(positions[start+j], axis)
			}
			c, err := interpolation.FitPolynomial(ts, ys, p.order)
			if err != nil {
				return Kinematics{}, fmt.Errorf("sample %d axis %d: %w", i, axis, err)
			}
			c1 := interpolation.DerivePolynomial(c)
			c2 := interpolation.DerivePolynomial(c1)

			models.SetAxis(&k.Position[i], axis, interpolation.EvalPolynomial(c, at))
			models.SetAxis(&k.Velocity[i], axis, interpolation.EvalPolynomial(c1, at))
			models.SetAxis(&k.Acceleration[i], axis, interpolation.EvalPolynomial(c2, at))
		}
	}

	return k, nil
}

// Differentiate estimates kinematics with finite differences: central in the
// interior and one-sided at both ends, with unit spacing between samples.
// Acceleration is the same difference applied to the velocity. Positions are
// returned unchanged.
func Differentiate(positions []r3.Vec) Kinematics {
	vel := gradient(positions)
	return Kinematics{
		Position:     append([]r3.Vec(nil), positions...),
		Velocity:     vel,
		Acceleration: gradient(vel),
	}
}

func gradient(v []r3.Vec) []r3.Vec {
	n := len(v)
	out := make([]r3.Vec, n)
	if n < 2 {
		return out
	}
	out[0] = r3.Sub(v[1], v[0])
	out[n-1] = r3.Sub(v[n-1], v[n-2])
	for i := 1; i < n-1; i++ {
		out[i] = r3.Scale(0.5, r3.Sub(v[i+1], v[i-1]))
	}
	return out
}
